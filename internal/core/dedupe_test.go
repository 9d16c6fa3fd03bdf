package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeKey(t *testing.T) {
	assert.Equal(t, DedupeKey("abc", "x", "y"), DedupeKey("abc", "other", "other"))
	assert.NotEqual(t, DedupeKey("abc", "", ""), DedupeKey("abd", "", ""))
	assert.Equal(t, DedupeKey("", "s@x.com", "Hello"), DedupeKey("s@x.com|Hello", "", ""))
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", DedupeKey("abc", "", ""))
}
