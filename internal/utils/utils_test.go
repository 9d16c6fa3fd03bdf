package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractLinks(t *testing.T) {
	tests := []struct {
		name  string
		texts []string
		want  []string
	}{
		{name: "none", texts: []string{"no links here"}, want: nil},
		{
			name:  "trailing punctuation",
			texts: []string{"Visit https://example.com/login. Or (http://paypa1.tk/x)!"},
			want:  []string{"https://example.com/login", "http://paypa1.tk/x"},
		},
		{
			name:  "html attribute",
			texts: []string{`<a href="https://secure-login.xyz/verify?id=1">here</a>`},
			want:  []string{"https://secure-login.xyz/verify?id=1"},
		},
		{
			name:  "deduplicated across texts",
			texts: []string{"https://a.com/x", "see HTTPS://b.com and https://a.com/x"},
			want:  []string{"https://a.com/x", "HTTPS://b.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLinks(tt.texts...))
		})
	}
}

func TestShorten(t *testing.T) {
	assert.Equal(t, "short", Shorten("short", 10))
	assert.Equal(t, "exactly10!", Shorten("exactly10!", 10))
	assert.Equal(t, "abcdefg...", Shorten("abcdefghijkl", 10))
	assert.Equal(t, "...", Shorten("abcdef", 2))
	assert.Equal(t, "éé...", Shorten("éééééé", 5))
}

func TestASCII(t *testing.T) {
	assert.Equal(t, "Resume de compte", ASCII("Résumé de compte"))
	assert.Equal(t, "line one line two", ASCII("line one\nline two"))
	assert.Equal(t, "Alert ", ASCII("Alert 🚨"))
}

func TestTextProcessor(t *testing.T) {
	tp := NewTextProcessor(zap.NewNop())

	assert.Equal(t, "hello", tp.ProcessText("hello", 10))

	got := tp.TruncateText(strings.Repeat("é", 10), 5)
	assert.True(t, strings.HasPrefix(got, "éé\n"), got)
	assert.Contains(t, got, "truncated")

	assert.Equal(t, "ab", tp.SanitizeUTF8("a\xffb"))
}

func TestParseProbability(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    float64
		wantErr bool
	}{
		{name: "plain json", reply: `{"phishing_probability": 0.87, "explanation": "fake bank"}`, want: 0.87},
		{name: "wrapped in prose", reply: "Sure!\n```json\n{\"phishing_probability\": 0.1}\n```", want: 0.1},
		{name: "missing field", reply: `{"explanation": "?"}`, wantErr: true},
		{name: "out of range", reply: `{"phishing_probability": 1.5}`, wantErr: true},
		{name: "not json", reply: "I cannot help with that", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProbability(tt.reply)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(fmt.Errorf("call failed: %w", context.DeadlineExceeded)))
	assert.True(t, IsTimeout(&net.OpError{Op: "read", Err: timeoutErr{}}))
	assert.False(t, IsTimeout(context.Canceled))
	assert.False(t, IsTimeout(errors.New("boom")))
	assert.False(t, IsTimeout(nil))
}

func TestRetryPolicy(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name         string
		maxRetries   int
		errs         []error
		wantErr      error
		wantCalls    int
		wantNotifies int
	}{
		{name: "first attempt succeeds", maxRetries: 1, errs: []error{nil}, wantCalls: 1},
		{name: "timeout then success", maxRetries: 1, errs: []error{context.DeadlineExceeded, nil}, wantCalls: 2, wantNotifies: 1},
		{name: "retries exhausted", maxRetries: 1, errs: []error{context.DeadlineExceeded, context.DeadlineExceeded, nil}, wantErr: context.DeadlineExceeded, wantCalls: 2, wantNotifies: 1},
		{name: "non timeout not retried", maxRetries: 3, errs: []error{errBoom, nil}, wantErr: errBoom, wantCalls: 1},
		{name: "no retries", maxRetries: 0, errs: []error{context.DeadlineExceeded, context.DeadlineExceeded, nil}, wantErr: context.DeadlineExceeded, wantCalls: 1},
		{name: "negative retries", maxRetries: -1, errs: []error{context.DeadlineExceeded, nil}, wantErr: context.DeadlineExceeded, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls, notifies := 0, 0
			err := TimeoutOnly(time.Millisecond, tt.maxRetries).Do(context.Background(), func() error {
				e := tt.errs[calls]
				calls++
				return e
			}, func(error, time.Duration) { notifies++ })

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantNotifies, notifies)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	ctx := context.Background()

	require.NoError(t, rl.Wait(ctx), "burst is at least one")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, rl.Wait(cancelled))

	rl.UpdateLimits(1000, 10)
	assert.Equal(t, 1000.0, rl.Limit())
	for i := 0; i < 5; i++ {
		require.NoError(t, rl.Wait(ctx))
	}
}
