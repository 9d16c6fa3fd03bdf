package scan

import (
	"fmt"
	"math"
	"strings"
)

// ScoreBucket rounds a score to the nearest multiple of 5, ties to even
func ScoreBucket(score float64) int {
	return int(math.RoundToEven(score/5) * 5)
}

// ScoreTag names the tag for a score, e.g. "PHISHING-SUSPECT (85)" for 83
func ScoreTag(prefix string, score float64) string {
	return fmt.Sprintf("%s (%d)", prefix, ScoreBucket(score))
}

// HasTagWithPrefix reports whether any tag starts with prefix
func HasTagWithPrefix(tags []string, prefix string) bool {
	for _, t := range tags {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
