package features

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SuspiciousLinkThreshold is the reputation above which a link is suspicious
const SuspiciousLinkThreshold = 50

// neutralReputation is returned for an empty URL
const neutralReputation = 50

var (
	suspiciousTLD = regexp.MustCompile(`\.(xyz|top|club|ru|tk|cf|ga|gq|ml)\b`)
	digitRun      = regexp.MustCompile(`\d{4,}`)
)

// LinkReputation scores url between 0 (benign) and 100.
func (e *Extractor) LinkReputation(ctx context.Context, rawURL string) int {
	if rawURL == "" {
		return neutralReputation
	}

	lower := strings.ToLower(rawURL)
	score := 0

	if suspiciousTLD.MatchString(lower) {
		score += 25
	}
	if len(rawURL) > 100 {
		score += 10
	}

	host := hostOf(lower)
	if strings.Count(host, "-") >= 2 {
		score += 10
	}
	if digitRun.MatchString(lower) {
		score += 6
	}

	score += e.domainAgePenalty(ctx, host)

	if score > 100 {
		score = 100
	}
	return score
}

func (e *Extractor) domainAgePenalty(ctx context.Context, host string) int {
	if e.ageLookup == nil || host == "" {
		return 0
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.lookupTimeout)
	defer cancel()

	age, err := e.ageLookup.DomainAge(lookupCtx, host)
	if err != nil {
		e.logger.Debug("Domain age lookup failed",
			zap.String("host", host),
			zap.Error(err))
		return 0
	}

	switch {
	case age < 30*24*time.Hour:
		return 20
	case age < 365*24*time.Hour:
		return 8
	default:
		return 0
	}
}

// hostOf returns the host part of a URL, tolerating missing schemes
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.Host != "" {
		return u.Hostname()
	}
	if err == nil && u.Scheme == "" {
		if u2, err := url.Parse("//" + rawURL); err == nil {
			return u2.Hostname()
		}
	}
	return ""
}
