package whitelist

import (
	"strings"

	"go.uber.org/zap"
)

// Checker tells whether a sender domain belongs to a trusted organisation.
// A configured domain also covers its subdomains.
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a new trusted-domain checker
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	set := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		d := strings.Trim(strings.ToLower(strings.TrimSpace(domain)), ".")
		if d != "" {
			set[d] = struct{}{}
		}
	}

	if len(set) > 0 && logger != nil {
		logger.Info("Initialized trusted domain checker", zap.Int("domains", len(set)))
	}

	return &Checker{
		domains: set,
		logger:  logger,
	}
}

// IsTrusted reports whether domain or one of its parents is trusted
func (c *Checker) IsTrusted(domain string) bool {
	if c == nil || len(c.domains) == 0 {
		return false
	}

	d := strings.Trim(strings.ToLower(domain), ".")
	for d != "" {
		if _, ok := c.domains[d]; ok {
			if c.logger != nil {
				c.logger.Debug("Sender domain is trusted", zap.String("domain", domain))
			}
			return true
		}
		i := strings.IndexByte(d, '.')
		if i < 0 {
			break
		}
		d = d[i+1:]
	}

	return false
}
