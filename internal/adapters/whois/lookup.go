package whois

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/likexian/whois"
	whoisparser "github.com/likexian/whois-parser"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// ErrNoCreationDate is returned when the record carries no usable creation date
var ErrNoCreationDate = errors.New("whois record has no creation date")

const cacheTTL = 24 * time.Hour

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02-Jan-2006",
	"2006.01.02",
	"02.01.2006",
}

type queryFunc func(domain string) (string, error)

type cacheEntry struct {
	created time.Time
	expires time.Time
}

// Lookup resolves domain registration age over WHOIS. It implements
// core.DomainAgeLookup.
type Lookup struct {
	query  queryFunc
	logger *zap.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewLookup creates a WHOIS lookup whose raw queries give up after timeout
func NewLookup(timeout time.Duration, logger *zap.Logger) *Lookup {
	client := whois.NewClient()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return newLookup(func(domain string) (string, error) {
		return client.Whois(domain)
	}, logger)
}

func newLookup(query queryFunc, logger *zap.Logger) *Lookup {
	return &Lookup{
		query:  query,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
	}
}

// DomainAge returns how long ago the registrable domain of host was created
func (l *Lookup) DomainAge(ctx context.Context, host string) (time.Duration, error) {
	domain, err := RegistrableDomain(host)
	if err != nil {
		return 0, err
	}

	if created, ok := l.cached(domain); ok {
		return l.age(created), nil
	}

	type result struct {
		created time.Time
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		created, err := l.creationDate(domain)
		ch <- result{created: created, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("whois lookup for %s: %w", domain, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		l.store(domain, r.created)
		l.logger.Debug("Resolved domain creation date",
			zap.String("domain", domain),
			zap.Time("created", r.created))
		return l.age(r.created), nil
	}
}

func (l *Lookup) creationDate(domain string) (time.Time, error) {
	raw, err := l.query(domain)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to query whois for %s: %w", domain, err)
	}

	info, err := whoisparser.Parse(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse whois for %s: %w", domain, err)
	}
	if info.Domain == nil {
		return time.Time{}, ErrNoCreationDate
	}
	if info.Domain.CreatedDateInTime != nil {
		return *info.Domain.CreatedDateInTime, nil
	}
	return parseDate(info.Domain.CreatedDate)
}

func (l *Lookup) age(created time.Time) time.Duration {
	d := l.now().Sub(created)
	if d < 0 {
		return 0
	}
	return d
}

func (l *Lookup) cached(domain string) (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.cache[domain]
	if !ok || l.now().After(e.expires) {
		return time.Time{}, false
	}
	return e.created, true
}

func (l *Lookup) store(domain string, created time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache[domain] = cacheEntry{created: created, expires: l.now().Add(cacheTTL)}
}

// RegistrableDomain returns the eTLD+1 of a host name or URL host
func RegistrableDomain(host string) (string, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" || net.ParseIP(host) != nil {
		return "", fmt.Errorf("no registrable domain in %q", host)
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", fmt.Errorf("no registrable domain in %q: %w", host, err)
	}
	return domain, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrNoCreationDate
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized creation date %q", s)
}
