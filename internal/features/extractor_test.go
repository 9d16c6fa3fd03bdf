package features

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/whitelist"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAgeLookup struct {
	ages  map[string]time.Duration
	err   error
	calls []string
}

func (f *fakeAgeLookup) DomainAge(_ context.Context, host string) (time.Duration, error) {
	f.calls = append(f.calls, host)
	if f.err != nil {
		return 0, f.err
	}
	age, ok := f.ages[host]
	if !ok {
		return 10 * 365 * 24 * time.Hour, nil
	}
	return age, nil
}

func day(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func TestLinkReputation(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		lookup core.DomainAgeLookup
		want   int
	}{
		{name: "empty url is neutral", url: "", want: 50},
		{name: "plain url", url: "https://example.com/login", want: 0},
		{name: "suspicious tld", url: "http://login.xyz/", want: 25},
		{name: "tld match is case insensitive", url: "HTTP://LOGIN.TK/", want: 25},
		{name: "tld must end at a word boundary", url: "http://login.xyzabc.com/", want: 0},
		{name: "hyphenated host", url: "http://secure-login-portal.example.com/", want: 10},
		{name: "single hyphen", url: "http://secure-login.example.com/", want: 0},
		{name: "digit run", url: "http://example.com/a/12345", want: 6},
		{name: "long url", url: "https://example.com/" + strings.Repeat("a", 100), want: 10},
		{name: "combined", url: "http://secure-login-verify.xyz/12345", want: 41},
		{
			name:   "young domain",
			url:    "http://secure-login-verify.xyz/12345",
			lookup: &fakeAgeLookup{ages: map[string]time.Duration{"secure-login-verify.xyz": day(10)}},
			want:   61,
		},
		{
			name:   "domain under a year",
			url:    "https://example.com/",
			lookup: &fakeAgeLookup{ages: map[string]time.Duration{"example.com": day(100)}},
			want:   8,
		},
		{
			name:   "lookup failure contributes nothing",
			url:    "http://login.xyz/",
			lookup: &fakeAgeLookup{err: errors.New("whois down")},
			want:   25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewExtractor(tt.lookup, time.Second, nil, zap.NewNop())
			got := e.LinkReputation(context.Background(), tt.url)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestLinkReputationUsesHostWithoutPort(t *testing.T) {
	lookup := &fakeAgeLookup{}
	e := NewExtractor(lookup, time.Second, nil, zap.NewNop())

	e.LinkReputation(context.Background(), "https://user@Example.com:8443/path")

	assert.Equal(t, []string{"example.com"}, lookup.calls)
}

func TestExtract(t *testing.T) {
	young := &fakeAgeLookup{ages: map[string]time.Duration{
		"paypa1-secure-login.xyz": day(3),
	}}
	e := NewExtractor(young, time.Second, nil, zap.NewNop())

	msg := &core.Message{
		ID:      "m1",
		Sender:  "PayPal <no-reply@paypal-secure.com>",
		Subject: "URGENT: verify your account",
		Body:    "Click here",
		Links: []string{
			"http://paypa1-secure-login.xyz/1234",
			"http://paypa1-secure-login.xyz/5678",
			"http://paypa1-secure-login.xyz/9999",
			"https://www.paypal.com/",
		},
		AuthResults: map[string]string{"spf": "fail", "dkim": "fail", "dmarc": "PASS"},
	}

	f := e.Extract(context.Background(), msg)

	assert.Equal(t, "paypal-secure.com", f.SenderDomain)
	assert.True(t, f.SuspiciousSender)
	assert.False(t, f.TrustedSender)
	assert.Equal(t, 27, f.SubjectLength)
	assert.True(t, f.SubjectUrgency)
	assert.True(t, f.SubjectSuspicious)
	assert.Equal(t, 10, f.ContentLength)
	assert.True(t, f.HasLinks)
	assert.Equal(t, 4, f.LinkCount)
	assert.Equal(t, 3, f.SuspiciousLinkCount)
	assert.True(t, f.HasSuspiciousLinks)
	assert.Equal(t, 61, f.LinkReputation["http://paypa1-secure-login.xyz/1234"])
	assert.False(t, f.SPFPass)
	assert.False(t, f.DKIMPass)
	assert.True(t, f.DMARCPass)
}

func TestExtractIsDeterministic(t *testing.T) {
	e := NewExtractor(nil, 0, nil, zap.NewNop())
	msg := &core.Message{
		Sender:  "alice@example.com",
		Subject: "Lunch",
		Links:   []string{"http://a-b-c.top/12345"},
	}

	assert.Equal(t, e.Extract(context.Background(), msg), e.Extract(context.Background(), msg))
}

func TestExtractTrustedSender(t *testing.T) {
	trusted := whitelist.NewChecker([]string{"bank.com"}, zap.NewNop())
	e := NewExtractor(nil, 0, trusted, zap.NewNop())

	tests := []struct {
		name           string
		sender         string
		wantSuspicious bool
		wantTrusted    bool
	}{
		{name: "automated sender", sender: "alerts@example.com", wantSuspicious: true},
		{name: "trusted automated sender", sender: "alerts@bank.com", wantTrusted: true},
		{name: "trusted subdomain", sender: "no-reply@mail.bank.com", wantTrusted: true},
		{name: "lookalike is not trusted", sender: "no-reply@bank.com.evil.ru", wantSuspicious: true},
		{name: "token only in domain", sender: "bob@alerting.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := e.Extract(context.Background(), &core.Message{Sender: tt.sender, Subject: "hi"})
			assert.Equal(t, tt.wantSuspicious, f.SuspiciousSender)
			assert.Equal(t, tt.wantTrusted, f.TrustedSender)
		})
	}
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		sender     string
		wantLocal  string
		wantDomain string
	}{
		{"bob@example.com", "bob", "example.com"},
		{"Bob Smith <Bob@Example.COM>", "bob", "example.com"},
		{"\"Weird, Name\" <x@y.org>", "x", "y.org"},
		{"broken <a@b.c", "broken <a", "b.c"},
		{"no-address", "no-address", ""},
	}

	for _, tt := range tests {
		t.Run(tt.sender, func(t *testing.T) {
			local, domain := SplitAddress(tt.sender)
			assert.Equal(t, tt.wantLocal, local)
			assert.Equal(t, tt.wantDomain, domain)
		})
	}
}
