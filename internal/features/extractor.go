package features

import (
	"context"
	"net/mail"
	"strings"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/whitelist"
	"go.uber.org/zap"
)

var (
	automatedSenderTokens = []string{"noreply", "no-reply", "alert"}
	urgencyKeywords       = []string{"urgent", "immediately", "alert", "important", "action required"}
	suspiciousKeywords    = []string{"verify", "password", "account", "security", "update"}
)

// DefaultLookupTimeout bounds a single domain age lookup
const DefaultLookupTimeout = 3 * time.Second

// Extractor turns a message into a flat set of phishing signals
type Extractor struct {
	ageLookup     core.DomainAgeLookup
	lookupTimeout time.Duration
	trusted       *whitelist.Checker
	logger        *zap.Logger
}

// NewExtractor creates a new feature extractor. ageLookup and trusted may be nil.
func NewExtractor(
	ageLookup core.DomainAgeLookup,
	lookupTimeout time.Duration,
	trusted *whitelist.Checker,
	logger *zap.Logger,
) *Extractor {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		ageLookup:     ageLookup,
		lookupTimeout: lookupTimeout,
		trusted:       trusted,
		logger:        logger,
	}
}

// Extract computes the features of msg. It never fails; a failed
// lookup only removes its contribution.
func (e *Extractor) Extract(ctx context.Context, msg *core.Message) core.Features {
	localPart, domain := SplitAddress(msg.Sender)

	f := core.Features{
		SenderDomain:      domain,
		SuspiciousSender:  containsAny(localPart, automatedSenderTokens),
		SubjectLength:     len([]rune(msg.Subject)),
		SubjectUrgency:    containsAny(strings.ToLower(msg.Subject), urgencyKeywords),
		SubjectSuspicious: containsAny(strings.ToLower(msg.Subject), suspiciousKeywords),
		ContentLength:     len([]rune(msg.Body)),
		HasLinks:          len(msg.Links) > 0,
		LinkCount:         len(msg.Links),
		SPFPass:           passed(msg.AuthResults, "spf"),
		DKIMPass:          passed(msg.AuthResults, "dkim"),
		DMARCPass:         passed(msg.AuthResults, "dmarc"),
	}

	if domain != "" && e.trusted.IsTrusted(domain) {
		f.TrustedSender = true
		f.SuspiciousSender = false
	}

	if len(msg.Links) > 0 {
		f.LinkReputation = make(map[string]int, len(msg.Links))
		for _, link := range msg.Links {
			rep := e.LinkReputation(ctx, link)
			f.LinkReputation[link] = rep
			if rep > SuspiciousLinkThreshold {
				f.SuspiciousLinkCount++
			}
		}
	}
	f.HasSuspiciousLinks = f.SuspiciousLinkCount > 0

	return f
}

// SplitAddress returns the lower-cased local part and domain of a sender.
// Display names and angle brackets are accepted.
func SplitAddress(sender string) (string, string) {
	addr := strings.TrimSpace(sender)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	} else if start, end := strings.LastIndexByte(addr, '<'), strings.LastIndexByte(addr, '>'); start >= 0 && end > start {
		addr = addr[start+1 : end]
	}

	addr = strings.ToLower(addr)
	at := strings.LastIndexByte(addr, '@')
	if at < 0 {
		return addr, ""
	}
	return addr[:at], addr[at+1:]
}

func passed(results map[string]string, mechanism string) bool {
	return strings.EqualFold(strings.TrimSpace(results[mechanism]), "pass")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
