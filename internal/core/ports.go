package core

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidRequest is returned when a scoring request lacks sender or subject
	ErrInvalidRequest = errors.New("missing sender/subject")

	// ErrTransport marks a failure of the alert transport itself rather than of one channel
	ErrTransport = errors.New("alert transport unavailable")
)

// Classifier produces a phishing probability for free text
type Classifier interface {
	// Available reports whether the classifier can be used
	Available() bool

	// Predict returns the probability in [0,1] that the text is phishing
	Predict(ctx context.Context, text string) (float64, error)
}

// DomainAgeLookup resolves how long ago a domain was registered
type DomainAgeLookup interface {
	DomainAge(ctx context.Context, host string) (time.Duration, error)
}

// CooldownLedger records when an alert was last sent for a dedupe key.
//
// Reserve atomically checks the cooldown window and claims the key for one
// in-flight send. A reservation is finished with Commit on success or Release
// when nothing was delivered.
type CooldownLedger interface {
	Reserve(ctx context.Context, key string, now time.Time, window time.Duration) (bool, error)
	Commit(ctx context.Context, key string, at time.Time) error
	Release(ctx context.Context, key string) error
	LastSent(ctx context.Context, key string) (time.Time, bool, error)
}

// AlertChannel delivers a short alert body to a human
type AlertChannel interface {
	Name() string
	// Transport names the outbound service shared by channels, an
	// ErrTransport from one channel skips the rest on the same transport
	Transport() string
	Available() bool
	Send(ctx context.Context, body string) (string, error)
}

// AuditSink persists one record per processed message
type AuditSink interface {
	Log(ctx context.Context, record *AuditRecord) error
	RecordFeedback(ctx context.Context, feedback *Feedback) error
	Close() error
}

// FeatureExtractor computes phishing signals for a message
type FeatureExtractor interface {
	Extract(ctx context.Context, msg *Message) Features
	LinkReputation(ctx context.Context, url string) int
}

// RiskScorer turns a message and its features into a risk score
type RiskScorer interface {
	Score(ctx context.Context, msg *Message, features Features) RiskScore
	BaseScore(ctx context.Context, text string) (float64, string)
	ClassifierAvailable() bool
}

// AlertDispatcher decides on and delivers alerts under the cooldown policy
type AlertDispatcher interface {
	Dispatch(ctx context.Context, key string, score float64, summary AlertSummary) AlertResult
	Enabled() bool
}
