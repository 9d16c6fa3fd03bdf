package ports

import (
	"context"
	"errors"

	"github.com/mikey/phishwatch/internal/core"
)

// ErrNotFound is returned by a connector when a message id is unknown
var ErrNotFound = errors.New("message not found")

// TagHandle identifies a provider tag (a Gmail label id, a mailbox tag name)
type TagHandle string

// Filter narrows the candidate listing
type Filter struct {
	// Query is passed to the provider verbatim
	Query      string
	UnreadOnly bool
	PageSize   int
}

// MailConnector is the mailbox the scan controller pulls from
type MailConnector interface {
	// ListCandidates returns one page of message ids and the next page token ("" when done)
	ListCandidates(ctx context.Context, filter Filter, pageToken string) ([]string, string, error)

	// Fetch returns the message with its current tag names
	Fetch(ctx context.Context, id string) (*core.Message, error)

	// EnsureTag creates the tag if needed and returns its handle
	EnsureTag(ctx context.Context, name string) (TagHandle, error)

	// ApplyTag adds a tag to a message
	ApplyTag(ctx context.Context, id string, tag TagHandle) error

	// MarkProcessed sets the durable processed marker on a message
	MarkProcessed(ctx context.Context, id string) error
}

// ScoringClient reaches the scoring service, locally or over HTTP
type ScoringClient interface {
	Analyze(ctx context.Context, msg *core.Message) (*core.Analysis, error)
}

// Service is a long running component with an explicit lifecycle
type Service interface {
	Start() error
	Stop() error
}
