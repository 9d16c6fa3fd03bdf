package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/features"
	"github.com/mikey/phishwatch/internal/ports"
	"github.com/mikey/phishwatch/internal/utils"
	"go.uber.org/zap"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Connector reads a Gmail mailbox through the Gmail API. It implements
// ports.MailConnector.
type Connector struct {
	svc            *gmailapi.Service
	user           string
	processedLabel string
	labels         *LabelCache
	limiter        *utils.RateLimiter
	logger         *zap.Logger
}

// NewService builds a Gmail API client from a credentials file (service
// account or authorized user JSON)
func NewService(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*gmailapi.Service, error) {
	opts = append([]option.ClientOption{
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(gmailapi.GmailModifyScope),
	}, opts...)

	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}
	return svc, nil
}

// NewConnector creates a Gmail connector. processedLabel names the label
// used as the durable processed marker and excluded from listings.
func NewConnector(svc *gmailapi.Service, user, processedLabel string, limiter *utils.RateLimiter, logger *zap.Logger) *Connector {
	if user == "" {
		user = "me"
	}
	return &Connector{
		svc:            svc,
		user:           user,
		processedLabel: processedLabel,
		labels:         NewLabelCache(),
		limiter:        limiter,
		logger:         logger,
	}
}

// BuildQuery composes the Gmail search query for a filter
func (c *Connector) BuildQuery(filter ports.Filter) string {
	q := strings.TrimSpace(filter.Query)
	if filter.UnreadOnly {
		if q != "" {
			q = "(" + q + ") is:unread"
		} else {
			q = "is:unread"
		}
	}
	if c.processedLabel != "" {
		exclude := "-label:" + labelSearchName(c.processedLabel)
		if q != "" {
			q += " " + exclude
		} else {
			q = exclude
		}
	}
	return q
}

// labelSearchName converts a label name to its search form
func labelSearchName(name string) string {
	return strings.ReplaceAll(strings.TrimSpace(name), " ", "-")
}

// ListCandidates returns one page of message ids
func (c *Connector) ListCandidates(ctx context.Context, filter ports.Filter, pageToken string) ([]string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	call := c.svc.Users.Messages.List(c.user).Q(c.BuildQuery(filter)).Context(ctx)
	if filter.PageSize > 0 {
		call = call.MaxResults(int64(filter.PageSize))
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, resp.NextPageToken, nil
}

// Fetch retrieves the full message with its label names
func (c *Connector) Fetch(ctx context.Context, id string) (*core.Message, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	m, err := c.svc.Users.Messages.Get(c.user, id).Format("full").Context(ctx).Do()
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, fmt.Errorf("%w: %s", ports.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	msg := &core.Message{
		ID:   m.Id,
		Body: m.Snippet,
	}

	if m.Payload != nil {
		msg.Sender = header(m.Payload.Headers, "From")
		msg.Subject = header(m.Payload.Headers, "Subject")
		msg.AuthResults = features.AuthResultsFromHeaders(
			headers(m.Payload.Headers, "Authentication-Results"),
			headers(m.Payload.Headers, "Received-SPF"),
		)
		msg.Links = utils.ExtractLinks(textParts(m.Payload)...)
	}

	names, complete := c.labels.Names(m.LabelIds)
	if !complete {
		if err := c.refreshLabels(ctx); err != nil {
			c.logger.Warn("Failed to refresh label cache", zap.Error(err))
		} else {
			names, _ = c.labels.Names(m.LabelIds)
		}
	}
	msg.Tags = names

	return msg, nil
}

// EnsureTag returns the id of the named label, creating it when missing
func (c *Connector) EnsureTag(ctx context.Context, name string) (ports.TagHandle, error) {
	if id, ok := c.labels.ID(name); ok {
		return ports.TagHandle(id), nil
	}

	if !c.labels.Loaded() {
		if err := c.refreshLabels(ctx); err != nil {
			return "", err
		}
		if id, ok := c.labels.ID(name); ok {
			return ports.TagHandle(id), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter wait failed: %w", err)
	}

	created, err := c.svc.Users.Labels.Create(c.user, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		// created concurrently elsewhere
		if isStatus(err, http.StatusConflict) {
			if rerr := c.refreshLabels(ctx); rerr == nil {
				if id, ok := c.labels.ID(name); ok {
					return ports.TagHandle(id), nil
				}
			}
		}
		return "", fmt.Errorf("failed to create label %q: %w", name, err)
	}

	c.labels.Put(created.Id, created.Name)
	c.logger.Info("Created Gmail label", zap.String("label", created.Name), zap.String("label_id", created.Id))
	return ports.TagHandle(created.Id), nil
}

// ApplyTag adds a label to a message
func (c *Connector) ApplyTag(ctx context.Context, id string, tag ports.TagHandle) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	_, err := c.svc.Users.Messages.Modify(c.user, id, &gmailapi.ModifyMessageRequest{
		AddLabelIds: []string{string(tag)},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to label message %s: %w", id, err)
	}
	return nil
}

// MarkProcessed adds the processed label to a message
func (c *Connector) MarkProcessed(ctx context.Context, id string) error {
	if c.processedLabel == "" {
		return nil
	}
	tag, err := c.EnsureTag(ctx, c.processedLabel)
	if err != nil {
		return err
	}
	return c.ApplyTag(ctx, id, tag)
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

func header(hs []*gmailapi.MessagePartHeader, name string) string {
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func headers(hs []*gmailapi.MessagePartHeader, name string) []string {
	var out []string
	for _, h := range hs {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// textParts decodes every text/plain and text/html body in the part tree
func textParts(p *gmailapi.MessagePart) []string {
	if p == nil {
		return nil
	}

	var out []string
	mimeType := strings.ToLower(p.MimeType)
	if p.Body != nil && p.Body.Data != "" && (strings.Contains(mimeType, "text/plain") || strings.Contains(mimeType, "text/html")) {
		data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(p.Body.Data, "="))
		if err == nil {
			out = append(out, string(data))
		}
	}
	for _, child := range p.Parts {
		out = append(out, textParts(child)...)
	}
	return out
}
