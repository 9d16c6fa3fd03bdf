package twilio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mikey/phishwatch/internal/core"
	twilioapi "github.com/twilio/twilio-go"
	"github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Channel names in delivery order
const (
	NameSMSPrimary = "sms_primary"
	NameSMSBackup  = "sms_backup"
	NameWhatsApp   = "whatsapp"
)

// Transport is shared by every Twilio backed channel
const Transport = "twilio"

const whatsAppPrefix = "whatsapp:"

// MessageCreator is the subset of the Twilio REST API used here
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Channel sends alert bodies through Twilio Programmable Messaging
type Channel struct {
	name   string
	from   string
	to     string
	api    MessageCreator
	logger *zap.Logger
}

// NewRestAPI builds the Twilio messages API from account credentials
func NewRestAPI(accountSID, authToken string) MessageCreator {
	c := twilioapi.NewRestClientWithParams(twilioapi.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return c.Api
}

// NewChannel creates a channel delivering from one number to another
func NewChannel(name, from, to string, api MessageCreator, logger *zap.Logger) *Channel {
	return &Channel{
		name:   name,
		from:   strings.TrimSpace(from),
		to:     strings.TrimSpace(to),
		api:    api,
		logger: logger,
	}
}

// NewWhatsAppChannel creates a channel that delivers over WhatsApp
func NewWhatsAppChannel(from, to string, api MessageCreator, logger *zap.Logger) *Channel {
	return NewChannel(NameWhatsApp, withWhatsAppPrefix(from), withWhatsAppPrefix(to), api, logger)
}

func withWhatsAppPrefix(number string) string {
	number = strings.TrimSpace(number)
	if number == "" || strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}

// Name implements core.AlertChannel
func (c *Channel) Name() string {
	return c.name
}

// Transport implements core.AlertChannel
func (c *Channel) Transport() string {
	return Transport
}

// Available reports whether both ends of the channel are configured
func (c *Channel) Available() bool {
	return c.api != nil && c.from != "" && c.to != "" &&
		c.from != whatsAppPrefix && c.to != whatsAppPrefix
}

// Send delivers body and returns the Twilio message SID. Errors that are not
// an API rejection are reported as core.ErrTransport.
func (c *Channel) Send(ctx context.Context, body string) (string, error) {
	params := &openapi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(c.to)
	params.SetBody(body)

	type result struct {
		sid string
		err error
	}
	ch := make(chan result, 1)

	go func() {
		resp, err := c.api.CreateMessage(params)
		if err != nil {
			ch <- result{err: err}
			return
		}
		sid := ""
		if resp != nil && resp.Sid != nil {
			sid = *resp.Sid
		}
		ch <- result{sid: sid}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("twilio %s: %w: %v", c.name, core.ErrTransport, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			var restErr *client.TwilioRestError
			if errors.As(r.err, &restErr) {
				return "", fmt.Errorf("twilio %s rejected message (code %d): %s", c.name, restErr.Code, restErr.Message)
			}
			return "", fmt.Errorf("twilio %s: %w: %v", c.name, core.ErrTransport, r.err)
		}
		c.logger.Debug("Twilio message created", zap.String("channel", c.name), zap.String("sid", r.sid))
		return r.sid, nil
	}
}
