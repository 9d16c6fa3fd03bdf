package smtpalert

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// Name is the channel name reported to the dispatcher
const Name = "email"

// Transport groups channels delivered through an SMTP relay
const Transport = "smtp"

const defaultTimeout = 30 * time.Second

// Options configures the SMTP alert channel
type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	// StartTLS upgrades the connection before authenticating and fails
	// when the server does not offer it
	StartTLS bool
}

// Channel delivers alert bodies as short plain-text e-mails
type Channel struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
	startTLS bool
	subject  string
	logger   *zap.Logger
	now      func() time.Time
}

// NewChannel creates an SMTP alert channel
func NewChannel(opts Options, brand string, logger *zap.Logger) *Channel {
	var recipients []string
	for _, r := range opts.To {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}

	return &Channel{
		host:     strings.TrimSpace(opts.Host),
		port:     opts.Port,
		username: opts.Username,
		password: opts.Password,
		from:     strings.TrimSpace(opts.From),
		to:       recipients,
		startTLS: opts.StartTLS,
		subject:  fmt.Sprintf("[%s] Phishing alert", brand),
		logger:   logger,
		now:      time.Now,
	}
}

// Name implements core.AlertChannel
func (c *Channel) Name() string {
	return Name
}

// Transport implements core.AlertChannel
func (c *Channel) Transport() string {
	return Transport
}

// Available reports whether a server, sender and recipient are configured
func (c *Channel) Available() bool {
	return c.host != "" && c.port > 0 && c.from != "" && len(c.to) > 0
}

// Send delivers body to every recipient and returns the Message-Id. Failures
// to reach or talk to the server are reported as core.ErrTransport, a
// rejection of every recipient is a plain channel error.
func (c *Channel) Send(ctx context.Context, body string) (string, error) {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	dialer := &net.Dialer{Timeout: defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to connect to SMTP server: %w: %v", core.ErrTransport, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeout)
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return "", fmt.Errorf("failed to set connection deadline: %w: %v", core.ErrTransport, err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	client, err := c.newClient(conn, hostname)
	if err != nil {
		return "", err
	}
	defer client.Close()

	if c.username != "" {
		if err := client.Auth(sasl.NewPlainClient("", c.username, c.password)); err != nil {
			return "", fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(c.from, nil); err != nil {
		return "", fmt.Errorf("MAIL FROM failed: %w", err)
	}

	recipientOK := false
	for _, rcpt := range c.to {
		if err := client.Rcpt(rcpt, nil); err != nil {
			c.logger.Warn("RCPT TO failed for recipient",
				zap.String("recipient", rcpt),
				zap.Error(err))
			continue
		}
		recipientOK = true
	}
	if !recipientOK {
		return "", errors.New("all recipients were rejected")
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), hostname)

	wc, err := client.Data()
	if err != nil {
		return "", fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(c.compose(messageID, body)); err != nil {
		wc.Close()
		return "", fmt.Errorf("failed to send alert data: %w: %v", core.ErrTransport, err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := client.Quit(); err != nil {
		c.logger.Warn("QUIT command failed", zap.Error(err))
	}

	return messageID, nil
}

// newClient greets the server, upgrading to TLS first when configured
func (c *Channel) newClient(conn net.Conn, hostname string) (*smtp.Client, error) {
	if c.startTLS {
		client, err := smtp.NewClientStartTLS(conn, &tls.Config{ServerName: c.host})
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("STARTTLS failed: %w: %v", core.ErrTransport, err)
		}
		return client, nil
	}

	client := smtp.NewClient(conn)
	if err := client.Hello(hostname); err != nil {
		client.Close()
		return nil, fmt.Errorf("EHLO failed: %w: %v", core.ErrTransport, err)
	}
	return client, nil
}

func (c *Channel) compose(messageID, body string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", c.from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(c.to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", c.subject)
	fmt.Fprintf(&b, "Date: %s\r\n", c.now().Format(time.RFC1123Z))
	fmt.Fprintf(&b, "Message-Id: %s\r\n", messageID)
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: text/plain; charset=us-ascii\r\n")
	fmt.Fprintf(&b, "\r\n%s\r\n", body)
	return b.Bytes()
}
