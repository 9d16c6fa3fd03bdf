package smtpalert

import (
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/emersion/go-smtp"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type captured struct {
	from string
	to   []string
	data string
}

type captureBackend struct {
	mu       sync.Mutex
	messages []captured
	reject   map[string]bool
}

func (b *captureBackend) received() []captured {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]captured(nil), b.messages...)
}

func (b *captureBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &captureSession{backend: b}, nil
}

type captureSession struct {
	backend *captureBackend
	cur     captured
}

func (s *captureSession) Reset()        { s.cur = captured{} }
func (s *captureSession) Logout() error { return nil }

func (s *captureSession) Mail(from string, _ *smtp.MailOptions) error {
	s.cur.from = from
	return nil
}

func (s *captureSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.reject[to] {
		return &smtp.SMTPError{Code: 550, Message: "no such user"}
	}
	s.cur.to = append(s.cur.to, to)
	return nil
}

func (s *captureSession) Data(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.cur.data = string(b)
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.cur)
	s.backend.mu.Unlock()
	return nil
}

func startServer(t *testing.T, be *captureBackend) (string, int) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := smtp.NewServer(be)
	srv.Domain = "localhost"
	srv.AllowInsecureAuth = true
	go srv.Serve(l)
	t.Cleanup(func() { srv.Close() })

	host, portStr, err := net.SplitHostPort(l.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return host, port
}

func plainOptions(host string, port int, to ...string) Options {
	return Options{Host: host, Port: port, From: "alerts@example.com", To: to}
}

func TestChannelAvailable(t *testing.T) {
	logger := zaptest.NewLogger(t)
	assert.True(t, NewChannel(plainOptions("smtp.example.com", 587, "soc@example.com"), "PhishWatch", logger).Available())
	assert.False(t, NewChannel(plainOptions("", 587, "soc@example.com"), "PhishWatch", logger).Available())
	assert.False(t, NewChannel(plainOptions("smtp.example.com", 587, " "), "PhishWatch", logger).Available())
}

func TestChannelSend(t *testing.T) {
	be := &captureBackend{reject: map[string]bool{"gone@example.com": true}}
	host, port := startServer(t, be)

	ch := NewChannel(plainOptions(host, port, "soc@example.com", "gone@example.com"), "PhishWatch", zaptest.NewLogger(t))

	id, err := ch.Send(context.Background(), "[PhishWatch] Risk 91/100 | From: x | Subj: y")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "<"))

	got := be.received()
	require.Len(t, got, 1)
	msg := got[0]
	assert.Equal(t, "alerts@example.com", msg.from)
	assert.Equal(t, []string{"soc@example.com"}, msg.to)
	assert.Contains(t, msg.data, "Subject: [PhishWatch] Phishing alert\r\n")
	assert.Contains(t, msg.data, "Message-Id: "+id+"\r\n")
	assert.Contains(t, msg.data, "[PhishWatch] Risk 91/100 | From: x | Subj: y")
}

func TestChannelSendAllRecipientsRejected(t *testing.T) {
	be := &captureBackend{reject: map[string]bool{"soc@example.com": true}}
	host, port := startServer(t, be)

	ch := NewChannel(plainOptions(host, port, "soc@example.com"), "PhishWatch", zaptest.NewLogger(t))
	_, err := ch.Send(context.Background(), "body")

	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrTransport)
	assert.Empty(t, be.received())
}

func TestChannelSendUnreachable(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().(*net.TCPAddr)
	l.Close()

	ch := NewChannel(plainOptions("127.0.0.1", addr.Port, "soc@example.com"), "PhishWatch", zaptest.NewLogger(t))
	_, err = ch.Send(context.Background(), "body")

	assert.ErrorIs(t, err, core.ErrTransport)
}

func TestChannelSendStartTLSUnsupported(t *testing.T) {
	be := &captureBackend{}
	host, port := startServer(t, be)

	opts := plainOptions(host, port, "soc@example.com")
	opts.StartTLS = true
	ch := NewChannel(opts, "PhishWatch", zaptest.NewLogger(t))

	_, err := ch.Send(context.Background(), "body")

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrTransport)
	assert.Contains(t, err.Error(), "STARTTLS failed")
	assert.Empty(t, be.received())
}
