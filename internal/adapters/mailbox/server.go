package mailbox

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

// Server is an SMTP listener that delivers every accepted message into a Store
type Server struct {
	store           *Store
	logger          *zap.Logger
	listenAddr      string
	maxMessageBytes int64

	mu     sync.Mutex
	server *smtp.Server
	addr   net.Addr
}

// NewServer creates a new mailbox SMTP listener
func NewServer(store *Store, listenAddr string, maxMessageBytes int64, logger *zap.Logger) *Server {
	if maxMessageBytes <= 0 {
		maxMessageBytes = 10 * 1024 * 1024
	}
	return &Server{
		store:           store,
		logger:          logger,
		listenAddr:      listenAddr,
		maxMessageBytes: maxMessageBytes,
	}
}

// Start starts accepting mail
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("mailbox server already started")
	}

	srv := smtp.NewServer(&smtpBackend{store: s.store, logger: s.logger})
	srv.Addr = s.listenAddr
	srv.Domain = "localhost"
	srv.ReadTimeout = 30 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.MaxMessageBytes = s.maxMessageBytes
	srv.MaxRecipients = 50
	srv.AllowInsecureAuth = true

	l, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.server = srv
	s.addr = l.Addr()

	s.logger.Info("Mailbox SMTP listener starting", zap.String("address", s.addr.String()))

	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, smtp.ErrServerClosed) {
			s.logger.Error("SMTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop stops the listener
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server == nil {
		return nil
	}
	err := s.server.Close()
	s.server = nil
	return err
}

// Addr returns the bound address once started
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	store  *Store
	logger *zap.Logger
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{backend: b}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	backend    *smtpBackend
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = nil
}

// Mail sets the envelope sender
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data parses and stores the message
func (s *smtpSession) Data(r io.Reader) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		s.backend.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	msg, err := ParseMessage(raw)
	if err != nil {
		s.backend.logger.Warn("Rejecting unparseable message",
			zap.String("envelope_from", s.sender),
			zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	if msg.Sender == "" {
		msg.Sender = s.sender
	}

	id := s.backend.store.Add(msg)
	s.backend.logger.Info("Message received",
		zap.String("message_id", id),
		zap.String("from", msg.Sender),
		zap.Int("recipients", len(s.recipients)),
		zap.Int("links", len(msg.Links)))

	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}
