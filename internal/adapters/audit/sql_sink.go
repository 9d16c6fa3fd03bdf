package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// dialect carries the per-driver schema and statements
type dialect struct {
	name           string
	schema         []string
	insertLog      string
	insertFeedback string
}

// SQLSink is a database/sql implementation of core.AuditSink
type SQLSink struct {
	db      *sql.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLSink(db *sql.DB, d dialect, logger *zap.Logger) (*SQLSink, error) {
	for _, stmt := range d.schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s audit schema: %w", d.name, err)
		}
	}

	logger.Info("Audit sink ready", zap.String("driver", d.name))
	return &SQLSink{db: db, dialect: d, logger: logger}, nil
}

// Log appends one row to phish_logs
func (s *SQLSink) Log(ctx context.Context, r *core.AuditRecord) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.insertLog,
		r.MessageID,
		r.Sender,
		r.Subject,
		r.Score,
		string(r.Level),
		r.AlertSent,
		string(r.Status),
		r.Features,
		ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	s.logger.Debug("Audit record written", zap.String("message_id", r.MessageID))
	return nil
}

// RecordFeedback appends one row to phish_feedback
func (s *SQLSink) RecordFeedback(ctx context.Context, f *core.Feedback) error {
	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.db.ExecContext(ctx, s.dialect.insertFeedback,
		f.MessageID,
		f.Label,
		f.Note,
		ts.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLSink) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close %s audit database: %w", s.dialect.name, err)
	}
	return nil
}
