package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{`
		CREATE TABLE IF NOT EXISTS phish_logs (
			id BIGSERIAL PRIMARY KEY,
			message_id VARCHAR(255),
			sender VARCHAR(512),
			subject TEXT,
			score INTEGER,
			level VARCHAR(16),
			alert_sent BOOLEAN,
			status VARCHAR(32),
			features TEXT,
			timestamp VARCHAR(32)
		)`, `
		CREATE INDEX IF NOT EXISTS idx_phish_logs_message_id ON phish_logs(message_id)`, `
		CREATE TABLE IF NOT EXISTS phish_feedback (
			id BIGSERIAL PRIMARY KEY,
			message_id VARCHAR(255),
			label VARCHAR(32),
			note TEXT,
			timestamp VARCHAR(32)
		)`,
	},
	insertLog: `
		INSERT INTO phish_logs (message_id, sender, subject, score, level, alert_sent, status, features, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
	insertFeedback: `
		INSERT INTO phish_feedback (message_id, label, note, timestamp)
		VALUES ($1, $2, $3, $4)`,
}

// NewPostgresSink connects to PostgreSQL and prepares the audit tables
func NewPostgresSink(connStr string, logger *zap.Logger) (*SQLSink, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLSink(db, postgresDialect, logger)
}
