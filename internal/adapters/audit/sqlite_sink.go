package audit

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{`
		CREATE TABLE IF NOT EXISTS phish_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT,
			sender TEXT,
			subject TEXT,
			score INTEGER,
			level TEXT,
			alert_sent INTEGER,
			status TEXT,
			features TEXT,
			timestamp TEXT
		)`, `
		CREATE INDEX IF NOT EXISTS idx_phish_logs_message_id ON phish_logs(message_id)`, `
		CREATE TABLE IF NOT EXISTS phish_feedback (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT,
			label TEXT,
			note TEXT,
			timestamp TEXT
		)`,
	},
	insertLog: `
		INSERT INTO phish_logs (message_id, sender, subject, score, level, alert_sent, status, features, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertFeedback: `
		INSERT INTO phish_feedback (message_id, label, note, timestamp)
		VALUES (?, ?, ?, ?)`,
}

// NewSQLiteSink opens (or creates) a SQLite audit database
func NewSQLiteSink(dbPath string, logger *zap.Logger) (*SQLSink, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	return newSQLSink(db, sqliteDialect, logger)
}
