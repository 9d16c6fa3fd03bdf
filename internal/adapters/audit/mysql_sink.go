package audit

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{`
		CREATE TABLE IF NOT EXISTS phish_logs (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			message_id VARCHAR(255),
			sender VARCHAR(512),
			subject TEXT,
			score INT,
			level VARCHAR(16),
			alert_sent BOOLEAN,
			status VARCHAR(32),
			features TEXT,
			timestamp VARCHAR(32),
			INDEX idx_phish_logs_message_id (message_id)
		)`, `
		CREATE TABLE IF NOT EXISTS phish_feedback (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			message_id VARCHAR(255),
			label VARCHAR(32),
			note TEXT,
			timestamp VARCHAR(32)
		)`,
	},
	insertLog: `
		INSERT INTO phish_logs (message_id, sender, subject, score, level, alert_sent, status, features, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	insertFeedback: `
		INSERT INTO phish_feedback (message_id, label, note, timestamp)
		VALUES (?, ?, ?, ?)`,
}

// NewMySQLSink connects to MySQL and prepares the audit tables
func NewMySQLSink(dsn string, logger *zap.Logger) (*SQLSink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	return newSQLSink(db, mysqlDialect, logger)
}
