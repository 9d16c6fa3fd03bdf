package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestSink(t *testing.T) *SQLSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "phish_logs.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestSQLiteSinkLog(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	require.NoError(t, sink.Log(ctx, &core.AuditRecord{
		MessageID: "m1",
		Sender:    "security@paypa1.com",
		Subject:   "Verify your account",
		Score:     100,
		Level:     core.RiskHigh,
		AlertSent: true,
		Status:    core.AlertSent,
		Features:  `{"suspicious_links":3}`,
		Timestamp: ts,
	}))
	require.NoError(t, sink.Log(ctx, &core.AuditRecord{
		MessageID: "m2",
		Sender:    "a@b.c",
		Subject:   "hi",
		Level:     core.RiskLow,
		Status:    core.AlertScoringFailed,
		Features:  "{}",
		Timestamp: ts,
	}))

	rows, err := sink.db.QueryContext(ctx,
		`SELECT message_id, score, level, alert_sent, status, features, timestamp FROM phish_logs ORDER BY id`)
	require.NoError(t, err)
	defer rows.Close()

	type row struct {
		id, level, status, features, timestamp string
		score                                  int
		sent                                   bool
	}
	var got []row
	for rows.Next() {
		var r row
		require.NoError(t, rows.Scan(&r.id, &r.score, &r.level, &r.sent, &r.status, &r.features, &r.timestamp))
		got = append(got, r)
	}
	require.NoError(t, rows.Err())

	require.Len(t, got, 2)
	assert.Equal(t, row{id: "m1", score: 100, level: "HIGH", sent: true, status: "sent",
		features: `{"suspicious_links":3}`, timestamp: "2025-03-01T11:00:00Z"}, got[0])
	assert.Equal(t, 0, got[1].score)
	assert.Equal(t, "scoring_failed", got[1].status)
}

func TestSQLiteSinkFeedback(t *testing.T) {
	sink := newTestSink(t)
	ctx := context.Background()

	require.NoError(t, sink.RecordFeedback(ctx, &core.Feedback{MessageID: "m1", Label: "phishing"}))

	var label, ts string
	require.NoError(t, sink.db.QueryRowContext(ctx,
		`SELECT label, timestamp FROM phish_feedback WHERE message_id = ?`, "m1").Scan(&label, &ts))
	assert.Equal(t, "phishing", label)
	_, err := time.Parse(time.RFC3339, ts)
	assert.NoError(t, err)
}

func TestSQLiteSinkReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	logger := zaptest.NewLogger(t)

	sink, err := NewSQLiteSink(path, logger)
	require.NoError(t, err)
	require.NoError(t, sink.Log(context.Background(), &core.AuditRecord{MessageID: "m1"}))
	require.NoError(t, sink.Close())

	sink, err = NewSQLiteSink(path, logger)
	require.NoError(t, err)
	defer sink.Close()

	var n int
	require.NoError(t, sink.db.QueryRow(`SELECT COUNT(*) FROM phish_logs`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestNopSink(t *testing.T) {
	var sink core.AuditSink = NopSink{}
	assert.NoError(t, sink.Log(context.Background(), &core.AuditRecord{}))
	assert.NoError(t, sink.RecordFeedback(context.Background(), &core.Feedback{}))
	assert.NoError(t, sink.Close())
}
