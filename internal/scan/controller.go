package scan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/metrics"
	"github.com/mikey/phishwatch/internal/ports"
	"github.com/mikey/phishwatch/internal/utils"
	"go.uber.org/zap"
)

// Scan modes
const (
	ModeSweep = "sweep"
	ModePoll  = "poll"
)

// NoSubject replaces an empty subject before scoring
const NoSubject = "(no subject)"

// Stage is the furthest step a message reached in one pass
type Stage string

const (
	StageDiscovered Stage = "discovered"
	StageFetched    Stage = "fetched"
	StageScored     Stage = "scored"
	StageAlerted    Stage = "alerted"
	StageSuppressed Stage = "suppressed"
	StageTagged     Stage = "tagged"
	StageMarked     Stage = "marked"
)

// Options configures the controller
type Options struct {
	Query        string
	OnlyUnread   bool
	PageSize     int
	PollInterval time.Duration

	// InitialFullScan runs one backlog sweep before polling starts
	InitialFullScan bool

	// CallTimeout bounds each connector call, ScoringTimeout each scoring attempt
	CallTimeout    time.Duration
	ScoringTimeout time.Duration

	ApplyScoreTag bool
	ScorePrefix   string
}

// Result is the outcome of processing one message
type Result struct {
	MessageID string
	Stage     Stage
	Score     float64
	Level     core.RiskLevel
	Alert     core.AlertResult
	Tag       string
}

// CycleStats summarizes one sweep or poll cycle
type CycleStats struct {
	Listed      int
	Skipped     int
	Processed   int
	FetchFailed int
}

// Controller pulls candidate messages from a mail connector, scores them
// and records the outcome on the provider and in the audit sink.
type Controller struct {
	connector ports.MailConnector
	scoring   ports.ScoringClient
	audit     core.AuditSink
	retry     utils.RetryPolicy
	opts      Options
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time

	// processed is only touched from the goroutine running the cycles
	processed ProcessedSet

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewController creates a new scan controller
func NewController(
	connector ports.MailConnector,
	scoring ports.ScoringClient,
	audit core.AuditSink,
	retry utils.RetryPolicy,
	opts Options,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 20 * time.Second
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.ScoringTimeout <= 0 {
		opts.ScoringTimeout = 30 * time.Second
	}

	return &Controller{
		connector: connector,
		scoring:   scoring,
		audit:     audit,
		retry:     retry,
		opts:      opts,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		processed: NewProcessedSet(),
	}
}

// Start runs the controller in the background until Stop is called
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return fmt.Errorf("scan controller already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})

	go func() {
		defer close(c.done)
		c.Run(ctx)
	}()
	return nil
}

// Stop signals the controller and waits for the running cycle to finish
func (c *Controller) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Run performs the optional backlog sweep and then polls every interval
// until ctx is cancelled. Cancellation is only observed between cycles.
func (c *Controller) Run(ctx context.Context) {
	c.logger.Info("Scan controller started",
		zap.Duration("poll_interval", c.opts.PollInterval),
		zap.String("query", c.opts.Query),
		zap.Bool("only_unread", c.opts.OnlyUnread),
		zap.Bool("initial_full_scan", c.opts.InitialFullScan))

	if c.opts.InitialFullScan && ctx.Err() == nil {
		if _, err := c.Sweep(ctx); err != nil {
			c.logger.Error("Backlog sweep failed", zap.Error(err))
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Scan controller stopped", zap.Int("processed", c.processed.Len()))
			return
		case <-timer.C:
		}

		if _, err := c.Poll(ctx); err != nil {
			c.logger.Error("Poll cycle failed", zap.Error(err))
		}
		timer.Reset(c.opts.PollInterval)
	}
}

// Sweep pages through every message matching the query regardless of read state
func (c *Controller) Sweep(ctx context.Context) (CycleStats, error) {
	filter := ports.Filter{Query: c.opts.Query, PageSize: c.opts.PageSize}
	return c.cycle(ctx, ModeSweep, filter)
}

// Poll runs one incremental cycle with the configured filter
func (c *Controller) Poll(ctx context.Context) (CycleStats, error) {
	filter := ports.Filter{Query: c.opts.Query, UnreadOnly: c.opts.OnlyUnread, PageSize: c.opts.PageSize}
	return c.cycle(ctx, ModePoll, filter)
}

// Processed returns the number of ids handled so far
func (c *Controller) Processed() int {
	return c.processed.Len()
}

func (c *Controller) cycle(ctx context.Context, mode string, filter ports.Filter) (stats CycleStats, err error) {
	// a started cycle runs to completion
	ctx = context.WithoutCancel(ctx)

	// messages recover their own panics, this covers listing
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Recovered from panic in scan cycle",
				zap.String("mode", mode),
				zap.Any("panic", r))
			err = fmt.Errorf("panic in %s cycle: %v", mode, r)
		}
	}()

	err = c.metrics.TrackCycle(mode, func() error {
		var cycleErr error
		stats, cycleErr = c.enumerate(ctx, mode, filter)
		return cycleErr
	})

	c.logger.Info("Scan cycle complete",
		zap.String("mode", mode),
		zap.Int("listed", stats.Listed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("processed", stats.Processed),
		zap.Int("fetch_failed", stats.FetchFailed))

	return stats, err
}

func (c *Controller) enumerate(ctx context.Context, mode string, filter ports.Filter) (CycleStats, error) {
	var stats CycleStats
	pageToken := ""

	for {
		listCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
		ids, next, err := c.connector.ListCandidates(listCtx, filter, pageToken)
		cancel()
		if err != nil {
			c.metrics.StageFailed(metrics.StageListing)
			return stats, fmt.Errorf("failed to list candidates: %w", err)
		}

		stats.Listed += len(ids)
		for _, id := range ids {
			if c.processed.Has(id) {
				stats.Skipped++
				c.metrics.MessageSkipped()
				continue
			}

			res := c.ProcessMessage(ctx, mode, id)
			if res.Stage == StageDiscovered {
				stats.FetchFailed++
				continue
			}
			stats.Processed++
		}

		if next == "" || next == pageToken || len(ids) == 0 {
			return stats, nil
		}
		pageToken = next
	}
}

// ProcessMessage runs one message through fetch, score, tag, mark and audit.
// The returned stage is StageDiscovered when the fetch failed. A panic is
// confined to the message: before the fetch completes it stays eligible for
// the next cycle, afterwards it is abandoned for this run.
func (c *Controller) ProcessMessage(ctx context.Context, mode, id string) (res Result) {
	res = Result{MessageID: id, Stage: StageDiscovered}
	logger := c.logger.With(zap.String("message_id", id), zap.String("mode", mode))

	defer func() {
		if r := recover(); r != nil {
			c.metrics.StageFailed(failedStage(res.Stage))
			logger.Error("Recovered from panic while processing message",
				zap.String("stage", string(res.Stage)),
				zap.Any("panic", r))
			if res.Stage != StageDiscovered {
				c.processed.Add(id)
			}
		}
	}()

	fetched, err := c.fetch(ctx, id)
	if err != nil {
		c.metrics.StageFailed(metrics.StageFetch)
		logger.Warn("Failed to fetch message, will retry next cycle", zap.Error(err))
		return res
	}
	res.Stage = StageFetched

	msg := fetched
	if strings.TrimSpace(fetched.Subject) == "" {
		cp := *fetched
		cp.Subject = NoSubject
		msg = &cp
	}

	analysis, scored := c.score(ctx, msg, logger)
	res.Stage = StageScored
	res.Score = analysis.RiskScore
	res.Level = analysis.RiskLevel
	res.Alert = analysis.Alert

	if analysis.Alert.Sent {
		res.Stage = StageAlerted
	} else {
		res.Stage = StageSuppressed
	}

	logger.Info("Analyzed message",
		zap.Float64("risk_score", res.Score),
		zap.String("risk_level", string(res.Level)),
		zap.Bool("alert_sent", res.Alert.Sent),
		zap.String("alert_status", string(res.Alert.Status)))

	if c.opts.ApplyScoreTag {
		res.Tag = c.tag(ctx, msg, res.Score, logger)
	}
	res.Stage = StageTagged

	markCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	err = c.connector.MarkProcessed(markCtx, id)
	cancel()
	if err != nil {
		c.metrics.StageFailed(metrics.StageMark)
		logger.Warn("Failed to mark message processed", zap.Error(err))
	}
	c.processed.Add(id)
	res.Stage = StageMarked

	c.writeAudit(ctx, msg, analysis, scored, logger)
	c.metrics.MessageProcessed(mode, res.Score)

	return res
}

// failedStage maps the last stage reached to the metrics stage that was running
func failedStage(reached Stage) string {
	switch reached {
	case StageDiscovered:
		return metrics.StageFetch
	case StageFetched:
		return metrics.StageScore
	case StageScored, StageAlerted, StageSuppressed:
		return metrics.StageTag
	case StageTagged:
		return metrics.StageMark
	default:
		return metrics.StageAudit
	}
}

func (c *Controller) fetch(ctx context.Context, id string) (*core.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()

	msg, err := c.connector.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = id
	}
	return msg, nil
}

// score calls the scoring client under the retry policy. On failure it
// returns a neutral analysis with score 0 and reports false.
func (c *Controller) score(ctx context.Context, msg *core.Message, logger *zap.Logger) (*core.Analysis, bool) {
	var analysis *core.Analysis
	attempt := 0

	err := c.retry.Do(ctx, func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.opts.ScoringTimeout)
		defer cancel()

		a, err := c.scoring.Analyze(callCtx, msg)
		if err != nil {
			return err
		}
		analysis = a
		return nil
	}, func(err error, wait time.Duration) {
		c.metrics.ScoringRetried()
		logger.Warn("Scoring call timed out, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err))
	})

	if err == nil && analysis != nil {
		return analysis, true
	}

	c.metrics.StageFailed(metrics.StageScore)
	logger.Error("Scoring failed, using neutral score",
		zap.Int("attempts", attempt),
		zap.Bool("timeout", utils.IsTimeout(err)),
		zap.Error(err))

	return &core.Analysis{
		MessageID: msg.ID,
		RiskScore: 0,
		RiskLevel: core.RiskLow,
		Alert:     core.AlertResult{Status: core.AlertScoringFailed},
		Timestamp: c.now().UTC(),
	}, false
}

// tag applies the score bucket tag unless one with the same prefix is present
func (c *Controller) tag(ctx context.Context, msg *core.Message, score float64, logger *zap.Logger) string {
	if HasTagWithPrefix(msg.Tags, c.opts.ScorePrefix) {
		logger.Debug("Score tag already present, skipping", zap.String("prefix", c.opts.ScorePrefix))
		return ""
	}

	name := ScoreTag(c.opts.ScorePrefix, score)

	ensureCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	handle, err := c.connector.EnsureTag(ensureCtx, name)
	cancel()
	if err != nil {
		c.metrics.StageFailed(metrics.StageTag)
		logger.Warn("Failed to ensure score tag", zap.String("tag", name), zap.Error(err))
		return ""
	}

	applyCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	err = c.connector.ApplyTag(applyCtx, msg.ID, handle)
	cancel()
	if err != nil {
		c.metrics.StageFailed(metrics.StageTag)
		logger.Warn("Failed to apply score tag", zap.String("tag", name), zap.Error(err))
		return ""
	}

	logger.Info("Applied score tag", zap.String("tag", name))
	return name
}

func (c *Controller) writeAudit(ctx context.Context, msg *core.Message, analysis *core.Analysis, scored bool, logger *zap.Logger) {
	if c.audit == nil {
		return
	}

	features := "{}"
	if scored {
		if b, err := json.Marshal(analysis.Features); err == nil {
			features = string(b)
		}
	}

	record := &core.AuditRecord{
		MessageID: msg.ID,
		Sender:    msg.Sender,
		Subject:   msg.Subject,
		Score:     int(analysis.RiskScore),
		Level:     analysis.RiskLevel,
		AlertSent: analysis.Alert.Sent,
		Status:    analysis.Alert.Status,
		Features:  features,
		Timestamp: c.now().UTC(),
	}

	auditCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	if err := c.audit.Log(auditCtx, record); err != nil {
		c.metrics.StageFailed(metrics.StageAudit)
		logger.Warn("Failed to write audit record", zap.Error(err))
	}
}
