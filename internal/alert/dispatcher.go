package alert

import (
	"context"
	"errors"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// Recorder receives one observation per dispatch decision
type Recorder interface {
	AlertDispatched(status core.AlertStatus)
}

// Options configures a Dispatcher
type Options struct {
	// Enabled is false when no outbound transport has credentials
	Enabled        bool
	Threshold      float64
	Cooldown       time.Duration
	Brand          string
	ChannelTimeout time.Duration
}

// Dispatcher decides whether a scored message warrants an alert and
// delivers it over the configured channels at most once per cooldown.
type Dispatcher struct {
	ledger   core.CooldownLedger
	channels []core.AlertChannel
	opts     Options
	now      func() time.Time
	recorder Recorder
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher. Channels are tried in the given order.
func NewDispatcher(
	ledger core.CooldownLedger,
	channels []core.AlertChannel,
	opts Options,
	recorder Recorder,
	logger *zap.Logger,
) *Dispatcher {
	if opts.ChannelTimeout <= 0 {
		opts.ChannelTimeout = 10 * time.Second
	}
	if opts.Brand == "" {
		opts.Brand = "PhishWatch"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		ledger:   ledger,
		channels: channels,
		opts:     opts,
		now:      time.Now,
		recorder: recorder,
		logger:   logger,
	}
}

// Enabled reports whether any transport is configured
func (d *Dispatcher) Enabled() bool {
	return d.opts.Enabled
}

// Dispatch evaluates, in order: transport disabled, score below threshold,
// cooldown for key, no usable channel, and finally delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, score float64, summary core.AlertSummary) core.AlertResult {
	result := d.dispatch(ctx, key, score, summary)
	if d.recorder != nil {
		d.recorder.AlertDispatched(result.Status)
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, key string, score float64, summary core.AlertSummary) core.AlertResult {
	if !d.opts.Enabled {
		return core.AlertResult{Status: core.AlertDisabled}
	}
	if score < d.opts.Threshold {
		return core.AlertResult{Status: core.AlertBelowThreshold}
	}

	now := d.now()
	reserved, err := d.ledger.Reserve(ctx, key, now, d.opts.Cooldown)
	if err != nil {
		d.logger.Error("Failed to check alert cooldown", zap.String("key", key), zap.Error(err))
		return core.AlertResult{Status: core.AlertError}
	}
	if !reserved {
		d.logger.Debug("Alert suppressed by cooldown", zap.String("key", key))
		return core.AlertResult{Status: core.AlertCooldown}
	}

	available := d.availableChannels()
	if len(available) == 0 {
		d.release(ctx, key)
		return core.AlertResult{Status: core.AlertNoChannelConfigured}
	}

	body := FormatBody(d.opts.Brand, score, summary)
	d.logger.Info("Sending alert", zap.Int("length", len(body)), zap.String("body", body))

	delivered := d.deliver(ctx, available, body)
	if delivered == 0 {
		d.release(ctx, key)
		return core.AlertResult{Status: core.AlertError}
	}

	if err := d.ledger.Commit(ctx, key, now); err != nil {
		d.logger.Error("Failed to record alert in cooldown ledger", zap.String("key", key), zap.Error(err))
	}
	return core.AlertResult{Sent: true, Status: core.AlertSent}
}

func (d *Dispatcher) deliver(ctx context.Context, channels []core.AlertChannel, body string) int {
	delivered := 0
	down := map[string]bool{}
	for _, ch := range channels {
		if down[ch.Transport()] {
			d.logger.Warn("Skipping alert channel, transport unreachable",
				zap.String("channel", ch.Name()),
				zap.String("transport", ch.Transport()))
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.opts.ChannelTimeout)
		id, err := ch.Send(sendCtx, body)
		cancel()

		if err != nil {
			d.logger.Error("Alert channel failed",
				zap.String("channel", ch.Name()),
				zap.Error(err))
			if errors.Is(err, core.ErrTransport) {
				down[ch.Transport()] = true
			}
			continue
		}

		delivered++
		d.logger.Info("Alert queued",
			zap.String("channel", ch.Name()),
			zap.String("delivery_id", id))
	}
	return delivered
}

func (d *Dispatcher) availableChannels() []core.AlertChannel {
	var out []core.AlertChannel
	for _, ch := range d.channels {
		if ch != nil && ch.Available() {
			out = append(out, ch)
		}
	}
	return out
}

func (d *Dispatcher) release(ctx context.Context, key string) {
	if err := d.ledger.Release(ctx, key); err != nil {
		d.logger.Warn("Failed to release cooldown reservation", zap.String("key", key), zap.Error(err))
	}
}
