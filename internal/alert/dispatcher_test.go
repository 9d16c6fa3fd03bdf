package alert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mikey/phishwatch/internal/adapters/ledger"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	name      string
	transport string
	available bool
	err       error
	delay     time.Duration

	mu    sync.Mutex
	log   *[]string
	sends []string
}

func (c *fakeChannel) Name() string    { return c.name }
func (c *fakeChannel) Available() bool { return c.available }

func (c *fakeChannel) Transport() string {
	if c.transport == "" {
		return "twilio"
	}
	return c.transport
}

func (c *fakeChannel) Send(_ context.Context, body string) (string, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.log != nil {
		*c.log = append(*c.log, c.name)
	}
	if c.err != nil {
		return "", c.err
	}
	c.sends = append(c.sends, body)
	return fmt.Sprintf("%s-%d", c.name, len(c.sends)), nil
}

func (c *fakeChannel) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sends)
}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[core.AlertStatus]int
}

func (r *countingRecorder) AlertDispatched(status core.AlertStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[core.AlertStatus]int{}
	}
	r.counts[status]++
}

var (
	t0      = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	summary = core.AlertSummary{Sender: "no-reply@paypa1.com", Subject: "Verify your account", Link: "http://paypa1.xyz/login"}
)

func newTestDispatcher(t *testing.T, enabled bool, channels ...core.AlertChannel) (*Dispatcher, *ledger.MemoryLedger, *time.Time) {
	t.Helper()
	l := ledger.NewMemoryLedger(zap.NewNop(), 15*time.Minute, 0)
	t.Cleanup(func() { l.Close() })

	d := NewDispatcher(l, channels, Options{
		Enabled:   enabled,
		Threshold: 70,
		Cooldown:  15 * time.Minute,
		Brand:     "PhishWatch",
	}, nil, zap.NewNop())

	now := t0
	d.now = func() time.Time { return now }
	return d, l, &now
}

func TestDispatchDecisionOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled wins over everything", func(t *testing.T) {
		d, l, _ := newTestDispatcher(t, false, &fakeChannel{name: "sms", available: true})
		got := d.Dispatch(ctx, "k", 100, summary)
		assert.Equal(t, core.AlertResult{Status: core.AlertDisabled}, got)
		assert.Equal(t, 0, l.Len())
	})

	t.Run("below threshold", func(t *testing.T) {
		d, _, _ := newTestDispatcher(t, true, &fakeChannel{name: "sms", available: true})
		got := d.Dispatch(ctx, "k", 69.99, summary)
		assert.Equal(t, core.AlertResult{Status: core.AlertBelowThreshold}, got)
	})

	t.Run("threshold is inclusive", func(t *testing.T) {
		sms := &fakeChannel{name: "sms", available: true}
		d, _, _ := newTestDispatcher(t, true, sms)
		got := d.Dispatch(ctx, "k", 70, summary)
		assert.Equal(t, core.AlertResult{Sent: true, Status: core.AlertSent}, got)
		assert.Equal(t, 1, sms.count())
	})

	t.Run("no channel configured", func(t *testing.T) {
		d, l, _ := newTestDispatcher(t, true, &fakeChannel{name: "sms"})
		got := d.Dispatch(ctx, "k", 90, summary)
		assert.Equal(t, core.AlertResult{Status: core.AlertNoChannelConfigured}, got)

		_, found, err := l.LastSent(ctx, "k")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("cooldown checked before channel availability", func(t *testing.T) {
		sms := &fakeChannel{name: "sms", available: true}
		d, _, now := newTestDispatcher(t, true, sms)
		require.True(t, d.Dispatch(ctx, "k", 90, summary).Sent)

		sms.available = false
		*now = t0.Add(time.Minute)
		assert.Equal(t, core.AlertCooldown, d.Dispatch(ctx, "k", 90, summary).Status)
	})
}

func TestDispatchCooldown(t *testing.T) {
	ctx := context.Background()
	sms := &fakeChannel{name: "sms", available: true}
	d, l, now := newTestDispatcher(t, true, sms)

	first := d.Dispatch(ctx, "k", 91, summary)
	assert.Equal(t, core.AlertResult{Sent: true, Status: core.AlertSent}, first)

	last, found, err := l.LastSent(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, t0.Equal(last))

	*now = t0.Add(5 * time.Minute)
	assert.Equal(t, core.AlertResult{Status: core.AlertCooldown}, d.Dispatch(ctx, "k", 95, summary))

	*now = t0.Add(15 * time.Minute)
	assert.Equal(t, core.AlertResult{Sent: true, Status: core.AlertSent}, d.Dispatch(ctx, "k", 95, summary))

	*now = t0.Add(-time.Hour)
	assert.Equal(t, core.AlertCooldown, d.Dispatch(ctx, "k", 95, summary).Status, "clock moved backwards")

	assert.Equal(t, 2, sms.count())
	assert.Equal(t, core.AlertSent, d.Dispatch(ctx, "other", 95, summary).Status, "keys are independent")
}

func TestDispatchChannelOrderAndFailover(t *testing.T) {
	ctx := context.Background()
	var calls []string

	primary := &fakeChannel{name: "sms_primary", available: true, err: errors.New("invalid number"), log: &calls}
	backup := &fakeChannel{name: "sms_backup", available: true, log: &calls}
	whatsapp := &fakeChannel{name: "whatsapp", available: true, log: &calls}
	d, _, _ := newTestDispatcher(t, true, primary, backup, whatsapp)

	got := d.Dispatch(ctx, "k", 88, summary)

	assert.Equal(t, core.AlertResult{Sent: true, Status: core.AlertSent}, got)
	assert.Equal(t, []string{"sms_primary", "sms_backup", "whatsapp"}, calls)
	assert.Equal(t, 1, backup.count())
	assert.Equal(t, 1, whatsapp.count())
}

func TestDispatchAllChannelsFail(t *testing.T) {
	ctx := context.Background()
	sms := &fakeChannel{name: "sms", available: true, err: errors.New("rejected")}
	d, l, _ := newTestDispatcher(t, true, sms)

	got := d.Dispatch(ctx, "k", 88, summary)
	assert.Equal(t, core.AlertResult{Status: core.AlertError}, got)

	_, found, err := l.LastSent(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found, "ledger untouched when nothing was delivered")

	sms.err = nil
	assert.Equal(t, core.AlertSent, d.Dispatch(ctx, "k", 88, summary).Status, "retry is not blocked by cooldown")
}

func TestDispatchTransportErrorSkipsSameTransport(t *testing.T) {
	ctx := context.Background()
	var calls []string
	primary := &fakeChannel{name: "sms_primary", available: true, err: fmt.Errorf("dial: %w", core.ErrTransport), log: &calls}
	whatsapp := &fakeChannel{name: "whatsapp", available: true, log: &calls}
	d, l, _ := newTestDispatcher(t, true, primary, whatsapp)

	got := d.Dispatch(ctx, "k", 88, summary)

	assert.Equal(t, core.AlertResult{Status: core.AlertError}, got)
	assert.Equal(t, []string{"sms_primary"}, calls)
	_, found, _ := l.LastSent(ctx, "k")
	assert.False(t, found)
}

func TestDispatchTransportErrorKeepsOtherTransports(t *testing.T) {
	ctx := context.Background()
	var calls []string
	primary := &fakeChannel{name: "sms_primary", available: true, err: fmt.Errorf("timeout: %w", core.ErrTransport), log: &calls}
	backup := &fakeChannel{name: "sms_backup", available: true, log: &calls}
	email := &fakeChannel{name: "email", transport: "smtp", available: true, log: &calls}
	d, l, _ := newTestDispatcher(t, true, primary, backup, email)

	got := d.Dispatch(ctx, "k", 88, summary)

	assert.Equal(t, core.AlertResult{Sent: true, Status: core.AlertSent}, got)
	assert.Equal(t, []string{"sms_primary", "email"}, calls)
	assert.Equal(t, 0, backup.count())
	assert.Equal(t, 1, email.count())
	_, found, err := l.LastSent(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestDispatchConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	sms := &fakeChannel{name: "sms", available: true, delay: 20 * time.Millisecond}
	d, _, _ := newTestDispatcher(t, true, sms)

	var wg sync.WaitGroup
	results := make([]core.AlertResult, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.Dispatch(ctx, "same", 90, summary)
		}(i)
	}
	wg.Wait()

	sent := 0
	for _, r := range results {
		if r.Sent {
			sent++
		} else {
			assert.Equal(t, core.AlertCooldown, r.Status)
		}
	}
	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, sms.count())
}

func TestDispatchRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	rec := &countingRecorder{}
	l := ledger.NewMemoryLedger(zap.NewNop(), time.Minute, 0)
	defer l.Close()

	d := NewDispatcher(l, []core.AlertChannel{&fakeChannel{name: "sms", available: true}},
		Options{Enabled: true, Threshold: 70, Cooldown: time.Minute}, rec, zap.NewNop())

	d.Dispatch(ctx, "a", 10, summary)
	d.Dispatch(ctx, "a", 80, summary)
	d.Dispatch(ctx, "a", 80, summary)

	assert.Equal(t, map[core.AlertStatus]int{
		core.AlertBelowThreshold: 1,
		core.AlertSent:           1,
		core.AlertCooldown:       1,
	}, rec.counts)
}

func TestFormatBody(t *testing.T) {
	t.Run("accents folded to ascii", func(t *testing.T) {
		got := FormatBody("PhishWatch", 91.2, core.AlertSummary{
			Sender:  "Zoë <security@paypa1.com>",
			Subject: "Vérifiez votre compte 🔒",
			Link:    "http://paypa1-login.xyz/verify",
		})
		assert.Equal(t, "[PhishWatch] Risk 91/100 | From: Zoe <security@paypa1.com> | Subj: Verifiez votre compte  | Link: http://paypa1-login.xyz/verify", got)
	})

	t.Run("link segment omitted when empty", func(t *testing.T) {
		got := FormatBody("PhishWatch", 82.5, core.AlertSummary{Sender: "a@b.c", Subject: "hi"})
		assert.Equal(t, "[PhishWatch] Risk 82/100 | From: a@b.c | Subj: hi", got)
	})

	t.Run("fields and body are capped", func(t *testing.T) {
		got := FormatBody("PhishWatch", 100, core.AlertSummary{
			Sender:  strings.Repeat("B", 80),
			Subject: strings.Repeat("C", 80),
			Link:    "http://example.com/" + strings.Repeat("a", 50),
		})
		assert.Len(t, got, MaxBodyLength)
		assert.True(t, strings.HasPrefix(got, "[PhishWatch] Risk 100/100 | From: "+strings.Repeat("B", 37)+"... | Subj: "))
		assert.True(t, strings.HasSuffix(got, "..."))
	})
}
