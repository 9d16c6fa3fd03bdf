package scoringclient

import (
	"context"
	"time"

	"github.com/mikey/phishwatch/internal/core"
)

// Analyzer is the part of the analysis service the in-process client needs
type Analyzer interface {
	Analyze(ctx context.Context, msg *core.Message) (*core.Analysis, error)
}

// InProcess calls the analysis service directly, bounded by a timeout
type InProcess struct {
	service Analyzer
	timeout time.Duration
}

// NewInProcess wraps an analysis service
func NewInProcess(service Analyzer, timeout time.Duration) *InProcess {
	return &InProcess{service: service, timeout: timeout}
}

// Analyze scores the message. A timeout that expires while the service is
// still running returns the context error; the service call is not aborted
// beyond what it does with its own context.
func (c *InProcess) Analyze(ctx context.Context, msg *core.Message) (*core.Analysis, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	type result struct {
		analysis *core.Analysis
		err      error
	}
	done := make(chan result, 1)
	go func() {
		a, err := c.service.Analyze(ctx, msg)
		done <- result{analysis: a, err: err}
	}()

	select {
	case r := <-done:
		return r.analysis, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
