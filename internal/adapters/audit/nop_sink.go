package audit

import (
	"context"

	"github.com/mikey/phishwatch/internal/core"
)

// NopSink discards every record
type NopSink struct{}

func (NopSink) Log(context.Context, *core.AuditRecord) error         { return nil }
func (NopSink) RecordFeedback(context.Context, *core.Feedback) error { return nil }
func (NopSink) Close() error                                         { return nil }
