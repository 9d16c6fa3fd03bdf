package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mikey/phishwatch/internal/adapters/audit"
	"github.com/mikey/phishwatch/internal/adapters/ledger"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// minLedgerRetention keeps last-sent times around well past a typical cooldown
const minLedgerRetention = 24 * time.Hour

// StorageFactory creates the cooldown ledger and the audit sink
type StorageFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config, logger *zap.Logger) *StorageFactory {
	return &StorageFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateLedger creates the cooldown ledger named by ledger.type
func (f *StorageFactory) CreateLedger(ctx context.Context) (core.CooldownLedger, error) {
	ledgerCfg, err := f.cfg.GetLedger()
	if err != nil {
		return nil, err
	}
	alertCfg, err := f.cfg.GetAlert()
	if err != nil {
		return nil, err
	}

	retention := alertCfg.Cooldown
	if retention < minLedgerRetention {
		retention = minLedgerRetention
	}

	switch ledgerCfg.Type {
	case "memory":
		return ledger.NewMemoryLedger(f.logger, retention, ledgerCfg.CleanupFrequency), nil
	case "redis":
		l, err := ledger.NewRedisLedger(ctx, ledgerCfg.RedisURL, ledgerCfg.KeyPrefix, retention, f.logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	default:
		return nil, fmt.Errorf("unsupported ledger type: %s", ledgerCfg.Type)
	}
}

// CreateAuditSink creates the audit sink named by audit.type
func (f *StorageFactory) CreateAuditSink() (core.AuditSink, error) {
	auditCfg := f.cfg.GetAudit()

	var (
		sink *audit.SQLSink
		err  error
	)
	switch auditCfg.Type {
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(auditCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		sink, err = audit.NewSQLiteSink(auditCfg.SQLitePath, f.logger)
	case "mysql":
		sink, err = audit.NewMySQLSink(auditCfg.MySQLDSN, f.logger)
	case "postgres":
		sink, err = audit.NewPostgresSink(auditCfg.PostgresDSN, f.logger)
	case "none":
		return audit.NopSink{}, nil
	default:
		return nil, fmt.Errorf("unsupported audit type: %s", auditCfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return sink, nil
}
