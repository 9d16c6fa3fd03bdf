package factory

import (
	"context"
	"fmt"

	"github.com/mikey/phishwatch/internal/adapters/gmail"
	"github.com/mikey/phishwatch/internal/adapters/mailbox"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/ports"
	"github.com/mikey/phishwatch/internal/utils"
	"go.uber.org/zap"
)

// MailSource is the connector the scan controller reads from, plus the
// listener feeding it when the mailbox is local
type MailSource struct {
	Connector ports.MailConnector
	Listener  ports.Service
}

// ConnectorFactory creates the mail connector
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailSource creates the connector named by connector.type
func (f *ConnectorFactory) CreateMailSource(ctx context.Context) (*MailSource, error) {
	processed := f.cfg.GetLabels().Processed
	connectorType := f.cfg.GetConnector().Type

	switch connectorType {
	case "gmail":
		gmailCfg := f.cfg.GetGmail()
		svc, err := gmail.NewService(ctx, gmailCfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		limiter := utils.NewRateLimiter(gmailCfg.RequestsPerSecond, gmailCfg.Burst)
		return &MailSource{
			Connector: gmail.NewConnector(svc, gmailCfg.User, processed, limiter, f.logger),
		}, nil
	case "mailbox":
		mailboxCfg := f.cfg.GetMailbox()
		store := mailbox.NewStore(processed, mailboxCfg.Retention, mailboxCfg.CleanupFrequency, f.logger)
		return &MailSource{
			Connector: store,
			Listener:  mailbox.NewServer(store, mailboxCfg.ListenAddress, mailboxCfg.MaxMessageBytes, f.logger),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported connector type: %s", connectorType)
	}
}
