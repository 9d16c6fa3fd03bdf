package factory

import (
	"github.com/mikey/phishwatch/internal/adapters/smtpalert"
	"github.com/mikey/phishwatch/internal/adapters/twilio"
	"github.com/mikey/phishwatch/internal/alert"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/metrics"
	"go.uber.org/zap"
)

// AlertFactory creates the alert channels and the dispatcher
type AlertFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewAlertFactory creates a new alert factory
func NewAlertFactory(cfg *config.Config, logger *zap.Logger) *AlertFactory {
	return &AlertFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateChannels returns the enabled channels in delivery order: primary
// SMS, backup SMS, WhatsApp, e-mail. Channels missing credentials or
// numbers are still returned and report themselves unavailable.
func (f *AlertFactory) CreateChannels(alertCfg config.AlertConfig) []core.AlertChannel {
	var channels []core.AlertChannel

	tw := f.cfg.GetTwilio()
	if alertCfg.EnableSMS || alertCfg.EnableWhatsApp {
		var api twilio.MessageCreator
		if tw.AccountSID != "" && tw.AuthToken != "" {
			api = twilio.NewRestAPI(tw.AccountSID, tw.AuthToken)
		}

		if alertCfg.EnableSMS {
			channels = append(channels,
				twilio.NewChannel(twilio.NameSMSPrimary, tw.FromSMS, tw.ToPrimary, api, f.logger),
				twilio.NewChannel(twilio.NameSMSBackup, tw.FromSMS, tw.ToBackup, api, f.logger),
			)
		}
		if alertCfg.EnableWhatsApp {
			channels = append(channels, twilio.NewWhatsAppChannel(tw.FromWhatsApp, tw.ToPrimary, api, f.logger))
		}
	}

	if alertCfg.EnableEmail {
		smtpCfg := f.cfg.GetSMTP()
		channels = append(channels, smtpalert.NewChannel(smtpalert.Options{
			Host:     smtpCfg.Address,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			From:     smtpCfg.From,
			To:       smtpCfg.To,
			StartTLS: smtpCfg.StartTLS,
		}, alertCfg.Brand, f.logger))
	}

	for _, ch := range channels {
		f.logger.Info("Alert channel configured",
			zap.String("channel", ch.Name()),
			zap.Bool("available", ch.Available()))
	}

	return channels
}

// HasCredentials reports whether any enabled transport has outbound
// credentials. Channels may still lack destination numbers or addresses.
func (f *AlertFactory) HasCredentials(alertCfg config.AlertConfig) bool {
	tw := f.cfg.GetTwilio()
	if (alertCfg.EnableSMS || alertCfg.EnableWhatsApp) && tw.AccountSID != "" && tw.AuthToken != "" {
		return true
	}
	return alertCfg.EnableEmail && f.cfg.GetSMTP().Address != ""
}

// CreateDispatcher builds the dispatcher over the ledger
func (f *AlertFactory) CreateDispatcher(l core.CooldownLedger, m *metrics.Metrics) (*alert.Dispatcher, error) {
	alertCfg, err := f.cfg.GetAlert()
	if err != nil {
		return nil, err
	}

	channels := f.CreateChannels(alertCfg)
	enabled := f.HasCredentials(alertCfg)
	if !enabled {
		f.logger.Warn("No alert transport credentials configured, alerting disabled")
	}

	return alert.NewDispatcher(l, channels, alert.Options{
		Enabled:        enabled,
		Threshold:      alertCfg.Threshold,
		Cooldown:       alertCfg.Cooldown,
		Brand:          alertCfg.Brand,
		ChannelTimeout: alertCfg.ChannelTimeout,
	}, m, f.logger), nil
}
