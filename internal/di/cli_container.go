package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/logging"
)

// CLIFlags contains the command line overrides of the one-shot commands
type CLIFlags struct {
	ConfigFile string
	Verbose    bool
	JSONLog    bool

	// Provider overrides classifier.provider when set
	Provider string

	// Alert lets the score command dispatch real alerts
	Alert bool
}

// BuildCLIContainer creates a container for one-shot commands. The logger
// writes to the console and flag overrides are applied on top of the
// configuration file.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		cfg, err := config.New(flags.ConfigFile)
		if err != nil {
			return nil, err
		}
		if used := cfg.GetViper().ConfigFileUsed(); used != "" {
			logger.Debug("Loaded configuration from file", zap.String("file", used))
		}
		applyFlags(cfg, flags)
		return cfg, nil
	}); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}
	return container, nil
}

// applyFlags sets the command line overrides on the configuration
func applyFlags(cfg *config.Config, flags *CLIFlags) {
	if flags.Provider != "" {
		cfg.Set("classifier.provider", flags.Provider)
	}
	if !flags.Alert {
		cfg.Set("alert.enable_sms", false)
		cfg.Set("alert.enable_whatsapp", false)
		cfg.Set("alert.enable_email", false)
	}
}
