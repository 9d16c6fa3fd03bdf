package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/phishwatch/internal/adapters/httpapi"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/di"
	"github.com/mikey/phishwatch/internal/factory"
	"github.com/mikey/phishwatch/internal/ports"
	"github.com/mikey/phishwatch/internal/scan"
	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scoring service and the background mailbox poller",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Build the dependency injection container
		container, err := di.BuildContainer(configFile)
		if err != nil {
			return fmt.Errorf("failed to build dependency container: %w", err)
		}

		// Run the application
		return container.Invoke(func(cfg *config.Config, logger *zap.Logger) error {
			return run(container, cfg, logger)
		})
	},
}

// run starts every enabled service and blocks until SIGINT or SIGTERM
func run(container *dig.Container, cfg *config.Config, logger *zap.Logger) error {
	defer logger.Sync()

	scanCfg, err := cfg.GetScan()
	if err != nil {
		return err
	}
	serverCfg, err := cfg.GetServer()
	if err != nil {
		return err
	}

	// Services start in order and stop in reverse
	var services []ports.Service
	var names []string

	if serverCfg.Enabled {
		if err := container.Invoke(func(s *httpapi.Server) {
			services = append(services, s)
			names = append(names, "http api")
		}); err != nil {
			return err
		}
	}

	var source *factory.MailSource
	if scanCfg.Enabled {
		if err := container.Invoke(func(src *factory.MailSource, c *scan.Controller) {
			source = src
			if source.Listener != nil {
				services = append(services, source.Listener)
				names = append(names, "mailbox listener")
			}
			services = append(services, c)
			names = append(names, "scan controller")
		}); err != nil {
			return err
		}
	}

	if len(services) == 0 {
		return fmt.Errorf("nothing to run: both scan.enabled and server.enabled are false")
	}

	started := 0
	for i, s := range services {
		if err := s.Start(); err != nil {
			logger.Error("Failed to start service", zap.String("service", names[i]), zap.Error(err))
			stopServices(services[:started], names, logger)
			closeMailSource(source, logger)
			closeResources(container, logger)
			return err
		}
		started++
	}
	logger.Info("PhishWatch started", zap.Strings("services", names))

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Info("Shutting down...")

	stopServices(services, names, logger)
	closeMailSource(source, logger)
	closeResources(container, logger)

	logger.Info("Shutdown complete")
	return nil
}

func stopServices(services []ports.Service, names []string, logger *zap.Logger) {
	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(); err != nil {
			logger.Error("Failed to stop service", zap.String("service", names[i]), zap.Error(err))
		}
	}
}

// closeMailSource stops background work owned by the connector
func closeMailSource(source *factory.MailSource, logger *zap.Logger) {
	if source == nil {
		return
	}
	if closer, ok := source.Connector.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close mail connector", zap.Error(err))
		}
	}
}

// closeResources closes the ledger, the audit sink and the classifier
// when they hold connections
func closeResources(container *dig.Container, logger *zap.Logger) {
	_ = container.Invoke(func(
		classifier core.Classifier,
		ledger core.CooldownLedger,
		audit core.AuditSink,
	) {
		if closer, ok := classifier.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close classifier", zap.Error(err))
			}
		}
		if closer, ok := ledger.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				logger.Error("Failed to close cooldown ledger", zap.Error(err))
			}
		}
		if err := audit.Close(); err != nil {
			logger.Error("Failed to close audit sink", zap.Error(err))
		}
	})
}
