package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/phishwatch/internal/adapters/httpapi"
	"github.com/mikey/phishwatch/internal/alert"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/factory"
	"github.com/mikey/phishwatch/internal/features"
	"github.com/mikey/phishwatch/internal/logging"
	"github.com/mikey/phishwatch/internal/metrics"
	"github.com/mikey/phishwatch/internal/ports"
	"github.com/mikey/phishwatch/internal/risk"
	"github.com/mikey/phishwatch/internal/scan"
)

// MetricsNamespace prefixes every exported metric
const MetricsNamespace = "phishwatch"

// BuildContainer creates and configures a dependency injection container
// for the long running service
func BuildContainer(configPath string) (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(func() (*config.Config, error) {
		return config.New(configPath)
	}); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	if err := provideServices(container); err != nil {
		return nil, err
	}
	return container, nil
}

// provideServices registers everything below config and logger
func provideServices(container *dig.Container) error {
	// Register metrics
	if err := container.Provide(func() *metrics.Metrics {
		return metrics.New(MetricsNamespace)
	}); err != nil {
		return err
	}

	// Register factories
	for _, ctor := range []interface{}{
		factory.NewClassifierFactory,
		factory.NewStorageFactory,
		factory.NewAlertFactory,
		factory.NewConnectorFactory,
		factory.NewPipelineFactory,
	} {
		if err := container.Provide(ctor); err != nil {
			return err
		}
	}

	// Register classifier
	if err := container.Provide(func(f *factory.ClassifierFactory) (core.Classifier, error) {
		return f.CreateClassifier(context.Background())
	}); err != nil {
		return err
	}

	// Register cooldown ledger and audit sink
	if err := container.Provide(func(f *factory.StorageFactory) (core.CooldownLedger, error) {
		return f.CreateLedger(context.Background())
	}); err != nil {
		return err
	}
	if err := container.Provide(func(f *factory.StorageFactory) (core.AuditSink, error) {
		return f.CreateAuditSink()
	}); err != nil {
		return err
	}

	// Register alert dispatcher
	if err := container.Provide(func(f *factory.AlertFactory, l core.CooldownLedger, m *metrics.Metrics) (*alert.Dispatcher, error) {
		return f.CreateDispatcher(l, m)
	}); err != nil {
		return err
	}

	// Register feature extractor and scorer
	if err := container.Provide(func(f *factory.PipelineFactory) (*features.Extractor, error) {
		return f.CreateExtractor()
	}); err != nil {
		return err
	}
	if err := container.Provide(risk.NewScorer); err != nil {
		return err
	}

	// Register analysis service
	if err := container.Provide(func(
		extractor *features.Extractor,
		scorer *risk.Scorer,
		dispatcher *alert.Dispatcher,
		logger *zap.Logger,
	) *core.AnalysisService {
		return core.NewAnalysisService(extractor, scorer, dispatcher, logger)
	}); err != nil {
		return err
	}

	// Register scoring client
	if err := container.Provide(func(f *factory.PipelineFactory, svc *core.AnalysisService) (ports.ScoringClient, error) {
		return f.CreateScoringClient(svc)
	}); err != nil {
		return err
	}

	// Register mail source
	if err := container.Provide(func(f *factory.ConnectorFactory) (*factory.MailSource, error) {
		return f.CreateMailSource(context.Background())
	}); err != nil {
		return err
	}

	// Register scan controller
	if err := container.Provide(func(
		f *factory.PipelineFactory,
		source *factory.MailSource,
		scoring ports.ScoringClient,
		audit core.AuditSink,
		m *metrics.Metrics,
	) (*scan.Controller, error) {
		return f.CreateController(source.Connector, scoring, audit, m)
	}); err != nil {
		return err
	}

	// Register HTTP API
	if err := container.Provide(func(
		cfg *config.Config,
		svc *core.AnalysisService,
		audit core.AuditSink,
		m *metrics.Metrics,
		logger *zap.Logger,
	) (*httpapi.Server, error) {
		serverCfg, err := cfg.GetServer()
		if err != nil {
			return nil, err
		}
		return httpapi.NewServer(svc, audit, m.Handler(), httpapi.Options{
			ListenAddress: serverCfg.ListenAddress,
			ReadTimeout:   serverCfg.ReadTimeout,
			WriteTimeout:  serverCfg.WriteTimeout,
		}, logger), nil
	}); err != nil {
		return err
	}

	return nil
}
