package factory

import (
	"fmt"
	"net/http"

	"github.com/mikey/phishwatch/internal/adapters/scoringclient"
	"github.com/mikey/phishwatch/internal/adapters/whois"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/features"
	"github.com/mikey/phishwatch/internal/metrics"
	"github.com/mikey/phishwatch/internal/ports"
	"github.com/mikey/phishwatch/internal/scan"
	"github.com/mikey/phishwatch/internal/utils"
	"github.com/mikey/phishwatch/internal/whitelist"
	"go.uber.org/zap"
)

// PipelineFactory creates the feature extractor, the scoring client and
// the scan controller
type PipelineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPipelineFactory creates a new pipeline factory
func NewPipelineFactory(cfg *config.Config, logger *zap.Logger) *PipelineFactory {
	return &PipelineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateExtractor creates the feature extractor with the optional WHOIS
// domain age lookup and the trusted sender list
func (f *PipelineFactory) CreateExtractor() (*features.Extractor, error) {
	featuresCfg, err := f.cfg.GetFeatures()
	if err != nil {
		return nil, err
	}

	var ageLookup core.DomainAgeLookup
	if featuresCfg.WhoisEnabled {
		ageLookup = whois.NewLookup(featuresCfg.WhoisTimeout, f.logger)
	}

	trusted := whitelist.NewChecker(featuresCfg.TrustedDomains, f.logger)
	return features.NewExtractor(ageLookup, featuresCfg.WhoisTimeout, trusted, f.logger), nil
}

// CreateScoringClient creates the client named by scoring.mode. The
// in-process client calls svc directly.
func (f *PipelineFactory) CreateScoringClient(svc *core.AnalysisService) (ports.ScoringClient, error) {
	scoringCfg, err := f.cfg.GetScoring()
	if err != nil {
		return nil, err
	}

	switch scoringCfg.Mode {
	case "inprocess":
		return scoringclient.NewInProcess(svc, scoringCfg.Timeout), nil
	case "http":
		f.logger.Info("Using remote scoring service", zap.String("url", scoringCfg.URL))
		return scoringclient.NewHTTPClient(scoringCfg.URL, scoringCfg.Timeout, &http.Client{}, f.logger), nil
	default:
		return nil, fmt.Errorf("unsupported scoring mode: %s", scoringCfg.Mode)
	}
}

// CreateController creates the scan controller over a mail connector
func (f *PipelineFactory) CreateController(
	connector ports.MailConnector,
	scoring ports.ScoringClient,
	audit core.AuditSink,
	m *metrics.Metrics,
) (*scan.Controller, error) {
	scanCfg, err := f.cfg.GetScan()
	if err != nil {
		return nil, err
	}
	scoringCfg, err := f.cfg.GetScoring()
	if err != nil {
		return nil, err
	}
	labels := f.cfg.GetLabels()

	return scan.NewController(
		connector,
		scoring,
		audit,
		utils.TimeoutOnly(scoringCfg.RetryBackoff, scoringCfg.MaxRetries),
		scan.Options{
			Query:           scanCfg.Query,
			OnlyUnread:      scanCfg.OnlyUnread,
			PageSize:        scanCfg.MaxResults,
			PollInterval:    scanCfg.PollInterval,
			InitialFullScan: scanCfg.InitialFullScan,
			CallTimeout:     scanCfg.CallTimeout,
			ScoringTimeout:  scoringCfg.Timeout,
			ApplyScoreTag:   labels.ApplyScoreLabel,
			ScorePrefix:     labels.ScorePrefix,
		},
		m,
		f.logger,
	), nil
}
