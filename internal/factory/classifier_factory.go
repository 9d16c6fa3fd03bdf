package factory

import (
	"context"
	"fmt"

	"github.com/mikey/phishwatch/internal/adapters/bedrock"
	"github.com/mikey/phishwatch/internal/adapters/gemini"
	"github.com/mikey/phishwatch/internal/adapters/openai"
	"github.com/mikey/phishwatch/internal/config"
	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/utils"
	"go.uber.org/zap"
)

// ClassifierFactory creates the text classifier. Every provider shares one
// text processor for prompt truncation.
type ClassifierFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewClassifierFactory creates a new classifier factory
func NewClassifierFactory(cfg *config.Config, logger *zap.Logger) *ClassifierFactory {
	return &ClassifierFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: utils.NewTextProcessor(logger),
	}
}

// CreateClassifier creates the classifier named by classifier.provider.
// "none" returns a nil classifier and the scorer falls back to heuristics.
func (f *ClassifierFactory) CreateClassifier(ctx context.Context) (core.Classifier, error) {
	provider := f.cfg.GetClassifier().Provider

	var (
		classifier core.Classifier
		err        error
	)
	switch provider {
	case "", "none":
		f.logger.Info("No classifier configured, using heuristic scoring")
		return nil, nil
	case "bedrock":
		var c *bedrock.BedrockClient
		if c, err = bedrock.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient(ctx); err == nil {
			classifier = c
		}
	case "gemini":
		var c *gemini.GeminiClient
		if c, err = gemini.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient(ctx); err == nil {
			classifier = c
		}
	case "openai":
		var c *openai.OpenAIClient
		if c, err = openai.NewFactory(f.cfg, f.logger, f.textProcessor).CreateClient(); err == nil {
			classifier = c
		}
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s classifier: %w", provider, err)
	}

	f.logger.Info("Classifier configured", zap.String("provider", provider))
	return classifier, nil
}
