package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrEmptyText is returned by Predict when there is nothing to classify
var ErrEmptyText = errors.New("no text provided")

// AnalysisService is the scoring service: it extracts features, scores the
// message and hands the score to the alert dispatcher.
type AnalysisService struct {
	extractor  FeatureExtractor
	scorer     RiskScorer
	dispatcher AlertDispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewAnalysisService creates a new analysis service
func NewAnalysisService(
	extractor FeatureExtractor,
	scorer RiskScorer,
	dispatcher AlertDispatcher,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		extractor:  extractor,
		scorer:     scorer,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze scores one message and dispatches an alert when warranted
func (s *AnalysisService) Analyze(ctx context.Context, msg *Message) (*Analysis, error) {
	if strings.TrimSpace(msg.Sender) == "" || strings.TrimSpace(msg.Subject) == "" {
		return nil, ErrInvalidRequest
	}

	s.logger.Info("Analyzing message",
		zap.String("message_id", msg.ID),
		zap.String("subject", truncate(msg.Subject, 80)))

	features := s.extractor.Extract(ctx, msg)
	score := s.scorer.Score(ctx, msg, features)

	topLink := ""
	if len(msg.Links) > 0 {
		topLink = msg.Links[0]
	}

	alert := s.dispatcher.Dispatch(ctx, DedupeKey(msg.ID, msg.Sender, msg.Subject), score.Value, AlertSummary{
		Sender:  msg.Sender,
		Subject: msg.Subject,
		Link:    topLink,
	})

	s.logger.Info("Message analyzed",
		zap.String("message_id", msg.ID),
		zap.Float64("risk_score", score.Value),
		zap.String("risk_level", string(score.Level)),
		zap.String("score_source", score.Source),
		zap.Strings("adjustments", score.Adjustments),
		zap.String("alert_status", string(alert.Status)))

	return &Analysis{
		ID:                uuid.NewString(),
		MessageID:         msg.ID,
		Score:             score,
		RiskScore:         score.Value,
		RiskLevel:         score.Level,
		Badge:             BadgeFor(score.Value),
		Alert:             alert,
		Features:          features.Summary(),
		Signals:           features,
		ClassifierEnabled: s.scorer.ClassifierAvailable(),
		AlertingEnabled:   s.dispatcher.Enabled(),
		Timestamp:         s.now().UTC(),
	}, nil
}

// CheckURL returns the reputation of a single link
func (s *AnalysisService) CheckURL(ctx context.Context, url string) int {
	return s.extractor.LinkReputation(ctx, url)
}

// Predict returns the base 0..100 score for free text and its source
func (s *AnalysisService) Predict(ctx context.Context, text string) (float64, string, error) {
	if strings.TrimSpace(text) == "" {
		return 0, "", ErrEmptyText
	}
	score, source := s.scorer.BaseScore(ctx, text)
	return score, source, nil
}

// ClassifierAvailable reports whether scores come from a model
func (s *AnalysisService) ClassifierAvailable() bool {
	return s.scorer.ClassifierAvailable()
}

// AlertingEnabled reports whether any alert transport is configured
func (s *AnalysisService) AlertingEnabled() bool {
	return s.dispatcher.Enabled()
}

// BadgeFor returns the display badge for a score
func BadgeFor(score float64) Badge {
	switch {
	case score >= 70:
		return Badge{Color: "red", Label: "High"}
	case score >= 40:
		return Badge{Color: "orange", Label: "Medium"}
	default:
		return Badge{Color: "green", Label: "Low"}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
