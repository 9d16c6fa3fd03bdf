package risk

import (
	"context"
	"math"
	"strings"
	"sync"

	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

const (
	// HighThreshold is the lowest score classified HIGH
	HighThreshold = 70.0
	// MediumThreshold is the lowest score classified MEDIUM
	MediumThreshold = 30.0

	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

const heuristicBase = 30.0

var heuristicKeywords = []struct {
	keyword string
	weight  float64
}{
	{"verify", 12},
	{"urgent", 15},
	{"password", 10},
	{"suspended", 18},
	{"click", 8},
	{"account", 10},
}

// Classify maps a score to its level
func Classify(score float64) core.RiskLevel {
	switch {
	case score >= HighThreshold:
		return core.RiskHigh
	case score >= MediumThreshold:
		return core.RiskMedium
	default:
		return core.RiskLow
	}
}

// Scorer combines a classifier (or keyword heuristic) with rule-based
// adjustments into one risk score.
type Scorer struct {
	mu         sync.RWMutex
	classifier core.Classifier
	logger     *zap.Logger
}

// NewScorer creates a new scorer. classifier may be nil.
func NewScorer(classifier core.Classifier, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		classifier: classifier,
		logger:     logger,
	}
}

// SetClassifier swaps the classifier used for subsequent scores
func (s *Scorer) SetClassifier(c core.Classifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classifier = c
}

// ClassifierAvailable reports whether scores come from a model
func (s *Scorer) ClassifierAvailable() bool {
	c := s.currentClassifier()
	return c != nil && c.Available()
}

func (s *Scorer) currentClassifier() core.Classifier {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.classifier
}

// Score computes the risk score for msg given its extracted features
func (s *Scorer) Score(ctx context.Context, msg *core.Message, f core.Features) core.RiskScore {
	base, source := s.BaseScore(ctx, msg.Subject+" "+msg.Body)

	value, adjustments := Adjust(base, f)

	return core.RiskScore{
		Value:       value,
		Level:       Classify(value),
		Base:        base,
		Source:      source,
		Adjustments: adjustments,
	}
}

// BaseScore returns the 0..100 base score for text and where it came from
func (s *Scorer) BaseScore(ctx context.Context, text string) (float64, string) {
	if c := s.currentClassifier(); c != nil && c.Available() {
		p, err := c.Predict(ctx, text)
		if err == nil {
			return clamp(round2(p * 100)), SourceModel
		}
		s.logger.Warn("Classifier prediction failed, using heuristic",
			zap.Error(err))
	}
	return Heuristic(text), SourceHeuristic
}

// Heuristic scores text by keyword presence
func Heuristic(text string) float64 {
	low := strings.ToLower(text)
	score := heuristicBase
	for _, kw := range heuristicKeywords {
		if strings.Contains(low, kw.keyword) {
			score += kw.weight
		}
	}
	return math.Min(100, score)
}

// Adjust applies the rule-based adjustments to base
func Adjust(base float64, f core.Features) (float64, []string) {
	score := base
	var applied []string

	if f.SuspiciousLinkCount >= 3 {
		score += 15
		applied = append(applied, "many_suspicious_links")
	}
	if !f.SPFPass && !f.DKIMPass {
		score += 20
		applied = append(applied, "spf_and_dkim_failed")
	}
	if f.SubjectUrgency && f.HasSuspiciousLinks {
		score += 10
		applied = append(applied, "urgent_with_suspicious_links")
	}

	return clamp(score), applied
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
