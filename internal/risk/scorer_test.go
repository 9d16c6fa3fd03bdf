package risk

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

type mockClassifier struct {
	mock.Mock
}

func (m *mockClassifier) Available() bool {
	return m.Called().Bool(0)
}

func (m *mockClassifier) Predict(ctx context.Context, text string) (float64, error) {
	args := m.Called(ctx, text)
	return args.Get(0).(float64), args.Error(1)
}

var authPass = core.Features{SPFPass: true, DKIMPass: true}

func TestClassify(t *testing.T) {
	tests := []struct {
		score float64
		want  core.RiskLevel
	}{
		{0, core.RiskLow},
		{29.99, core.RiskLow},
		{30, core.RiskMedium},
		{69.99, core.RiskMedium},
		{70, core.RiskHigh},
		{100, core.RiskHigh},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score), "score %v", tt.score)
	}
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{name: "no keywords", text: "Lunch on Friday?", want: 30},
		{name: "verify and account", text: "Please VERIFY your Account", want: 52},
		{name: "every keyword caps at 100", text: "urgent verify password suspended click account", want: 100},
		{name: "keyword counted once", text: "click click click", want: 38},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Heuristic(tt.text), 0.001)
		})
	}
}

func TestAdjust(t *testing.T) {
	tests := []struct {
		name     string
		base     float64
		features core.Features
		want     float64
		rules    []string
	}{
		{name: "no adjustments", base: 40, features: authPass, want: 40},
		{
			name:     "three suspicious links",
			base:     40,
			features: core.Features{SPFPass: true, SuspiciousLinkCount: 3, HasSuspiciousLinks: true},
			want:     55,
			rules:    []string{"many_suspicious_links"},
		},
		{
			name:     "two suspicious links",
			base:     40,
			features: core.Features{SPFPass: true, SuspiciousLinkCount: 2, HasSuspiciousLinks: true},
			want:     40,
		},
		{
			name:     "spf and dkim failed",
			base:     40,
			features: core.Features{},
			want:     60,
			rules:    []string{"spf_and_dkim_failed"},
		},
		{
			name:     "only dkim failed",
			base:     40,
			features: core.Features{SPFPass: true},
			want:     40,
		},
		{
			name:     "urgency with suspicious link",
			base:     40,
			features: core.Features{SPFPass: true, SubjectUrgency: true, SuspiciousLinkCount: 1, HasSuspiciousLinks: true},
			want:     50,
			rules:    []string{"urgent_with_suspicious_links"},
		},
		{
			name: "everything caps at 100",
			base: 80,
			features: core.Features{
				SubjectUrgency: true, SuspiciousLinkCount: 3, HasSuspiciousLinks: true,
			},
			want:  100,
			rules: []string{"many_suspicious_links", "spf_and_dkim_failed", "urgent_with_suspicious_links"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, rules := Adjust(tt.base, tt.features)
			assert.InDelta(t, tt.want, got, 0.001)
			assert.Equal(t, tt.rules, rules)
		})
	}
}

func TestScoreWithClassifier(t *testing.T) {
	c := new(mockClassifier)
	c.On("Available").Return(true)
	c.On("Predict", mock.Anything, "Invoice attached see below").Return(0.45678, nil)

	s := NewScorer(c, zap.NewNop())
	msg := &core.Message{Subject: "Invoice attached", Body: "see below"}

	got := s.Score(context.Background(), msg, authPass)

	assert.InDelta(t, 45.68, got.Value, 0.0001)
	assert.Equal(t, 45.68, got.Base)
	assert.Equal(t, core.RiskMedium, got.Level)
	assert.Equal(t, SourceModel, got.Source)
	c.AssertExpectations(t)
}

func TestScoreFallsBackWhenClassifierFails(t *testing.T) {
	c := new(mockClassifier)
	c.On("Available").Return(true)
	c.On("Predict", mock.Anything, mock.Anything).Return(0.0, errors.New("rate limited"))

	s := NewScorer(c, zap.NewNop())
	got := s.Score(context.Background(), &core.Message{Subject: "Verify now"}, authPass)

	assert.Equal(t, SourceHeuristic, got.Source)
	assert.InDelta(t, 42, got.Value, 0.001)
}

func TestScoreSkipsUnavailableClassifier(t *testing.T) {
	c := new(mockClassifier)
	c.On("Available").Return(false)

	s := NewScorer(c, zap.NewNop())
	got := s.Score(context.Background(), &core.Message{Subject: "hello"}, authPass)

	assert.Equal(t, SourceHeuristic, got.Source)
	assert.False(t, s.ClassifierAvailable())
	c.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestScoreHighRiskMessage(t *testing.T) {
	s := NewScorer(nil, zap.NewNop())
	msg := &core.Message{
		Subject: "URGENT: verify your account",
		Body:    "Your password expires, click the link",
	}
	f := core.Features{SubjectUrgency: true, SuspiciousLinkCount: 3, HasSuspiciousLinks: true}

	got := s.Score(context.Background(), msg, f)

	// 30 + 12 + 15 + 10 + 8 + 10 = 85 base, +45 adjustments, capped
	assert.InDelta(t, 100, got.Value, 0.001)
	assert.Equal(t, core.RiskHigh, got.Level)
}

func TestSetClassifierConcurrent(t *testing.T) {
	s := NewScorer(nil, zap.NewNop())
	c := new(mockClassifier)
	c.On("Available").Return(true)
	c.On("Predict", mock.Anything, mock.Anything).Return(0.9, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetClassifier(c)
		}()
		go func() {
			defer wg.Done()
			got := s.Score(context.Background(), &core.Message{Subject: "x"}, authPass)
			assert.Contains(t, []string{SourceModel, SourceHeuristic}, got.Source)
		}()
	}
	wg.Wait()

	assert.True(t, s.ClassifierAvailable())
}
