package core

import (
	"time"
)

// Message represents a mail message as seen by the pipeline
type Message struct {
	ID          string            `json:"message_id"`
	Sender      string            `json:"sender"`
	Subject     string            `json:"subject"`
	Body        string            `json:"content"`
	Links       []string          `json:"links"`
	AuthResults map[string]string `json:"headers"`
	Tags        []string          `json:"-"`
}

// Features is the flat set of signals extracted from a message
type Features struct {
	SenderDomain        string         `json:"sender_domain"`
	SuspiciousSender    bool           `json:"suspicious_sender"`
	TrustedSender       bool           `json:"trusted_sender"`
	SubjectLength       int            `json:"subject_length"`
	SubjectUrgency      bool           `json:"subject_urgency"`
	SubjectSuspicious   bool           `json:"subject_suspicious"`
	ContentLength       int            `json:"content_length"`
	HasLinks            bool           `json:"has_links"`
	LinkCount           int            `json:"link_count"`
	SuspiciousLinkCount int            `json:"suspicious_link_count"`
	HasSuspiciousLinks  bool           `json:"has_suspicious_links"`
	LinkReputation      map[string]int `json:"link_reputation,omitempty"`
	SPFPass             bool           `json:"spf_pass"`
	DKIMPass            bool           `json:"dkim_pass"`
	DMARCPass           bool           `json:"dmarc_pass"`
}

// RiskLevel is the coarse bucket of a risk score
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskScore is the outcome of scoring one message
type RiskScore struct {
	Value       float64   `json:"value"`
	Level       RiskLevel `json:"level"`
	Base        float64   `json:"base"`
	Source      string    `json:"source"`
	Adjustments []string  `json:"adjustments,omitempty"`
}

// AlertStatus describes what the dispatcher decided
type AlertStatus string

const (
	AlertDisabled            AlertStatus = "disabled"
	AlertBelowThreshold      AlertStatus = "below_threshold"
	AlertCooldown            AlertStatus = "cooldown"
	AlertNoChannelConfigured AlertStatus = "no_channel_configured"
	AlertSent                AlertStatus = "sent"
	AlertError               AlertStatus = "error"
	// AlertScoringFailed is only recorded by the scan controller when the
	// scoring call never produced a result.
	AlertScoringFailed AlertStatus = "scoring_failed"
)

// AlertResult is returned by the dispatcher for every decision
type AlertResult struct {
	Sent   bool        `json:"sent"`
	Status AlertStatus `json:"status"`
}

// AlertSummary carries the fields rendered into an alert body
type AlertSummary struct {
	Sender  string
	Subject string
	Link    string
}

// Analysis is the full response of the scoring service for one message
type Analysis struct {
	ID                string         `json:"analysis_id"`
	MessageID         string         `json:"message_id"`
	Score             RiskScore      `json:"-"`
	RiskScore         float64        `json:"risk_score"`
	RiskLevel         RiskLevel      `json:"risk_level"`
	Badge             Badge          `json:"badge"`
	Alert             AlertResult    `json:"alert"`
	Features          FeatureSummary `json:"features"`
	Signals           Features       `json:"signals"`
	ClassifierEnabled bool           `json:"classifier_enabled"`
	AlertingEnabled   bool           `json:"alerting_enabled"`
	Timestamp         time.Time      `json:"timestamp"`
}

// FeatureSummary is the compact feature view returned to callers and audited
type FeatureSummary struct {
	SuspiciousLinks int  `json:"suspicious_links"`
	UrgencyKeywords bool `json:"urgency_keywords"`
	AuthHeadersPass bool `json:"auth_headers_pass"`
}

// Summary condenses the features into the caller-facing view.
func (f Features) Summary() FeatureSummary {
	return FeatureSummary{
		SuspiciousLinks: f.SuspiciousLinkCount,
		UrgencyKeywords: f.SubjectUrgency,
		AuthHeadersPass: f.SPFPass && f.DKIMPass && f.DMARCPass,
	}
}

// Badge is a display hint for the level
type Badge struct {
	Color string `json:"color"`
	Label string `json:"label"`
}

// AuditRecord is one row written per processed message
type AuditRecord struct {
	MessageID string
	Sender    string
	Subject   string
	Score     int
	Level     RiskLevel
	AlertSent bool
	Status    AlertStatus
	Features  string
	Timestamp time.Time
}

// Feedback is a user verdict on a previously scored message
type Feedback struct {
	MessageID string    `json:"message_id"`
	Label     string    `json:"label"`
	Note      string    `json:"note,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
