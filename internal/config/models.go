package config

import (
	"time"
)

// ScanConfig controls the mailbox scan controller
type ScanConfig struct {
	Enabled         bool
	PollInterval    time.Duration
	Query           string
	OnlyUnread      bool
	MaxResults      int
	InitialFullScan bool
	CallTimeout     time.Duration
}

// LabelsConfig controls tagging of scanned messages
type LabelsConfig struct {
	Processed       string
	ApplyScoreLabel bool
	ScorePrefix     string
}

// ScoringConfig selects how the scan controller reaches the scoring service
type ScoringConfig struct {
	Mode         string
	URL          string
	Timeout      time.Duration
	RetryBackoff time.Duration
	MaxRetries   int
}

// ClassifierConfig selects the text classifier
type ClassifierConfig struct {
	Provider string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// FeaturesConfig controls feature extraction
type FeaturesConfig struct {
	WhoisEnabled   bool
	WhoisTimeout   time.Duration
	TrustedDomains []string
}

// AlertConfig controls the alert dispatcher
type AlertConfig struct {
	Threshold      float64
	Cooldown       time.Duration
	Brand          string
	EnableSMS      bool
	EnableWhatsApp bool
	EnableEmail    bool
	ChannelTimeout time.Duration
}

// TwilioConfig holds Twilio credentials and numbers
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	FromSMS      string
	FromWhatsApp string
	ToPrimary    string
	ToBackup     string
}

// SMTPConfig configures the e-mail alert channel
type SMTPConfig struct {
	Address  string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	StartTLS bool
}

// LedgerConfig selects the cooldown ledger backend
type LedgerConfig struct {
	Type             string
	CleanupFrequency time.Duration
	RedisURL         string
	KeyPrefix        string
}

// AuditConfig selects the audit sink
type AuditConfig struct {
	Type        string
	SQLitePath  string
	MySQLDSN    string
	PostgresDSN string
}

// ConnectorConfig selects the mail connector
type ConnectorConfig struct {
	Type string
}

// GmailConfig configures the Gmail connector
type GmailConfig struct {
	CredentialsFile   string
	User              string
	RequestsPerSecond float64
	Burst             int
}

// MailboxConfig configures the SMTP-fed local mailbox
type MailboxConfig struct {
	ListenAddress    string
	MaxMessageBytes  int64
	Retention        time.Duration
	CleanupFrequency time.Duration
}

// ServerConfig configures the HTTP scoring service
type ServerConfig struct {
	Enabled       bool
	ListenAddress string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// GetScan returns the scan controller configuration
func (c *Config) GetScan() (ScanConfig, error) {
	interval, err := c.GetDuration("scan.poll_interval")
	if err != nil {
		return ScanConfig{}, err
	}
	callTimeout, err := c.GetDuration("scan.call_timeout")
	if err != nil {
		return ScanConfig{}, err
	}
	return ScanConfig{
		Enabled:         c.GetBool("scan.enabled"),
		PollInterval:    interval,
		Query:           c.GetString("scan.query"),
		OnlyUnread:      c.GetBool("scan.only_unread"),
		MaxResults:      c.GetInt("scan.max_results"),
		InitialFullScan: c.GetBool("scan.initial_full_scan"),
		CallTimeout:     callTimeout,
	}, nil
}

// GetLabels returns the labelling configuration
func (c *Config) GetLabels() LabelsConfig {
	return LabelsConfig{
		Processed:       c.GetString("labels.processed"),
		ApplyScoreLabel: c.GetBool("labels.apply_score_label"),
		ScorePrefix:     c.GetString("labels.score_prefix"),
	}
}

// GetScoring returns the scoring client configuration
func (c *Config) GetScoring() (ScoringConfig, error) {
	timeout, err := c.GetDuration("scoring.timeout")
	if err != nil {
		return ScoringConfig{}, err
	}
	retryBackoff, err := c.GetDuration("scoring.retry_backoff")
	if err != nil {
		return ScoringConfig{}, err
	}

	// A timed out call is retried at most once
	maxRetries := c.GetInt("scoring.max_retries")
	if maxRetries < 0 {
		maxRetries = 0
	} else if maxRetries > 1 {
		maxRetries = 1
	}

	return ScoringConfig{
		Mode:         c.GetString("scoring.mode"),
		URL:          c.GetString("scoring.url"),
		Timeout:      timeout,
		RetryBackoff: retryBackoff,
		MaxRetries:   maxRetries,
	}, nil
}

// GetClassifier returns the classifier selection
func (c *Config) GetClassifier() ClassifierConfig {
	return ClassifierConfig{
		Provider: c.GetString("classifier.provider"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		BaseURL:     c.GetString("openai.base_url"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetFeatures returns the feature extraction configuration
func (c *Config) GetFeatures() (FeaturesConfig, error) {
	timeout, err := c.GetDuration("features.whois_timeout")
	if err != nil {
		return FeaturesConfig{}, err
	}
	return FeaturesConfig{
		WhoisEnabled:   c.GetBool("features.whois_enabled"),
		WhoisTimeout:   timeout,
		TrustedDomains: c.GetStringSlice("features.trusted_domains"),
	}, nil
}

// GetAlert returns the alert dispatcher configuration
func (c *Config) GetAlert() (AlertConfig, error) {
	cooldown, err := c.GetDuration("alert.cooldown")
	if err != nil {
		return AlertConfig{}, err
	}
	channelTimeout, err := c.GetDuration("alert.channel_timeout")
	if err != nil {
		return AlertConfig{}, err
	}
	return AlertConfig{
		Threshold:      c.GetFloat64("alert.threshold"),
		Cooldown:       cooldown,
		Brand:          c.GetString("alert.brand"),
		EnableSMS:      c.GetBool("alert.enable_sms"),
		EnableWhatsApp: c.GetBool("alert.enable_whatsapp"),
		EnableEmail:    c.GetBool("alert.enable_email"),
		ChannelTimeout: channelTimeout,
	}, nil
}

// GetTwilio returns the Twilio configuration
func (c *Config) GetTwilio() TwilioConfig {
	return TwilioConfig{
		AccountSID:   c.GetString("twilio.account_sid"),
		AuthToken:    c.GetString("twilio.auth_token"),
		FromSMS:      c.GetString("twilio.from_sms"),
		FromWhatsApp: c.GetString("twilio.from_whatsapp"),
		ToPrimary:    c.GetString("twilio.to_primary"),
		ToBackup:     c.GetString("twilio.to_backup"),
	}
}

// GetSMTP returns the SMTP alert configuration
func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		Address:  c.GetString("smtp.address"),
		Port:     c.GetInt("smtp.port"),
		Username: c.GetString("smtp.username"),
		Password: c.GetString("smtp.password"),
		From:     c.GetString("smtp.from"),
		To:       c.GetStringSlice("smtp.to"),
		StartTLS: c.GetBool("smtp.starttls"),
	}
}

// GetLedger returns the cooldown ledger configuration
func (c *Config) GetLedger() (LedgerConfig, error) {
	cleanup, err := c.GetDuration("ledger.cleanup_frequency")
	if err != nil {
		return LedgerConfig{}, err
	}
	return LedgerConfig{
		Type:             c.GetString("ledger.type"),
		CleanupFrequency: cleanup,
		RedisURL:         c.GetString("ledger.redis_url"),
		KeyPrefix:        c.GetString("ledger.key_prefix"),
	}, nil
}

// GetAudit returns the audit sink configuration
func (c *Config) GetAudit() AuditConfig {
	return AuditConfig{
		Type:        c.GetString("audit.type"),
		SQLitePath:  c.GetString("audit.sqlite_path"),
		MySQLDSN:    c.GetString("audit.mysql_dsn"),
		PostgresDSN: c.GetString("audit.postgres_dsn"),
	}
}

// GetConnector returns the mail connector selection
func (c *Config) GetConnector() ConnectorConfig {
	return ConnectorConfig{
		Type: c.GetString("connector.type"),
	}
}

// GetGmail returns the Gmail connector configuration
func (c *Config) GetGmail() GmailConfig {
	return GmailConfig{
		CredentialsFile:   c.GetString("gmail.credentials_file"),
		User:              c.GetString("gmail.user"),
		RequestsPerSecond: c.GetFloat64("gmail.requests_per_second"),
		Burst:             c.GetInt("gmail.burst"),
	}
}

// GetMailbox returns the local mailbox configuration
func (c *Config) GetMailbox() MailboxConfig {
	return MailboxConfig{
		ListenAddress:    c.GetString("mailbox.listen_address"),
		MaxMessageBytes:  c.v.GetInt64("mailbox.max_message_bytes"),
		Retention:        c.v.GetDuration("mailbox.retention"),
		CleanupFrequency: c.v.GetDuration("mailbox.cleanup_frequency"),
	}
}

// GetServer returns the HTTP server configuration
func (c *Config) GetServer() (ServerConfig, error) {
	readTimeout, err := c.GetDuration("server.read_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	writeTimeout, err := c.GetDuration("server.write_timeout")
	if err != nil {
		return ServerConfig{}, err
	}
	return ServerConfig{
		Enabled:       c.GetBool("server.enabled"),
		ListenAddress: c.GetString("server.listen_address"),
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
	}, nil
}
