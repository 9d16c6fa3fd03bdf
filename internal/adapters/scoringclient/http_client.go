package scoringclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mikey/phishwatch/internal/core"
	"go.uber.org/zap"
)

// maxErrorBody bounds how much of an error response is kept for the error message
const maxErrorBody = 512

// HTTPClient calls a remote scoring service's /analyze-email endpoint
type HTTPClient struct {
	url     string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient creates a client for the scoring endpoint at url. timeout
// bounds each call on top of any deadline already carried by the context.
func NewHTTPClient(url string, timeout time.Duration, client *http.Client, logger *zap.Logger) *HTTPClient {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPClient{
		url:     url,
		timeout: timeout,
		client:  client,
		logger:  logger,
	}
}

// Analyze posts the message and decodes the analysis
func (c *HTTPClient) Analyze(ctx context.Context, msg *core.Message) (*core.Analysis, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scoring request: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build scoring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scoring request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidRequest, readSnippet(resp.Body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("scoring service returned %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var analysis core.Analysis
	if err := json.NewDecoder(resp.Body).Decode(&analysis); err != nil {
		return nil, fmt.Errorf("failed to decode scoring response: %w", err)
	}
	if analysis.MessageID == "" {
		analysis.MessageID = msg.ID
	}
	analysis.Score = core.RiskScore{
		Value: analysis.RiskScore,
		Level: analysis.RiskLevel,
	}

	c.logger.Debug("Scoring service responded",
		zap.String("message_id", msg.ID),
		zap.Float64("risk_score", analysis.RiskScore))

	return &analysis, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return string(bytes.TrimSpace(b))
}
