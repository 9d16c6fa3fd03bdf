package openai

import (
	"context"
	"fmt"

	"github.com/mikey/phishwatch/internal/core"
	"github.com/mikey/phishwatch/internal/utils"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

var _ core.Classifier = (*OpenAIClient)(nil)

// chatCompleter is the part of the OpenAI client used here
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient classifies message text with an OpenAI chat model
type OpenAIClient struct {
	client        chatCompleter
	modelName     string
	maxTokens     int
	temperature   float32
	topP          float32
	maxBodySize   int
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewOpenAIClient creates a new OpenAI classifier
func NewOpenAIClient(
	client chatCompleter,
	modelName string,
	maxTokens int,
	temperature float32,
	topP float32,
	maxBodySize int,
	logger *zap.Logger,
	textProcessor *utils.TextProcessor,
) *OpenAIClient {
	return &OpenAIClient{
		client:        client,
		modelName:     modelName,
		maxTokens:     maxTokens,
		temperature:   temperature,
		topP:          topP,
		maxBodySize:   maxBodySize,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// Available reports whether a client was configured
func (c *OpenAIClient) Available() bool {
	return c != nil && c.client != nil
}

// Predict returns the phishing probability for text
func (c *OpenAIClient) Predict(ctx context.Context, text string) (float64, error) {
	prompt := fmt.Sprintf(utils.ClassifierPromptFormat, c.textProcessor.ProcessText(text, c.maxBodySize))

	req := openai.ChatCompletionRequest{
		Model: c.modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: utils.ClassifierSystemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		TopP:        c.topP,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("failed to create chat completion with OpenAI: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, fmt.Errorf("empty response from OpenAI")
	}

	p, err := utils.ParseProbability(resp.Choices[0].Message.Content)
	if err != nil {
		return 0, err
	}

	c.logger.Debug("OpenAI classification",
		zap.String("model", c.modelName),
		zap.String("request_id", resp.ID),
		zap.Float64("probability", p))

	return p, nil
}
