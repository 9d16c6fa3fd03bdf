package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ClassifierPromptFormat takes the (already truncated) message text.
const ClassifierPromptFormat = `You are a phishing detection system. Estimate how likely the following email text is a phishing attempt
(credential harvesting, fake invoices, account suspension scares, malicious links).
Respond with a JSON object containing:
- phishing_probability: number between 0 and 1 (higher means more likely to be phishing)
- explanation: string (one short sentence)

Email text:
%s

Respond only with the JSON object and nothing else.`

// ClassifierSystemPrompt is sent as the system role where the provider supports one
const ClassifierSystemPrompt = "You are a phishing detection system. Respond only with JSON."

// ClassifierResponse is the structured answer expected from an LLM
type ClassifierResponse struct {
	PhishingProbability *float64 `json:"phishing_probability"`
	Explanation         string   `json:"explanation"`
}

// ParseProbability extracts the phishing probability from an LLM reply,
// tolerating prose around the JSON object.
func ParseProbability(responseText string) (float64, error) {
	var resp ClassifierResponse
	if err := json.Unmarshal([]byte(responseText), &resp); err != nil {
		start := strings.IndexByte(responseText, '{')
		end := strings.LastIndexByte(responseText, '}')
		if start < 0 || end <= start {
			return 0, fmt.Errorf("failed to extract JSON from LLM response: %w", err)
		}
		if err := json.Unmarshal([]byte(responseText[start:end+1]), &resp); err != nil {
			return 0, fmt.Errorf("failed to parse LLM response as JSON: %w", err)
		}
	}

	if resp.PhishingProbability == nil {
		return 0, errors.New("LLM response has no phishing_probability")
	}

	p := *resp.PhishingProbability
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("phishing_probability out of range: %v", p)
	}
	return p, nil
}
