// Package ai wraps Anthropic models on AWS Bedrock for the two AI features of
// the automation engine: ai_analyze classification and AI-written replies.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultModelID is used when no model is configured.
const DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("model returned no text")

// InvokeAPI is the subset of the Bedrock runtime client used here.
type InvokeAPI interface {
	InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
	Temperature      float64   `json:"temperature"`
}

type response struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Model sends single-turn prompts to one Bedrock model.
type Model struct {
	api     InvokeAPI
	modelID string
}

// NewModel creates a model client. An empty modelID selects DefaultModelID.
func NewModel(api InvokeAPI, modelID string) *Model {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &Model{api: api, modelID: modelID}
}

// NewModelFromConfig builds the Bedrock runtime client from an AWS config.
func NewModelFromConfig(cfg aws.Config, modelID string) *Model {
	return NewModel(bedrockruntime.NewFromConfig(cfg), modelID)
}

// Complete returns the model's text answer to prompt.
func (m *Model) Complete(ctx context.Context, system, prompt string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(request{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        maxTokens,
		System:           system,
		Messages:         []message{{Role: "user", Content: []contentBlock{{Type: "text", Text: prompt}}}},
		Temperature:      temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	out, err := m.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(m.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke: %w", err)
	}

	var resp response
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return "", fmt.Errorf("parse bedrock response: %w", err)
	}
	var b strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			b.WriteString(c.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyCompletion
	}
	log.Printf("[Bedrock] %s completed (in: %d tokens, out: %d tokens)", m.modelID, resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return text, nil
}
