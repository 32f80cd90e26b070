package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"tabscribe/internal/logging"
	"tabscribe/internal/model"
)

var log = logging.L("ai")

var (
	// ErrUnauthorized reports a missing or rejected API credential. It
	// signals misconfiguration rather than a transient fault.
	ErrUnauthorized = errors.New("ai: analysis service rejected credentials")
	// ErrEmptyResponse is returned when the service produced no usable content.
	ErrEmptyResponse = errors.New("ai: empty response")
)

// APIError wraps a non-success response from the analysis service.
type APIError struct {
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("analysis service returned status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("analysis service error: %s", e.Message)
}

func (e *APIError) Unwrap() []error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return []error{ErrUnauthorized, e.Err}
	}
	return []error{e.Err}
}

// StatusOf returns the upstream HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	return 0
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	client *openai.Client
	model  string
	hasKey bool
}

// NewClient creates a client. baseURL may be empty for the public endpoint.
func NewClient(apiKey, baseURL, modelName string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = openai.GPT4oMini
	}
	return &Client{
		client: openai.NewClientWithConfig(cfg),
		model:  modelName,
		hasKey: strings.TrimSpace(apiKey) != "",
	}
}

// Analyze turns a transcript into an analysis record. Top-level fields the
// model omits default to empty and are logged; they never fail the call.
func (c *Client) Analyze(ctx context.Context, transcript string) (model.AnalysisRecord, error) {
	detected := DetectContext(transcript)
	systemPrompt, userPrompt := BuildPrompt(transcript, detected)

	log.WithField("context", detected).WithField("chars", len(transcript)).Debug("analysis request")

	content, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return model.EmptyAnalysis(), err
	}

	rec, missing, err := model.DecodeAnalysis([]byte(content))
	if err != nil {
		log.WithField("preview", truncateString(content, 500)).Warn("analysis response is not a JSON object")
		return model.EmptyAnalysis(), fmt.Errorf("failed to parse analysis response: %w", err)
	}
	if len(missing) > 0 {
		log.WithField("missing", missing).Warn("analysis response missing fields, using empty defaults")
	}
	return rec, nil
}

// Translate sends a JSON document with the fixed translation instruction
// and returns the model's JSON output as-is. Callers decode it leniently.
func (c *Client) Translate(ctx context.Context, document []byte, targetLanguage string) ([]byte, error) {
	systemPrompt, userPrompt := BuildTranslationPrompt(document, targetLanguage)
	content, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return []byte(content), nil
}

func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if !c.hasKey {
		return "", fmt.Errorf("OPENAI_API_KEY is not set: %w", ErrUnauthorized)
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", apiError(err)
	}

	log.WithField("model", c.model).
		WithField("promptTokens", resp.Usage.PromptTokens).
		WithField("completionTokens", resp.Usage.CompletionTokens).
		WithField(logging.KeyDurationMs, time.Since(start).Milliseconds()).
		Debug("chat completion received")

	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := extractJSONFromMarkdown(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func apiError(err error) error {
	ae := &APIError{Message: err.Error(), Err: err}
	var oe *openai.APIError
	var re *openai.RequestError
	switch {
	case errors.As(err, &oe):
		ae.Status = oe.HTTPStatusCode
		ae.Message = oe.Message
	case errors.As(err, &re):
		ae.Status = re.HTTPStatusCode
	}
	log.WithField("status", ae.Status).WithError(err).Warn("OpenAI API error")
	return ae
}

// extractJSONFromMarkdown extracts JSON from markdown code blocks
func extractJSONFromMarkdown(content string) string {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}

	return strings.TrimSpace(content)
}

// truncateString truncates string to max length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
