package reasoning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/genai"

	"gridsense/internal/config"
	"gridsense/internal/logging"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient implements Client against the Google Gemini API via the
// official genai SDK.
type GeminiClient struct {
	client      *genai.Client
	model       string
	timeout     time.Duration
	mu          sync.Mutex
	lastRequest time.Time
}

// NewGeminiClient creates a Gemini-backed reasoning client.
func NewGeminiClient(cfg config.ProviderConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client:  client,
		model:   model,
		timeout: cfg.TimeoutOrDefault(),
	}, nil
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	c.throttle()

	start := time.Now()
	logging.API("[Gemini] request: model=%s system_len=%d user_len=%d",
		c.model, len(systemPrompt), len(userPrompt))

	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0.1),
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	contents := []*genai.Content{
		genai.NewContentFromText(userPrompt, genai.RoleUser),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, genCfg)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("[Gemini] request failed after %v: %v", time.Since(start), err)
		logging.LLMCall("gemini", time.Since(start).Milliseconds(), false, err.Error())
		return "", fmt.Errorf("gemini completion failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		logging.LLMCall("gemini", time.Since(start).Milliseconds(), false, "empty completion")
		return "", fmt.Errorf("gemini returned an empty completion")
	}

	logging.API("[Gemini] response: %d chars in %v", len(text), time.Since(start))
	logging.LLMCall("gemini", time.Since(start).Milliseconds(), true, "")
	return text, nil
}

// throttle spaces requests at least 100ms apart.
func (c *GeminiClient) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastRequest); elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
}
