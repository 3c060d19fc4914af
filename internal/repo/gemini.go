package repo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/voltsight/twin-gateway/internal/engine"
)

// GeminiConfig configures the Gemini API client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client
}

// GeminiClient submits composed prompts to a Gemini model with schema-constrained output.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient constructs the client once at startup. It fails when the API key is empty.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("gemini model name is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(cfg.BaseURL, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// Model reports the configured model name.
func (c *GeminiClient) Model() string { return c.model }

// Generate performs one generateContent call and returns the raw reply text.
func (c *GeminiClient) Generate(ctx context.Context, prompt string, schema *engine.Schema, sampling engine.SamplingConfig) (string, error) {
	if c == nil || c.client == nil {
		return "", errors.New("gemini client not initialised")
	}

	temperature := sampling.Temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   toGenaiSchema(schema),
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), genCfg)
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini returned no text (candidates=%d)", len(resp.Candidates))
	}
	return text, nil
}

func toGenaiSchema(s *engine.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:             genai.Type(s.Type),
		Description:      s.Description,
		Enum:             append([]string(nil), s.Enum...),
		Required:         append([]string(nil), s.Required...),
		PropertyOrdering: append([]string(nil), s.PropertyOrdering...),
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	return out
}

// IsTransient reports whether err is an upstream rate-limit or server error worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return transientCode(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return transientCode(apiErrPtr.Code)
	}
	return false
}

func transientCode(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
