package advisor

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
}

// GeminiGenerator is the Generator backed by the Gemini API.
type GeminiGenerator struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiGenerator(ctx context.Context, cfg GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("advisor: gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: cfg.Model, temperature: cfg.Temperature}, nil
}

func (g *GeminiGenerator) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	temp := g.temperature
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature:      &temp,
		ResponseMIMEType: "application/json",
		ResponseSchema:   req.Schema,
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidModelOutput)
	}
	return []byte(text), nil
}
