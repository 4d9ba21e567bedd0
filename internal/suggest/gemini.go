package suggest

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini model. An empty apiKey falls back to the
// client's environment lookup (GOOGLE_API_KEY / GEMINI_API_KEY).
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGemini: create genai client: %w", err)
	}
	return &Gemini{client: client, model: model}, nil
}

// Generate implements Model.
func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: %w", err)
	}
	return resp.Text(), nil
}

var _ Model = (*Gemini)(nil)
