// Package ai asks a language model for category suggestions on transactions
// the pattern engine could not place.
package ai

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"money-tracker-go-be/apperr"
)

// Generator turns a prompt into model text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Gemini is a Generator backed by the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, apperr.Unavailable("gemini api key is not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	return &Gemini{client: client, model: model}, nil
}

func (g *Gemini) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", apperr.ExternalAPI("gemini", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", apperr.ExternalAPI("gemini", fmt.Errorf("empty response"))
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", apperr.ExternalAPI("gemini", fmt.Errorf("response has no text"))
	}
	return sb.String(), nil
}
