package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	llmpkg "github.com/glintworks/murmur/internal/llm"
	"google.golang.org/genai"
)

type GenAIGenerator struct {
	apiKey       string
	defaultModel string
}

func NewGenAIGenerator(apiKey, defaultModel string) llmpkg.Generator {
	return &GenAIGenerator{apiKey: apiKey, defaultModel: defaultModel}
}

func (g *GenAIGenerator) Generate(ctx context.Context, input llmpkg.GenerateInput) (llmpkg.GenerateResult, error) {
	model := input.Model
	if model == "" {
		model = g.defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return llmpkg.GenerateResult{}, fmt.Errorf("create genai client: %w", err)
	}

	parts := []*genai.Part{genai.NewPartFromText(input.UserPrompt)}
	for _, img := range input.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	cfg := &genai.GenerateContentConfig{}
	if input.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(input.SystemPrompt, genai.RoleUser)
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llmpkg.GenerateResult{}, fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return llmpkg.GenerateResult{}, fmt.Errorf("model %s returned an empty response", model)
	}
	slog.Debug("llm generation complete", "model", model, "prompt_chars", len(input.UserPrompt), "images", len(input.Images), "response_chars", len(text))
	return llmpkg.GenerateResult{
		Text:     text,
		Provider: "gemini",
		Model:    model,
	}, nil
}
