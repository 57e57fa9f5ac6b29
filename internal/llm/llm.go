package llm

import "context"

// ImageInput is one inline image handed to a vision-capable model.
type ImageInput struct {
	MimeType string
	Data     []byte
}

type GenerateInput struct {
	Model        string
	SystemPrompt string
	UserPrompt   string
	Images       []ImageInput
}

type GenerateResult struct {
	Text     string
	Provider string
	Model    string
}

// Generator is the generic LLM capability: generate(prompt, media) -> text.
// Used by the vision-fallback stream-watch path and the thought-loop
// candidate generator.
type Generator interface {
	Generate(ctx context.Context, input GenerateInput) (GenerateResult, error)
}
