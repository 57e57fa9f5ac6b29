package realtime

import (
	"fmt"

	rt "github.com/glintworks/murmur/internal/realtime"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (rt.ClientFactory, error) {
		return NewClient, nil
	})
}

// NewClient builds a provider client by name.
func NewClient(provider string, opts rt.ClientOptions) (rt.Client, error) {
	cfg := ClientConfig{
		APIKey:       opts.APIKey,
		Model:        opts.Model,
		Instructions: opts.Instructions,
		Voice:        opts.Voice,
	}
	switch provider {
	case "openai":
		return NewOpenAIClient(cfg), nil
	case "gemini":
		return NewGeminiClient(cfg), nil
	case "xai":
		return NewXAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown realtime provider: %q", provider)
	}
}
