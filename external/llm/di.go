package llm

import (
	"github.com/glintworks/murmur/internal/config"
	llmpkg "github.com/glintworks/murmur/internal/llm"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (llmpkg.Generator, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewGenAIGenerator(cfg.GeminiAPIKey, cfg.ThoughtModel), nil
	})
}
