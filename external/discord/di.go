package discord

import (
	"github.com/glintworks/murmur/internal/config"
	discordpkg "github.com/glintworks/murmur/internal/discord"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (discordpkg.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewClient(cfg.DiscordToken), nil
	})
}
