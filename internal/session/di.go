package session

import (
	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/config"
	"github.com/glintworks/murmur/internal/discord"
	"github.com/glintworks/murmur/internal/llm"
	"github.com/glintworks/murmur/internal/realtime"
	"github.com/glintworks/murmur/internal/settings"
	"github.com/glintworks/murmur/internal/transcriber"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		return NewManager(
			do.MustInvoke[*config.Config](i),
			do.MustInvoke[settings.Store](i),
			do.MustInvoke[discord.Client](i),
			do.MustInvoke[llm.Generator](i),
			do.MustInvoke[transcriber.Transcriber](i),
			do.MustInvoke[audio.MixerFactory](i),
			do.MustInvoke[audio.DecoderFactory](i),
			do.MustInvoke[audio.EncoderFactory](i),
			do.MustInvoke[realtime.ClientFactory](i),
		), nil
	})
}
