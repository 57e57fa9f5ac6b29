package audio

import (
	"github.com/glintworks/murmur/internal/audio"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.ProvideValue(injector, audio.MixerFactory(func() audio.Mixer {
		return NewRoomMixer()
	}))
	do.ProvideValue(injector, audio.DecoderFactory(NewSpeakerDecoder))
	do.ProvideValue(injector, audio.EncoderFactory(NewPlaybackEncoder))
}
