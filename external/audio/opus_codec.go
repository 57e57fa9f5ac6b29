//go:build opus

package audio

import (
	"fmt"

	"github.com/glintworks/murmur/internal/audio"
	"github.com/hraban/opus"
)

// speakerDecoder decodes one user's opus stream straight to provider-rate
// mono PCM16. Opus decoders resample natively, so no separate conversion
// stage is needed on the inbound path.
type speakerDecoder struct {
	dec *opus.Decoder
	buf []int16
}

func NewSpeakerDecoder() (audio.Decoder, error) {
	dec, err := opus.NewDecoder(audio.ProviderSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &speakerDecoder{
		dec: dec,
		buf: make([]int16, audio.ProviderSampleRate*audio.FrameDurationMs/1000*6),
	}, nil
}

func (d *speakerDecoder) Decode(opusPacket []byte) ([]byte, error) {
	if len(opusPacket) == 0 {
		return nil, nil
	}
	n, err := d.dec.Decode(opusPacket, d.buf)
	if err != nil {
		return nil, fmt.Errorf("opus decode: %w", err)
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		out[i*2] = byte(d.buf[i])
		out[i*2+1] = byte(d.buf[i] >> 8)
	}
	return out, nil
}

func (d *speakerDecoder) Close() {}

// playbackEncoder encodes transport-rate stereo PCM16 frames to opus for the
// outbound voice connection.
type playbackEncoder struct {
	enc *opus.Encoder
	buf []byte
}

func NewPlaybackEncoder() (audio.Encoder, error) {
	enc, err := opus.NewEncoder(audio.TransportSampleRate, audio.TransportChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	return &playbackEncoder{
		enc: enc,
		buf: make([]byte, 4000),
	}, nil
}

func (e *playbackEncoder) Encode(pcm []byte) ([]byte, error) {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
	}
	n, err := e.enc.Encode(samples, e.buf)
	if err != nil {
		return nil, fmt.Errorf("opus encode: %w", err)
	}
	packet := make([]byte, n)
	copy(packet, e.buf[:n])
	return packet, nil
}

func (e *playbackEncoder) Close() {}
