//go:build !opus

package audio

import "github.com/glintworks/murmur/internal/audio"

type noopDecoder struct{}

func NewSpeakerDecoder() (audio.Decoder, error) {
	return &noopDecoder{}, nil
}

func (d *noopDecoder) Decode(_ []byte) ([]byte, error) {
	return nil, nil
}

func (d *noopDecoder) Close() {}

type noopEncoder struct{}

func NewPlaybackEncoder() (audio.Encoder, error) {
	return &noopEncoder{}, nil
}

func (e *noopEncoder) Encode(_ []byte) ([]byte, error) {
	return nil, nil
}

func (e *noopEncoder) Close() {}
