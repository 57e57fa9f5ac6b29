package audio

// Mixer folds per-user opus packets into a single mixed PCM stream. Used by
// the speech-to-text pipeline mode, which transcribes the room as one track.
type Mixer interface {
	WriteOpusPacket(userID string, opus []byte)
	ReadMixedPCM(buf []byte) (int, error)
	Close()
}

type MixerFactory func() Mixer

// Decoder decodes one user's opus packets into PCM16 mono at the provider
// sample rate. One decoder per speaker; not safe for concurrent use.
type Decoder interface {
	Decode(opusPacket []byte) ([]byte, error)
	Close()
}

type DecoderFactory func() (Decoder, error)

// Encoder encodes PCM16 stereo frames at the transport sample rate into opus
// packets for the outbound voice connection.
type Encoder interface {
	Encode(pcm []byte) ([]byte, error)
	Close()
}

type EncoderFactory func() (Encoder, error)
