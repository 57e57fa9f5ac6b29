package audio

const (
	// TransportSampleRate is the discord voice sample rate.
	TransportSampleRate = 48000
	// TransportChannels is the discord voice channel count.
	TransportChannels = 2
	// ProviderSampleRate is the PCM16 mono rate exchanged with realtime
	// speech providers.
	ProviderSampleRate = 24000
	// FrameDurationMs is the native voice transport frame duration.
	FrameDurationMs = 20

	bytesPerSample = 2
)

// ProviderFrameBytes is the size of one transport-duration frame of provider
// PCM (24kHz mono PCM16, 20ms).
const ProviderFrameBytes = ProviderSampleRate * bytesPerSample * FrameDurationMs / 1000

// TransportFrameSamples is the per-channel sample count of one outbound frame.
const TransportFrameSamples = TransportSampleRate * FrameDurationMs / 1000

// BytesForDuration returns the PCM16 mono byte count covering ms milliseconds
// at the given sample rate.
func BytesForDuration(sampleRate, ms int) int {
	return sampleRate * bytesPerSample * ms / 1000
}

// DurationMsForBytes returns the duration in milliseconds of n bytes of PCM16
// mono audio at the given sample rate.
func DurationMsForBytes(sampleRate, n int) int {
	if sampleRate <= 0 {
		return 0
	}
	return n * 1000 / (sampleRate * bytesPerSample)
}

// AlignToFrame rounds n down to a whole multiple of frameBytes.
func AlignToFrame(n, frameBytes int) int {
	if frameBytes <= 0 {
		return n
	}
	return n - n%frameBytes
}

// ExpandProviderFrame converts one frame of provider PCM (24kHz mono) into a
// transport frame (48kHz stereo) by sample doubling. The input must hold
// PCM16 samples; a short final frame is zero-padded.
func ExpandProviderFrame(providerPCM []byte) []byte {
	out := make([]byte, TransportFrameSamples*TransportChannels*bytesPerSample)
	samples := len(providerPCM) / bytesPerSample
	if samples > ProviderFrameBytes/bytesPerSample {
		samples = ProviderFrameBytes / bytesPerSample
	}
	for i := 0; i < samples; i++ {
		lo := providerPCM[i*2]
		hi := providerPCM[i*2+1]
		// each 24kHz sample becomes two 48kHz sample pairs (L+R twice)
		base := i * 8
		out[base] = lo
		out[base+1] = hi
		out[base+2] = lo
		out[base+3] = hi
		out[base+4] = lo
		out[base+5] = hi
		out[base+6] = lo
		out[base+7] = hi
	}
	return out
}
