package audio

import (
	"encoding/binary"
	"testing"
)

func TestBytesForDuration(t *testing.T) {
	cases := []struct {
		sampleRate int
		ms         int
		want       int
	}{
		{24000, 100, 4800},
		{24000, 20, 960},
		{48000, 250, 24000},
		{16000, 1000, 32000},
	}
	for _, tc := range cases {
		if got := BytesForDuration(tc.sampleRate, tc.ms); got != tc.want {
			t.Fatalf("BytesForDuration(%d, %d) = %d, want %d", tc.sampleRate, tc.ms, got, tc.want)
		}
	}
}

func TestDurationMsForBytes(t *testing.T) {
	if got := DurationMsForBytes(24000, 4800); got != 100 {
		t.Fatalf("DurationMsForBytes = %d, want 100", got)
	}
	if got := DurationMsForBytes(0, 4800); got != 0 {
		t.Fatalf("DurationMsForBytes with zero rate = %d, want 0", got)
	}
}

func TestAlignToFrame(t *testing.T) {
	if got := AlignToFrame(1000, 960); got != 960 {
		t.Fatalf("AlignToFrame(1000, 960) = %d, want 960", got)
	}
	if got := AlignToFrame(959, 960); got != 0 {
		t.Fatalf("AlignToFrame(959, 960) = %d, want 0", got)
	}
	if got := AlignToFrame(1920, 960); got != 1920 {
		t.Fatalf("AlignToFrame(1920, 960) = %d, want 1920", got)
	}
}

func TestExpandProviderFrame(t *testing.T) {
	in := make([]byte, ProviderFrameBytes)
	binary.LittleEndian.PutUint16(in[0:2], 0x1234)
	out := ExpandProviderFrame(in)
	wantLen := TransportFrameSamples * TransportChannels * 2
	if len(out) != wantLen {
		t.Fatalf("expanded frame length = %d, want %d", len(out), wantLen)
	}
	// the first provider sample covers the first two stereo pairs
	for i := 0; i < 4; i++ {
		got := binary.LittleEndian.Uint16(out[i*2 : i*2+2])
		if got != 0x1234 {
			t.Fatalf("sample %d = %#x, want 0x1234", i, got)
		}
	}
}

func TestExpandProviderFramePadsShortInput(t *testing.T) {
	out := ExpandProviderFrame(make([]byte, 10))
	wantLen := TransportFrameSamples * TransportChannels * 2
	if len(out) != wantLen {
		t.Fatalf("expanded frame length = %d, want %d", len(out), wantLen)
	}
	if out[wantLen-1] != 0 || out[wantLen-2] != 0 {
		t.Fatal("expected zero padding at frame tail")
	}
}

func TestWrapWAV(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	wav := WrapWAV(pcm, 24000, 1)
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatal("missing RIFF/WAVE magic")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 24000 {
		t.Fatalf("sample rate = %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 4 {
		t.Fatalf("data size = %d, want 4", got)
	}
}
