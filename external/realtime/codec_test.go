package realtime

import (
	"encoding/base64"
	"errors"
	"net/http"
	"testing"

	rt "github.com/glintworks/murmur/internal/realtime"
)

func TestOpenAIDecodeAudioDelta(t *testing.T) {
	pcm := []byte{1, 2, 3, 4}
	raw := []byte(`{"type":"response.audio.delta","delta":"` + base64.StdEncoding.EncodeToString(pcm) + `"}`)
	events := (&openAICodec{}).decode(raw)
	if len(events) != 1 || events[0].Type != rt.EventAudioDelta {
		t.Fatalf("expected one audio_delta event, got %+v", events)
	}
	if string(events[0].PCM) != string(pcm) {
		t.Fatal("decoded PCM mismatch")
	}
}

func TestOpenAIDecodeTranscriptAndDone(t *testing.T) {
	codec := &openAICodec{}
	events := codec.decode([]byte(`{"type":"conversation.item.input_audio_transcription.completed","transcript":"hello there"}`))
	if len(events) != 1 || events[0].Type != rt.EventTranscript || !events[0].Final || events[0].Text != "hello there" {
		t.Fatalf("unexpected transcript events: %+v", events)
	}
	events = codec.decode([]byte(`{"type":"response.done"}`))
	if len(events) != 1 || events[0].Type != rt.EventResponseDone {
		t.Fatalf("unexpected done events: %+v", events)
	}
}

func TestOpenAIDecodeRecoverableError(t *testing.T) {
	raw := []byte(`{"type":"error","error":{"type":"invalid_request_error","code":"input_audio_buffer_commit_empty","message":"commit with empty buffer"}}`)
	events := (&openAICodec{}).decode(raw)
	if len(events) != 1 || events[0].Type != rt.EventSocketError {
		t.Fatalf("expected socket_error event, got %+v", events)
	}
	var provErr *rt.ProviderError
	if !errors.As(events[0].Err, &provErr) {
		t.Fatalf("expected ProviderError, got %T", events[0].Err)
	}
	if !provErr.Recoverable() {
		t.Fatal("empty-buffer commit must classify as recoverable")
	}
}

func TestGeminiDecodeModelTurn(t *testing.T) {
	pcm := []byte{9, 9}
	raw := []byte(`{"serverContent":{"modelTurn":{"parts":[{"inlineData":{"mimeType":"audio/pcm;rate=24000","data":"` +
		base64.StdEncoding.EncodeToString(pcm) + `"}}]},"turnComplete":true}}`)
	events := (&geminiCodec{}).decode(raw)
	if len(events) != 2 {
		t.Fatalf("expected audio_delta + response_done, got %+v", events)
	}
	if events[0].Type != rt.EventAudioDelta || events[1].Type != rt.EventResponseDone {
		t.Fatalf("unexpected event order: %+v", events)
	}
}

func TestGeminiDecodeTranscriptions(t *testing.T) {
	raw := []byte(`{"serverContent":{"inputTranscription":{"text":"what is that","finished":true},"outputTranscription":{"text":"that is a cat","finished":true}}}`)
	events := (&geminiCodec{}).decode(raw)
	if len(events) != 2 {
		t.Fatalf("expected two transcript events, got %+v", events)
	}
	if events[0].OfResponse || !events[1].OfResponse {
		t.Fatalf("expected user then agent transcript, got %+v", events)
	}
}

func TestXAIDecode(t *testing.T) {
	codec := &xaiCodec{}
	events := codec.decode([]byte(`{"type":"transcript.user","text":"hey","final":true}`))
	if len(events) != 1 || events[0].Type != rt.EventTranscript || !events[0].Final {
		t.Fatalf("unexpected events: %+v", events)
	}
	events = codec.decode([]byte(`{"type":"error","error":{"code":"invalid_api_key","message":"bad key"}}`))
	if len(events) != 1 || events[0].Type != rt.EventSocketError {
		t.Fatalf("unexpected events: %+v", events)
	}
	var provErr *rt.ProviderError
	if !errors.As(events[0].Err, &provErr) || provErr.Recoverable() {
		t.Fatal("bad key must classify as fatal")
	}
}

func TestVideoSupportPerProvider(t *testing.T) {
	if (&openAICodec{}).supportsVideo() {
		t.Fatal("openai must not report native video")
	}
	if (&xaiCodec{}).supportsVideo() {
		t.Fatal("xai must not report native video")
	}
	if !(&geminiCodec{}).supportsVideo() {
		t.Fatal("gemini must report native video")
	}
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Api-Key", "secret2")
	h.Set("Content-Type", "application/json")
	got := redactHeaders(h)
	if got["authorization"] != "[redacted]" || got["x-api-key"] != "[redacted]" {
		t.Fatalf("secrets not redacted: %v", got)
	}
	if got["content-type"] != "application/json" {
		t.Fatalf("non-secret header mangled: %v", got)
	}
}

func TestNewClientUnknownProvider(t *testing.T) {
	if _, err := NewClient("smoke-signals", rt.ClientOptions{}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
