package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	rt "github.com/glintworks/murmur/internal/realtime"
)

const (
	openAIRealtimeURL  = "wss://api.openai.com/v1/realtime"
	openAIDefaultModel = "gpt-4o-realtime-preview"
	openAIMinCommitMs  = 100
)

// NewOpenAIClient returns a realtime client speaking the OpenAI realtime
// wire format.
func NewOpenAIClient(cfg ClientConfig) rt.Client {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	return newWSClient(&openAICodec{}, cfg)
}

type openAICodec struct{}

func (*openAICodec) name() string { return "openai" }

func (*openAICodec) dialTarget(cfg ClientConfig) (string, http.Header) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	return openAIRealtimeURL + "?model=" + url.QueryEscape(cfg.Model), header
}

func (*openAICodec) helloFrames(cfg ClientConfig) []any {
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}
	return []any{map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"instructions":        cfg.Instructions,
			"voice":               voice,
			"input_audio_format":  "pcm16",
			"output_audio_format": "pcm16",
			// the session layer owns turn taking; provider VAD stays off
			"turn_detection": nil,
			"input_audio_transcription": map[string]any{
				"model": "whisper-1",
			},
		},
	}}
}

type openAIInboundFrame struct {
	Type       string `json:"type"`
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
	Error      *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *openAICodec) decode(data []byte) []rt.Event {
	var frame openAIInboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return []rt.Event{{Type: rt.EventSocketError, Err: fmt.Errorf("openai frame decode: %w", err)}}
	}
	switch frame.Type {
	case "response.audio.delta", "response.output_audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(frame.Delta)
		if err != nil {
			return []rt.Event{{Type: rt.EventSocketError, Err: fmt.Errorf("openai audio delta decode: %w", err)}}
		}
		return []rt.Event{{Type: rt.EventAudioDelta, PCM: pcm}}
	case "conversation.item.input_audio_transcription.delta":
		return []rt.Event{{Type: rt.EventTranscript, Text: frame.Delta}}
	case "conversation.item.input_audio_transcription.completed":
		return []rt.Event{{Type: rt.EventTranscript, Text: frame.Transcript, Final: true}}
	case "response.audio_transcript.done":
		return []rt.Event{{Type: rt.EventTranscript, Text: frame.Transcript, Final: true, OfResponse: true}}
	case "response.done":
		return []rt.Event{{Type: rt.EventResponseDone}}
	case "error":
		if frame.Error == nil {
			return []rt.Event{{Type: rt.EventSocketError, Err: &rt.ProviderError{Provider: "openai"}}}
		}
		return []rt.Event{{Type: rt.EventSocketError, Err: &rt.ProviderError{
			Provider: "openai",
			Code:     frame.Error.Code,
			Message:  frame.Error.Message,
		}}}
	}
	return nil
}

func (*openAICodec) audioAppendFrame(pcm []byte) any {
	return map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}
}

func (*openAICodec) videoFrameAppendFrame(string, []byte) any { return nil }

func (*openAICodec) turnCommitFrames() []any {
	return []any{
		map[string]any{"type": "input_audio_buffer.commit"},
		map[string]any{"type": "response.create"},
	}
}

func (*openAICodec) textUtteranceFrames(text string) []any {
	return []any{map[string]any{
		"type": "response.create",
		"response": map[string]any{
			"instructions": "Say exactly the following, naturally: " + text,
		},
	}}
}

func (*openAICodec) videoCommentaryFrames(string) []any { return nil }

func (*openAICodec) instructionFrames(text string) []any {
	return []any{map[string]any{
		"type": "session.update",
		"session": map[string]any{
			"instructions": text,
		},
	}}
}

func (*openAICodec) supportsVideo() bool { return false }

func (*openAICodec) minCommitMs() int { return openAIMinCommitMs }
