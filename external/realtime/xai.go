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
	xaiRealtimeURL  = "wss://api.x.ai/v1/realtime"
	xaiDefaultModel = "grok-3-realtime"
	xaiMinCommitMs  = 120
)

// NewXAIClient returns a realtime client speaking the xAI realtime wire
// format. The framing resembles OpenAI's but uses its own event names and a
// flat audio payload, so it gets its own codec.
func NewXAIClient(cfg ClientConfig) rt.Client {
	if cfg.Model == "" {
		cfg.Model = xaiDefaultModel
	}
	return newWSClient(&xaiCodec{}, cfg)
}

type xaiCodec struct{}

func (*xaiCodec) name() string { return "xai" }

func (*xaiCodec) dialTarget(cfg ClientConfig) (string, http.Header) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+cfg.APIKey)
	return xaiRealtimeURL + "?model=" + url.QueryEscape(cfg.Model), header
}

func (*xaiCodec) helloFrames(cfg ClientConfig) []any {
	voice := cfg.Voice
	if voice == "" {
		voice = "ara"
	}
	return []any{map[string]any{
		"type": "session.configure",
		"session": map[string]any{
			"instructions":  cfg.Instructions,
			"voice":         voice,
			"audio_format":  "pcm16",
			"vad":           "off",
			"transcription": true,
		},
	}}
}

type xaiInboundFrame struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *xaiCodec) decode(data []byte) []rt.Event {
	var frame xaiInboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return []rt.Event{{Type: rt.EventSocketError, Err: fmt.Errorf("xai frame decode: %w", err)}}
	}
	switch frame.Type {
	case "audio.delta":
		pcm, err := base64.StdEncoding.DecodeString(frame.Audio)
		if err != nil {
			return []rt.Event{{Type: rt.EventSocketError, Err: fmt.Errorf("xai audio delta decode: %w", err)}}
		}
		return []rt.Event{{Type: rt.EventAudioDelta, PCM: pcm}}
	case "transcript.user":
		return []rt.Event{{Type: rt.EventTranscript, Text: frame.Text, Final: frame.Final}}
	case "transcript.agent":
		return []rt.Event{{Type: rt.EventTranscript, Text: frame.Text, Final: frame.Final, OfResponse: true}}
	case "response.completed":
		return []rt.Event{{Type: rt.EventResponseDone}}
	case "error":
		if frame.Error == nil {
			return []rt.Event{{Type: rt.EventSocketError, Err: &rt.ProviderError{Provider: "xai"}}}
		}
		return []rt.Event{{Type: rt.EventSocketError, Err: &rt.ProviderError{
			Provider: "xai",
			Code:     frame.Error.Code,
			Message:  frame.Error.Message,
		}}}
	}
	return nil
}

func (*xaiCodec) audioAppendFrame(pcm []byte) any {
	return map[string]any{
		"type":  "audio.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}
}

func (*xaiCodec) videoFrameAppendFrame(string, []byte) any { return nil }

func (*xaiCodec) turnCommitFrames() []any {
	return []any{
		map[string]any{"type": "audio.commit"},
		map[string]any{"type": "response.request"},
	}
}

func (*xaiCodec) textUtteranceFrames(text string) []any {
	return []any{map[string]any{
		"type": "response.request",
		"response": map[string]any{
			"instructions": "Say exactly the following, naturally: " + text,
		},
	}}
}

func (*xaiCodec) videoCommentaryFrames(string) []any { return nil }

func (*xaiCodec) instructionFrames(text string) []any {
	return []any{map[string]any{
		"type": "session.configure",
		"session": map[string]any{
			"instructions": text,
		},
	}}
}

func (*xaiCodec) supportsVideo() bool { return false }

func (*xaiCodec) minCommitMs() int { return xaiMinCommitMs }
