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
	geminiLiveURL      = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	geminiDefaultModel = "gemini-2.0-flash-live-001"
	geminiMinCommitMs  = 40
	geminiAudioMime    = "audio/pcm;rate=24000"
)

// NewGeminiClient returns a realtime client speaking the Gemini Live wire
// format. Gemini is the only provider with a native video channel.
func NewGeminiClient(cfg ClientConfig) rt.Client {
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	return newWSClient(&geminiCodec{}, cfg)
}

type geminiCodec struct{}

func (*geminiCodec) name() string { return "gemini" }

func (*geminiCodec) dialTarget(cfg ClientConfig) (string, http.Header) {
	// the key travels as a query parameter; the dial layer never logs URLs
	return geminiLiveURL + "?key=" + url.QueryEscape(cfg.APIKey), http.Header{}
}

func (*geminiCodec) helloFrames(cfg ClientConfig) []any {
	setup := map[string]any{
		"model": "models/" + cfg.Model,
		"generationConfig": map[string]any{
			"responseModalities": []string{"AUDIO"},
		},
	}
	if cfg.Instructions != "" {
		setup["systemInstruction"] = map[string]any{
			"parts": []any{map[string]any{"text": cfg.Instructions}},
		}
	}
	return []any{map[string]any{"setup": setup}}
}

type geminiInboundFrame struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		TurnComplete bool `json:"turnComplete"`
		Interrupted  bool `json:"interrupted"`
		ModelTurn    *struct {
			Parts []struct {
				Text       string `json:"text"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData"`
			} `json:"parts"`
		} `json:"modelTurn"`
		InputTranscription *struct {
			Text     string `json:"text"`
			Finished bool   `json:"finished"`
		} `json:"inputTranscription"`
		OutputTranscription *struct {
			Text     string `json:"text"`
			Finished bool   `json:"finished"`
		} `json:"outputTranscription"`
	} `json:"serverContent"`
	Error *struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *geminiCodec) decode(data []byte) []rt.Event {
	var frame geminiInboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return []rt.Event{{Type: rt.EventSocketError, Err: fmt.Errorf("gemini frame decode: %w", err)}}
	}
	if frame.Error != nil {
		return []rt.Event{{Type: rt.EventSocketError, Err: &rt.ProviderError{
			Provider: "gemini",
			Code:     frame.Error.Status,
			Message:  frame.Error.Message,
		}}}
	}
	sc := frame.ServerContent
	if sc == nil {
		return nil
	}
	var events []rt.Event
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil {
				pcm, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					events = append(events, rt.Event{Type: rt.EventSocketError, Err: fmt.Errorf("gemini audio decode: %w", err)})
					continue
				}
				events = append(events, rt.Event{Type: rt.EventAudioDelta, PCM: pcm})
			}
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		events = append(events, rt.Event{
			Type:  rt.EventTranscript,
			Text:  sc.InputTranscription.Text,
			Final: sc.InputTranscription.Finished,
		})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		events = append(events, rt.Event{
			Type:       rt.EventTranscript,
			Text:       sc.OutputTranscription.Text,
			Final:      sc.OutputTranscription.Finished,
			OfResponse: true,
		})
	}
	if sc.TurnComplete {
		events = append(events, rt.Event{Type: rt.EventResponseDone})
	}
	return events
}

func (*geminiCodec) audioAppendFrame(pcm []byte) any {
	return map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []any{map[string]any{
				"mimeType": geminiAudioMime,
				"data":     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
}

func (*geminiCodec) videoFrameAppendFrame(mime string, data []byte) any {
	return map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []any{map[string]any{
				"mimeType": mime,
				"data":     base64.StdEncoding.EncodeToString(data),
			}},
		},
	}
}

func (*geminiCodec) turnCommitFrames() []any {
	return []any{map[string]any{
		"realtimeInput": map[string]any{"audioStreamEnd": true},
	}}
}

func (*geminiCodec) textUtteranceFrames(text string) []any {
	return []any{map[string]any{
		"clientContent": map[string]any{
			"turns": []any{map[string]any{
				"role": "user",
				"parts": []any{map[string]any{
					"text": "Say exactly the following, naturally: " + text,
				}},
			}},
			"turnComplete": true,
		},
	}}
}

func (*geminiCodec) videoCommentaryFrames(hint string) []any {
	prompt := "Briefly comment out loud on what is happening in the shared video right now."
	if hint != "" {
		prompt += " " + hint
	}
	return []any{map[string]any{
		"clientContent": map[string]any{
			"turns": []any{map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": prompt}},
			}},
			"turnComplete": true,
		},
	}}
}

func (*geminiCodec) instructionFrames(text string) []any {
	// Gemini Live has no mid-session systemInstruction update; the refreshed
	// context travels as a user turn that does not request a reply.
	return []any{map[string]any{
		"clientContent": map[string]any{
			"turns": []any{map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": "(context update, do not reply) " + text}},
			}},
			"turnComplete": false,
		},
	}}
}

func (*geminiCodec) supportsVideo() bool { return true }

func (*geminiCodec) minCommitMs() int { return geminiMinCommitMs }
