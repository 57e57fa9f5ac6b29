package transcriber

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/glintworks/murmur/internal/audio"
	"github.com/glintworks/murmur/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const speechEndpointPort = 443

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

// CloudSpeechTranscriber runs one Cloud Speech v2 streaming recognizer per
// voice session, fed with the room's mixed transport-rate audio. Google caps
// a single stream at five minutes, so the writer transparently reopens the
// stream when the server aborts it mid-session.
type CloudSpeechTranscriber struct {
	cfg CloudSpeechConfig
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	cfg.Location = strings.TrimSpace(cfg.Location)
	cfg.Model = strings.TrimSpace(cfg.Model)
	return &CloudSpeechTranscriber{cfg: cfg}
}

func (t *CloudSpeechTranscriber) StartStreaming(ctx context.Context, sessionID, language string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	if language == "" {
		language = t.cfg.Language
	}
	slog.Info("starting cloud speech stream", "session_id", sessionID, "location", t.cfg.Location, "language", language, "model", t.cfg.Model)

	client, err := t.newSpeechClient(ctx)
	if err != nil {
		return nil, err
	}

	w := &recognizeStream{
		sessionID: sessionID,
		receiver:  receiver,
		open: func() (speechpb.Speech_StreamingRecognizeClient, error) {
			return t.openConfiguredStream(ctx, client, language)
		},
		release: client.Close,
	}
	if err := w.reopenLocked(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return w, nil
}

func (t *CloudSpeechTranscriber) newSpeechClient(ctx context.Context) (*speech.Client, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.cfg.CredentialsJSON),
		Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if t.cfg.Location != "global" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-speech.googleapis.com:%d", t.cfg.Location, speechEndpointPort)))
	}
	return speech.NewClient(ctx, opts...)
}

// openConfiguredStream opens a recognize stream and sends the config frame.
// The decoding config matches the mixer output: transport-rate stereo PCM16.
func (t *CloudSpeechTranscriber) openConfiguredStream(ctx context.Context, client *speech.Client, language string) (speechpb.Speech_StreamingRecognizeClient, error) {
	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		return nil, err
	}
	req := &speechpb.StreamingRecognizeRequest{
		Recognizer: fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.cfg.ProjectID, t.cfg.Location),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         t.cfg.Model,
					LanguageCodes: []string{language},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   audio.TransportSampleRate,
							AudioChannelCount: audio.TransportChannels,
						},
					},
					Features: &speechpb.RecognitionFeatures{},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: true},
			},
		},
	}
	if err := stream.Send(req); err != nil {
		_ = stream.CloseSend()
		return nil, err
	}
	return stream, nil
}

// recognizeStream is the per-session writer. All stream swaps happen under mu
// so that a reconnect triggered by a failed Write never races Close.
type recognizeStream struct {
	mu        sync.Mutex
	closed    bool
	sessionID string
	stream    speechpb.Speech_StreamingRecognizeClient
	receiver  transcriber.ResultReceiver
	open      func() (speechpb.Speech_StreamingRecognizeClient, error)
	release   func() error
}

func (w *recognizeStream) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: pcm},
	}
	err := w.stream.Send(req)
	if err == nil {
		return nil
	}
	if !isStreamRotation(err) {
		return err
	}
	slog.Warn("cloud speech stream rotated by server, reopening", "session_id", w.sessionID, "error", err)
	_ = w.stream.CloseSend()
	if err := w.reopenLocked(); err != nil {
		return fmt.Errorf("reopen recognize stream: %w", err)
	}
	return w.stream.Send(req)
}

func (w *recognizeStream) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.stream.CloseSend(); err != nil {
		_ = w.release()
		return err
	}
	return w.release()
}

func (w *recognizeStream) reopenLocked() error {
	next, err := w.open()
	if err != nil {
		return err
	}
	w.stream = next
	go w.pumpResults(next)
	return nil
}

// pumpResults forwards recognition results as segments until the stream ends.
// A server-side rotation ends this pump quietly; Write opens the replacement
// stream with its own pump.
func (w *recognizeStream) pumpResults(stream speechpb.Speech_StreamingRecognizeClient) {
	for {
		resp, err := stream.Recv()
		if err != nil {
			switch {
			case err == io.EOF || strings.Contains(err.Error(), "context canceled"):
				slog.Info("cloud speech receive loop stopped", "session_id", w.sessionID, "reason", err.Error())
			case isStreamRotation(err):
				slog.Warn("cloud speech receive loop ended with rotation", "session_id", w.sessionID, "error", err)
			default:
				w.receiver.OnError(err)
			}
			return
		}
		for i, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			w.receiver.OnSegment(transcriber.Segment{
				Index: i,
				Text:  alts[0].GetTranscript(),
				Final: result.GetIsFinal(),
			})
		}
	}
}

// isStreamRotation reports whether the error is the server retiring a
// healthy stream (the 5-minute cap or the idle timeout) rather than a real
// failure.
func isStreamRotation(err error) bool {
	if err == io.EOF || strings.Contains(strings.ToLower(err.Error()), "eof") {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}
