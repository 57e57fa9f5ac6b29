package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/glintworks/murmur/internal/session"
)

// maxBodyBytes bounds an ingest request body. Oversized frames are also
// rejected by session policy, but the transport refuses to buffer absurd
// bodies at all.
const maxBodyBytes = 8 << 20

// FrameRouter routes one screen-share frame to a room's session.
type FrameRouter interface {
	IngestFrame(roomID, streamerID, mimeType string, data []byte) string
}

var _ FrameRouter = (*session.Manager)(nil)

type Server struct {
	addr   string
	router FrameRouter
	srv    *http.Server
}

func NewServer(addr string, router FrameRouter) *Server {
	s := &Server{addr: addr, router: router}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /ingest/frames/{roomID}", s.handleFrame)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

type ingestResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// handleFrame accepts one frame as the raw request body. The streamer is
// named by the X-Streamer-ID header and the frame type by Content-Type.
func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	roomID := r.PathValue("roomID")
	streamerID := r.Header.Get("X-Streamer-ID")
	mimeType := r.Header.Get("Content-Type")
	if roomID == "" || streamerID == "" {
		writeJSON(w, http.StatusBadRequest, ingestResponse{Reason: "room id and streamer id are required"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ingestResponse{Reason: "failed to read request body"})
		return
	}
	if len(body) > maxBodyBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, ingestResponse{Reason: "frame too large"})
		return
	}

	reason := s.router.IngestFrame(roomID, streamerID, mimeType, body)
	switch reason {
	case "accepted":
		writeJSON(w, http.StatusOK, ingestResponse{Accepted: true})
	case "not active", "not watching":
		writeJSON(w, http.StatusNotFound, ingestResponse{Reason: reason})
	case "frame rate limited":
		writeJSON(w, http.StatusTooManyRequests, ingestResponse{Reason: reason})
	case "frame too large":
		writeJSON(w, http.StatusRequestEntityTooLarge, ingestResponse{Reason: reason})
	case "unsupported mime type":
		writeJSON(w, http.StatusUnsupportedMediaType, ingestResponse{Reason: reason})
	default:
		writeJSON(w, http.StatusUnprocessableEntity, ingestResponse{Reason: reason})
	}
}

func writeJSON(w http.ResponseWriter, status int, body ingestResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to write ingest response", "error", err)
	}
}

// Start serves until Stop is called.
func (s *Server) Start() error {
	slog.Info("ingest server listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
