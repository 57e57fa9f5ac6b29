package ingest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubRouter struct {
	reason        string
	gotRoomID     string
	gotStreamerID string
	gotMimeType   string
	gotData       []byte
}

func (s *stubRouter) IngestFrame(roomID, streamerID, mimeType string, data []byte) string {
	s.gotRoomID = roomID
	s.gotStreamerID = streamerID
	s.gotMimeType = mimeType
	s.gotData = data
	return s.reason
}

func postFrame(t *testing.T, srv *Server, streamerID string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ingest/frames/room-1", bytes.NewReader(body))
	req.Header.Set("Content-Type", "image/jpeg")
	if streamerID != "" {
		req.Header.Set("X-Streamer-ID", streamerID)
	}
	rec := httptest.NewRecorder()
	srv.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleFrame_Accepted(t *testing.T) {
	router := &stubRouter{reason: "accepted"}
	srv := NewServer(":0", router)

	rec := postFrame(t, srv, "user-9", []byte("frame-bytes"))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected accepted response, got %+v", resp)
	}
	if router.gotRoomID != "room-1" || router.gotStreamerID != "user-9" {
		t.Fatalf("unexpected routing: room=%s streamer=%s", router.gotRoomID, router.gotStreamerID)
	}
	if router.gotMimeType != "image/jpeg" || string(router.gotData) != "frame-bytes" {
		t.Fatalf("unexpected frame: mime=%s data=%q", router.gotMimeType, router.gotData)
	}
}

func TestHandleFrame_MissingStreamerID(t *testing.T) {
	router := &stubRouter{reason: "accepted"}
	srv := NewServer(":0", router)

	rec := postFrame(t, srv, "", []byte("frame-bytes"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestHandleFrame_RejectionStatusCodes(t *testing.T) {
	tests := []struct {
		reason     string
		wantStatus int
	}{
		{reason: "not active", wantStatus: http.StatusNotFound},
		{reason: "not watching", wantStatus: http.StatusNotFound},
		{reason: "frame rate limited", wantStatus: http.StatusTooManyRequests},
		{reason: "frame too large", wantStatus: http.StatusRequestEntityTooLarge},
		{reason: "unsupported mime type", wantStatus: http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			srv := NewServer(":0", &stubRouter{reason: tt.reason})
			rec := postFrame(t, srv, "user-9", []byte("x"))
			if rec.Code != tt.wantStatus {
				t.Fatalf("reason %q: unexpected status %d, want %d", tt.reason, rec.Code, tt.wantStatus)
			}
			var resp ingestResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Accepted || resp.Reason != tt.reason {
				t.Fatalf("unexpected response body: %+v", resp)
			}
		})
	}
}
