package realtime

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	rt "github.com/glintworks/murmur/internal/realtime"
	"github.com/gorilla/websocket"
)

const (
	defaultHandshakeTimeout = 15 * time.Second
	bodyPreviewLimit        = 512
)

var redactedHeaders = map[string]struct{}{
	"authorization":       {},
	"proxy-authorization": {},
	"cookie":              {},
	"set-cookie":          {},
	"api-key":             {},
	"x-api-key":           {},
	"x-goog-api-key":      {},
}

// dialProvider opens the websocket, racing the handshake timeout against the
// socket's open/error/unexpected-response signals. Every failure is a single
// structured *realtime.ConnectError.
func dialProvider(ctx context.Context, provider, url string, header http.Header, timeout time.Duration) (*websocket.Conn, error) {
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := &websocket.Dialer{HandshakeTimeout: timeout}
	conn, resp, err := dialer.DialContext(dialCtx, url, header)
	if err == nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		return conn, nil
	}

	if resp != nil {
		defer func() { _ = resp.Body.Close() }()
		return nil, &rt.ConnectError{
			Provider:    provider,
			Source:      rt.ConnectSourceUnexpectedResponse,
			StatusCode:  resp.StatusCode,
			Headers:     redactHeaders(resp.Header),
			BodyPreview: previewBody(resp.Body),
			Err:         err,
		}
	}
	source := rt.ConnectSourceSocketError
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
		source = rt.ConnectSourceTimeout
	}
	return nil, &rt.ConnectError{Provider: provider, Source: source, Err: err}
}

func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vals := range h {
		key := strings.ToLower(k)
		if _, secret := redactedHeaders[key]; secret {
			out[key] = "[redacted]"
			continue
		}
		out[key] = strings.Join(vals, ", ")
	}
	return out
}

func previewBody(r io.Reader) string {
	if r == nil {
		return ""
	}
	buf := make([]byte, bodyPreviewLimit)
	n, _ := io.ReadFull(r, buf)
	return string(buf[:n])
}
