package realtime

import (
	"fmt"
	"strings"
)

// ConnectSource tags what failed during a connection attempt.
type ConnectSource string

const (
	ConnectSourceTimeout            ConnectSource = "timeout"
	ConnectSourceUnexpectedResponse ConnectSource = "unexpected_response"
	ConnectSourceSocketError        ConnectSource = "socket_error"
)

// ConnectError is the single structured failure of a connection attempt.
// Headers are redacted before being stored; BodyPreview is truncated.
type ConnectError struct {
	Provider    string
	Source      ConnectSource
	StatusCode  int
	Headers     map[string]string
	BodyPreview string
	Err         error
}

func (e *ConnectError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "realtime connect failed (provider=%s source=%s", e.Provider, e.Source)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " status=%d", e.StatusCode)
	}
	b.WriteString(")")
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *ConnectError) Unwrap() error { return e.Err }

// recoverableFragments are provider error conditions that are transient for
// the logical operation that caused them: the caller re-issues the same
// command instead of ending the turn.
var recoverableFragments = []string{
	"buffer too small",
	"input_audio_buffer_commit_empty",
	"commit with empty buffer",
	"already has an active response",
	"response is already in progress",
	"conversation_already_has_active_response",
	"cancellation failed: no active response",
}

// ProviderError is an error frame received on an open provider socket.
type ProviderError struct {
	Provider string
	Code     string
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s error (code=%s): %s", e.Provider, e.Code, e.Message)
}

// Recoverable reports whether the caller should re-issue the same logical
// command instead of ending the turn.
func (e *ProviderError) Recoverable() bool {
	return IsRecoverable(e.Code, e.Message)
}

// IsRecoverable classifies a provider error payload. Anything not matched is
// fatal to the current turn.
func IsRecoverable(providerCode, providerMessage string) bool {
	haystack := strings.ToLower(providerCode + " " + providerMessage)
	for _, frag := range recoverableFragments {
		if strings.Contains(haystack, frag) {
			return true
		}
	}
	return false
}
