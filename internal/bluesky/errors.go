package bluesky

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/blackmichael/bluesky-sweep/internal/domain"
)

// xrpcError is the standard error body returned by XRPC endpoints.
type xrpcError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// apiMessage renders the XRPC error body, falling back to the raw body when
// it does not parse.
func apiMessage(status int, body []byte) string {
	var e xrpcError
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		if e.Message != "" {
			return e.Error + ": " + e.Message
		}
		return e.Error
	}
	return fmt.Sprintf("status %d: %s", status, body)
}

// classifyDeleteFailure maps a failed deleteRecord response onto the error
// taxonomy the deletion loop retries on. Rate limits carry the server's
// wait hint; 5xx is worth retrying; everything else (auth, validation,
// missing record) is permanent for this candidate.
func classifyDeleteFailure(status int, header http.Header, body []byte) error {
	msg := apiMessage(status, body)

	switch {
	case status == http.StatusTooManyRequests:
		return &domain.RateLimitError{RetryAfter: retryAfterHint(header, time.Now())}
	case status >= 500:
		return &domain.TransientError{Err: fmt.Errorf("api error: %s", msg)}
	default:
		return &domain.PermanentError{Err: fmt.Errorf("api error: %s", msg)}
	}
}

// retryAfterHint reads the server's wait hint from Retry-After (delta
// seconds or an HTTP date) or RateLimit-Reset (unix epoch). Zero when the
// server gave none.
func retryAfterHint(header http.Header, now time.Time) time.Duration {
	if v := header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		if at, err := http.ParseTime(v); err == nil {
			if d := at.Sub(now); d > 0 {
				return d
			}
		}
	}
	if v := header.Get("RateLimit-Reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}
