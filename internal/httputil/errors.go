package httputil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// FetchError reports a network failure, timeout, bot challenge or non-2xx status.
type FetchError struct {
	URL        string
	StatusCode int
	Challenge  bool
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.Challenge:
		return fmt.Sprintf("fetching %s: blocked by bot challenge (status %d)", e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("fetching %s: unexpected status %d", e.URL, e.StatusCode)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was a deadline or network timeout.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

var challengeMarkers = []string{
	"cf-chl",
	"challenge-platform",
	"<title>Just a moment...</title>",
	"ddos-guard",
}

func isChallenge(status int, h http.Header, body string) bool {
	if strings.EqualFold(h.Get("cf-mitigated"), "challenge") {
		return true
	}
	if status != http.StatusForbidden && status != http.StatusServiceUnavailable {
		return false
	}
	lower := strings.ToLower(body)
	for _, m := range challengeMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
