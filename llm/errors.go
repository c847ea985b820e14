// Transport fault classification shared by the retry layer.
//
// A fault is transient when a retry is expected to help: connection
// failures, timeouts, and upstream 5xx responses. Everything else
// (auth failures, 4xx, malformed requests) propagates immediately.

package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/anthropics/anthropic-sdk-go"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/genai"
)

// TransientError reports whether err is a retryable transport fault.
func TransientError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		// RequestError covers transport-level failures before a usable
		// API response exists; 5xx bodies also land here.
		return reqErr.HTTPStatusCode == 0 || retryableStatus(reqErr.HTTPStatusCode)
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return retryableStatus(anthErr.StatusCode)
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Fallback heuristics for errors that reach us as plain strings.
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"timeout", "connection", "network", "temporarily unavailable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}

	return false
}

func retryableStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	}
	return false
}
