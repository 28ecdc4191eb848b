package assistant

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Kind classifies assistant failures for the user-facing message
type Kind int

const (
	KindOther Kind = iota
	KindMissingAPIKey
	KindInvalidAPIKey
	KindQuotaExceeded
)

func (k Kind) String() string {
	switch k {
	case KindMissingAPIKey:
		return "missing_api_key"
	case KindInvalidAPIKey:
		return "invalid_api_key"
	case KindQuotaExceeded:
		return "quota_exceeded"
	default:
		return "other"
	}
}

// Error is returned by every assistant operation that fails
type Error struct {
	Kind  Kind
	Model string
	Err   error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindMissingAPIKey:
		return "AI API key is not configured"
	case KindInvalidAPIKey:
		return "AI API key is invalid"
	case KindQuotaExceeded:
		return fmt.Sprintf("AI quota exhausted (429 RESOURCE_EXHAUSTED): %v", e.Err)
	}
	if e.Model != "" {
		return fmt.Sprintf("AI request failed on %s: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("AI request failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindOther if err is not an *Error
func KindOf(err error) Kind {
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindOther
}

// classify maps a transport error to a Kind using the API status when available
func classify(err error) Kind {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED":
			return KindQuotaExceeded
		case strings.Contains(apiErr.Message, "API_KEY_INVALID"),
			strings.Contains(apiErr.Message, "API key not valid"):
			return KindInvalidAPIKey
		}
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "API_KEY_INVALID"),
		strings.Contains(strings.ToLower(msg), "invalid api key"),
		strings.Contains(msg, "API key not valid"):
		return KindInvalidAPIKey
	case strings.Contains(msg, "429"), strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return KindQuotaExceeded
	}
	return KindOther
}
