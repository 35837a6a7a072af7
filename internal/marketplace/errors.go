package marketplace

import "fmt"

// APIError is a non-zero application code returned inside an HTTP-200 body.
// These are routine upstream outcomes, not transport failures, and carry the
// upstream code and message for operator diagnosis.
type APIError struct {
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("marketplace api error %s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("marketplace api error %s: %s", e.Code, e.Message)
}

// TransportError is a network failure or non-2xx HTTP response. The client
// never retries these; retry policy belongs to callers.
type TransportError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("marketplace request %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("marketplace request %s: http %d: %s", e.Path, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error { return e.Err }
