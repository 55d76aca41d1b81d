package issue_tracker

import "fmt"

// TransportError is returned when no HTTP response was received.
type TransportError struct {
	Method string
	URI    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: transport: %v", e.Method, e.URI, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned for any response other than 200 OK.
type ProtocolError struct {
	Method     string
	URI        string
	StatusCode int
	Body       string
}

func (e *ProtocolError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: status code not 200 OK: %d", e.Method, e.URI, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: status code not 200 OK: %d body=%s", e.Method, e.URI, e.StatusCode, e.Body)
}
