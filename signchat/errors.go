package signchat

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports missing or malformed caller input. No upstream call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UpstreamError reports a failed call to the translation microservice.
// Status is the upstream HTTP status for non-success responses and zero for
// network, transport or decode failures.
type UpstreamError struct {
	Op     string
	Status int
	Detail string
	Err    error
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("signchat %s: upstream returned %d", e.Op, e.Status)
	}
	return fmt.Sprintf("signchat %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Network reports whether the upstream was never reached or its reply was unusable.
func (e *UpstreamError) Network() bool { return e.Status == 0 }

// kind labels the failure for metrics.
func (e *UpstreamError) kind() string {
	if e.Network() {
		return "network"
	}
	return "status"
}

// StatusFor maps an error returned by Client to the HTTP status surfaced to callers:
//   - ValidationError            -> 400
//   - UpstreamError with status  -> 503
//   - UpstreamError without      -> 502
//   - anything else              -> 502
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest
	}
	var ue *UpstreamError
	if errors.As(err, &ue) && !ue.Network() {
		return http.StatusServiceUnavailable
	}
	return http.StatusBadGateway
}
