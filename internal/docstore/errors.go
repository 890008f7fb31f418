package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/statsgoblin/pkg/resilience"
)

// Error is a failed document store call. Transient errors may succeed on a
// later attempt; the rest will fail the same way every time.
type Error struct {
	Op         string
	StatusCode int
	Type       string
	Reason     string
	Transient  bool
	Timeout    bool
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("elasticsearch %s: %v", e.Op, e.Err)
	case e.Type != "":
		return fmt.Sprintf("elasticsearch %s: status %d: %s: %s", e.Op, e.StatusCode, e.Type, e.Reason)
	default:
		return fmt.Sprintf("elasticsearch %s: status %d", e.Op, e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets callers match transient failures against ErrStoreUnavailable and
// deadline failures against ErrTimeout.
func (e *Error) Is(target error) bool {
	switch target {
	case apperrors.ErrStoreUnavailable:
		return e.Transient
	case apperrors.ErrTimeout:
		return e.Timeout
	}
	return false
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Transient
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resilience.ErrCircuitOpen)
}

func transientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// transportError classifies a failure that produced no HTTP response.
func transportError(op string, err error) *Error {
	return &Error{
		Op:        op,
		Transient: true,
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Err:       err,
	}
}

// statusError builds an Error from a non-2xx response body of the form
// {"error":{"type":...,"reason":...},"status":...}.
func statusError(op string, code int, body io.Reader) *Error {
	e := &Error{
		Op:         op,
		StatusCode: code,
		Transient:  transientStatus(code),
		Timeout:    code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout,
	}
	var payload struct {
		Error json.RawMessage `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(body, 64<<10))
	if json.Unmarshal(data, &payload) != nil || len(payload.Error) == 0 {
		return e
	}
	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if json.Unmarshal(payload.Error, &detail) == nil {
		e.Type, e.Reason = detail.Type, detail.Reason
	} else {
		var msg string
		if json.Unmarshal(payload.Error, &msg) == nil {
			e.Reason = msg
		}
	}
	return e
}
