package correlator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTimeout = errors.New("exchange timed out")
	ErrClosed  = errors.New("correlator is closed")
)

// TimeoutError rejects an exchange that saw no reply within its bound.
type TimeoutError struct {
	Op    string
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: no reply after %s", e.Op, e.After)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// FailureError carries the server's failure reply for one exchange.
type FailureError struct {
	Op      string
	Payload json.RawMessage
	Code    string
	Message string
}

func (e *FailureError) Error() string {
	detail := strings.TrimSpace(e.Message)
	if detail == "" {
		detail = strings.TrimSpace(string(e.Payload))
	}
	if detail == "" {
		detail = "failure reply"
	}
	if e.Code != "" {
		return fmt.Sprintf("%s failed [%s]: %s", e.Op, e.Code, detail)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, detail)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

func AsFailure(err error) (*FailureError, bool) {
	var fe *FailureError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
