package mpesa

import (
	"errors"
	"fmt"
)

var (
	ErrUpstreamAuth    = errors.New("mpesa: authentication failed")
	ErrUpstreamRequest = errors.New("mpesa: request rejected")
	ErrUpstreamTimeout = errors.New("mpesa: request timed out")
)

// UpstreamError keeps the provider's response for logging. It matches its Kind
// under errors.Is.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%v: status %d: %s", e.Kind, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%v: %s", e.Kind, e.Body)
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == e.Kind }
