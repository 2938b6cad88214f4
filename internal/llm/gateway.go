// Package llm is the narrow boundary to the language-model service.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInference is matched by every failure to obtain text from the service.
	ErrInference = errors.New("inference failed")
	// ErrUnreachable marks transport failures and timeouts, as opposed to
	// the service answering with an error status.
	ErrUnreachable = errors.New("inference service unreachable")
)

// GenerateRequest is one completion call.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Temperature float64
	Timeout     time.Duration
}

// Gateway generates text for a prompt.
type Gateway interface {
	Available(ctx context.Context) bool
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// ServiceError describes a failed call to the service.
type ServiceError struct {
	Model       string
	Status      int
	Body        string
	Unreachable bool
	Err         error
}

func (e *ServiceError) Error() string {
	switch {
	case e.Unreachable:
		return fmt.Sprintf("model %s: service unreachable: %v", e.Model, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("model %s: service returned status %d: %s", e.Model, e.Status, e.Body)
	default:
		return fmt.Sprintf("model %s: %v", e.Model, e.Err)
	}
}

func (e *ServiceError) Unwrap() []error {
	errs := []error{ErrInference}
	if e.Unreachable {
		errs = append(errs, ErrUnreachable)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// IsUnreachable reports whether err means the service could not be reached.
func IsUnreachable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
