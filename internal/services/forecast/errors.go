package forecast

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Callers classify failures with errors.Is.
var (
	ErrEmptySeries          = errors.New("empty series")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrTrainingFailure      = errors.New("training failure")
	ErrCancelled            = errors.New("cancelled")
)

// PipelineError carries the context of a failure. It unwraps to both its
// kind and the underlying cause.
type PipelineError struct {
	Kind     error
	Segment  string
	Rows     int
	Strategy string
	Err      error
}

func (e *PipelineError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Segment != "" {
		fmt.Fprintf(&b, " (segment=%s rows=%d", e.Segment, e.Rows)
		if e.Strategy != "" {
			fmt.Fprintf(&b, " strategy=%s", e.Strategy)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *PipelineError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalidConfig(format string, args ...any) error {
	return &PipelineError{Kind: ErrInvalidConfiguration, Err: fmt.Errorf(format, args...)}
}

// Kind returns the error kind of err, or nil when it is not a pipeline error.
func Kind(err error) error {
	for _, k := range []error{ErrEmptySeries, ErrInvalidConfiguration, ErrCancelled, ErrTrainingFailure, ErrInsufficientData} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
