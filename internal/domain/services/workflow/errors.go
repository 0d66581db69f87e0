package workflow

import (
	"errors"
	"fmt"

	wf "meridian/internal/domain/models/workflow"
)

// ClassifiedError lets a step body declare how its failure should be
// handled, per the kinds enumerated in spec.md §7. An unclassified error
// returned by a step body defaults to Transient.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

type ErrorKind = wf.ErrorKind

const (
	Validation  = wf.ErrorKindValidation
	NotFoundErr = wf.ErrorKindNotFound
	Transient   = wf.ErrorKindTransient
	Fatal       = wf.ErrorKindFatal
	DataAnomaly = wf.ErrorKindDataAnomaly
)

func (e *ClassifiedError) Error() string { return e.Err.Error() }
func (e *ClassifiedError) Unwrap() error { return e.Err }

// AsFatal wraps err so the Step Executor treats it as non-retriable
// (spec.md §4.2 "Fatal" classification).
func AsFatal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: Fatal, Err: err}
}

// AsNotFound wraps err as a fatal NotFound (spec.md §7: "Fatal within a run").
func AsNotFound(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: NotFoundErr, Err: err}
}

// AsTransient wraps err explicitly as retriable.
func AsTransient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: Transient, Err: err}
}

// AsValidation wraps err as never-retried validation failure.
func AsValidation(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: Validation, Err: err}
}

// AsDataAnomaly wraps err as a self-healing data anomaly (spec.md §3, §7).
func AsDataAnomaly(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: DataAnomaly, Err: err}
}

// Classify determines the ErrorKind of an arbitrary error returned by a
// step body. Unclassified errors default to Transient so the executor
// retries unless/until the retry budget is exhausted.
func Classify(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Transient
}

// Retriable reports whether the executor should retry this error kind.
func Retriable(kind ErrorKind) bool {
	switch kind {
	case Validation, NotFoundErr, Fatal, DataAnomaly:
		return false
	default:
		return true
	}
}

// ClassifyHTTPStatus maps an external dependency's HTTP status to an
// ErrorKind, per spec.md §9's at-least-once idempotency rule: "4xx
// external responses are fatal", 5xx and network failures are transient.
func ClassifyHTTPStatus(status int) ErrorKind {
	switch {
	case status == 404:
		return NotFoundErr
	case status >= 400 && status < 500:
		return Fatal
	case status >= 500:
		return Transient
	default:
		return Transient
	}
}

// HTTPStatusError carries the classified status alongside a message,
// produced by the external HTTP clients in internal/service/video/*.
func HTTPStatusError(status int, format string, args ...interface{}) error {
	msg := fmt.Errorf(format, args...)
	kind := ClassifyHTTPStatus(status)
	return &ClassifiedError{Kind: kind, Err: msg}
}
