package install

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conn-castle/service-install/internal/messages"
)

// ErrorKind classifies installer failures.
type ErrorKind string

const (
	// KindSpec is malformed or incomplete input, reported before any mutation.
	KindSpec ErrorKind = "spec"
	// KindLocation is a missing, unusable or occupied install location.
	KindLocation ErrorKind = "location"
	// KindConflict is a collision the policy does not resolve.
	KindConflict ErrorKind = "conflict"
	// KindBackend is a systemd or crontab transport failure.
	KindBackend   ErrorKind = "backend"
	KindRollback  ErrorKind = "rollback"
	KindAggregate ErrorKind = "aggregate"
)

// Sentinels usable with errors.Is against any installer error.
var (
	ErrMissingServiceName  = errors.New("missing service name")
	ErrInvalidServiceName  = errors.New("invalid service name")
	ErrInvalidSpecValue    = errors.New("invalid spec value")
	ErrSourceNotFile       = errors.New("source is not a regular file")
	ErrUnknownUser         = errors.New("unknown user")
	ErrNeedsElevation      = errors.New("needs elevation")
	ErrNoSuitableLocation  = errors.New("no suitable location")
	ErrBackendUnavailable  = errors.New("backend unavailable")
	ErrScheduleUnsupported = errors.New("schedule unsupported")
	ErrLocationOccupied    = errors.New("location occupied")
	ErrProcessRunning      = errors.New("process running")
	ErrServiceConflict     = errors.New("service conflict")
	ErrNoInstallFound      = errors.New("no install found")
	ErrPlanConsumed        = errors.New("plan consumed")
)

// Error is a classified installer failure. errors.Is matches both its
// sentinel and anything in its cause chain.
type Error struct {
	Kind     ErrorKind
	Sentinel error
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Sentinel != nil {
		return e.Sentinel.Error()
	}
	return string(e.Kind) + " error"
}

// Unwrap exposes the sentinel and the cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Sentinel != nil {
		out = append(out, e.Sentinel)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func newError(kind ErrorKind, sentinel error, err error) *Error {
	return &Error{Kind: kind, Sentinel: sentinel, Err: err}
}

func specError(sentinel error, format string, args ...any) *Error {
	return newError(KindSpec, sentinel, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the outermost classified error in err's chain,
// or "" when there is none.
func KindOf(err error) ErrorKind {
	var rollbackErr *RollbackError
	if errors.As(err, &rollbackErr) {
		return KindRollback
	}
	var aggregateErr *AggregateError
	if errors.As(err, &aggregateErr) {
		return KindAggregate
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// RollbackFailure records one inverse step that failed during rollback.
type RollbackFailure struct {
	Step Step
	Err  error
}

// RollbackError is returned when a plan failed and undoing it also failed.
// The original failure stays reachable through errors.Is/As.
type RollbackError struct {
	Original error
	Failures []RollbackFailure
}

func (e *RollbackError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, messages.InstallRollbackHeaderFmt, e.Original, len(e.Failures))
	for _, failure := range e.Failures {
		b.WriteString("\n  ")
		fmt.Fprintf(&b, messages.InstallRollbackStepFailedFmt, failure.Step.Describe(TenseFuture), failure.Err)
	}
	return b.String()
}

// Unwrap exposes the original failure and every rollback failure.
func (e *RollbackError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures)+1)
	out = append(out, e.Original)
	for _, failure := range e.Failures {
		out = append(out, failure.Err)
	}
	return out
}

// AggregateError reports every failed step of a best-effort run.
type AggregateError struct {
	Outcomes []Outcome
}

// Failed returns the outcomes that carry an error.
func (e *AggregateError) Failed() []Outcome {
	var failed []Outcome
	for _, outcome := range e.Outcomes {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

func (e *AggregateError) Error() string {
	failed := e.Failed()
	var b strings.Builder
	fmt.Fprintf(&b, messages.InstallAggregateHeaderFmt, len(failed), len(e.Outcomes))
	for _, outcome := range failed {
		fmt.Fprintf(&b, messages.InstallAggregateLineFmt, outcome.Step.Describe(TenseFuture), outcome.Err)
	}
	return b.String()
}

// Unwrap exposes each step failure.
func (e *AggregateError) Unwrap() []error {
	failed := e.Failed()
	out := make([]error, 0, len(failed))
	for _, outcome := range failed {
		out = append(out, outcome.Err)
	}
	return out
}
