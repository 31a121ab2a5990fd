package install

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conn-castle/service-install/internal/messages"
)

// Applier performs one step.
type Applier interface {
	Apply(ctx context.Context, step Step) error
}

// Outcome is the result of one step of a best-effort run.
type Outcome struct {
	Index int
	Step  Step
	Err   error
}

// Executor runs steps strictly one after another.
type Executor struct {
	applier Applier
	logger  *slog.Logger
}

// NewExecutor returns an Executor applying steps through applier.
func NewExecutor(applier Applier, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{applier: applier, logger: logger}
}

// Execute runs steps in order. On the first failure it undoes every
// completed step in reverse completion order and returns the failure, wrapped
// in a RollbackError when undoing failed too. A plan holding an unknown step
// kind is rejected before any step runs.
func (e *Executor) Execute(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if _, known := verbs[step.Kind]; !known {
			return fmt.Errorf(messages.InstallUnknownStepKindFmt, step.Kind)
		}
	}
	var stack RollbackStack
	for i, step := range steps {
		e.logger.Debug("step started", "index", i, "kind", step.Kind, "step", step.Describe(TenseActive))
		if err := e.applier.Apply(ctx, step); err != nil {
			stepErr := fmt.Errorf(messages.InstallStepFailedFmt, i+1, step.Describe(TenseFuture), err)
			e.logger.Warn("step failed, rolling back", "index", i, "kind", step.Kind, "completed", stack.Len(), "error", err)
			failures := stack.Drain(context.WithoutCancel(ctx), e.rollbackApply)
			if len(failures) > 0 {
				return &RollbackError{Original: stepErr, Failures: failures}
			}
			return stepErr
		}
		stack.Push(step)
		e.logger.Info("step completed", "index", i, "kind", step.Kind, "step", step.Describe(TensePast))
	}
	return nil
}

func (e *Executor) rollbackApply(ctx context.Context, step Step) error {
	err := e.applier.Apply(ctx, step)
	if err != nil {
		e.logger.Error("rollback step failed", "kind", step.Kind, "step", step.Describe(TenseFuture), "error", err)
		return err
	}
	e.logger.Info("rolled back", "kind", step.Kind, "step", step.Describe(TensePast))
	return nil
}

// BestEffort runs every step exactly once regardless of failures and returns
// one outcome per step. The error is an AggregateError iff any step failed.
func (e *Executor) BestEffort(ctx context.Context, steps []Step) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(steps))
	failed := false
	for i, step := range steps {
		var err error
		if _, known := verbs[step.Kind]; !known {
			err = fmt.Errorf(messages.InstallUnknownStepKindFmt, step.Kind)
		} else {
			err = e.applier.Apply(ctx, step)
		}
		if err != nil {
			failed = true
			e.logger.Warn("step failed, continuing", "index", i, "kind", step.Kind, "error", err)
		} else {
			e.logger.Info("step completed", "index", i, "kind", step.Kind, "step", step.Describe(TensePast))
		}
		outcomes = append(outcomes, Outcome{Index: i, Step: step, Err: err})
	}
	if failed {
		return outcomes, &AggregateError{Outcomes: outcomes}
	}
	return outcomes, nil
}
