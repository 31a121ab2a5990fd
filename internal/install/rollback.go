package install

import "context"

// RollbackStack records the steps completed during one forward execution.
// It only grows while executing and is drained at most once.
type RollbackStack struct {
	completed []Step
	drained   bool
}

// Push records a completed step. Pushing after Drain is ignored.
func (s *RollbackStack) Push(step Step) {
	if s.drained {
		return
	}
	s.completed = append(s.completed, step)
}

// Len returns the number of completed steps recorded.
func (s *RollbackStack) Len() int {
	return len(s.completed)
}

// Drain applies the inverse of every recorded step in reverse completion
// order. A failed inverse is recorded and the drain continues; nothing is
// retried. Later calls do nothing.
func (s *RollbackStack) Drain(ctx context.Context, apply func(ctx context.Context, step Step) error) []RollbackFailure {
	if s.drained {
		return nil
	}
	s.drained = true
	var failures []RollbackFailure
	for i := len(s.completed) - 1; i >= 0; i-- {
		inverse := s.completed[i].Inverse()
		if err := apply(ctx, inverse); err != nil {
			failures = append(failures, RollbackFailure{Step: inverse, Err: err})
		}
	}
	s.completed = nil
	return failures
}
