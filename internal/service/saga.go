package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

type undoStep struct {
	name string
	undo func(context.Context) error
}

// saga records the undo action of every completed step of one orchestrator
// call and unwinds them newest first when a later step fails.
type saga struct {
	name   string
	steps  []undoStep
	logger *zap.Logger
}

func newSaga(name string, logger *zap.Logger) *saga {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &saga{name: name, logger: logger}
}

// Do runs step and, when it succeeds, pushes undo onto the stack.
func (s *saga) Do(ctx context.Context, name string, step func(context.Context) error, undo func(context.Context) error) error {
	if err := step(ctx); err != nil {
		return err
	}
	s.Push(name, undo)
	return nil
}

// Push registers the undo action of a step that already completed.
func (s *saga) Push(name string, undo func(context.Context) error) {
	if undo == nil {
		return
	}
	s.steps = append(s.steps, undoStep{name: name, undo: undo})
}

// Len reports how many undo actions are pending.
func (s *saga) Len() int {
	return len(s.steps)
}

// Compensate runs every pending undo in reverse order. A failed undo does not
// stop the unwind; all failures are joined into the returned error.
func (s *saga) Compensate(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			s.logger.Error("saga undo failed",
				zap.String("saga", s.name),
				zap.String("step", step.name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("undo %s: %w", step.name, err))
		}
	}
	s.steps = nil
	return errors.Join(errs...)
}
