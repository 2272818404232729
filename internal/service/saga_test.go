package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSagaCompensatesInReverseOrder(t *testing.T) {
	s := newSaga("test", nil)
	var order []string
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three"} {
		name := name
		require.NoError(t, s.Do(ctx, name, func(context.Context) error { return nil }, func(context.Context) error {
			order = append(order, name)
			return nil
		}))
	}
	require.Equal(t, 3, s.Len())

	require.NoError(t, s.Compensate(ctx))
	assert.Equal(t, []string{"three", "two", "one"}, order)
	assert.Equal(t, 0, s.Len())
}

func TestSagaFailedStepIsNotPushed(t *testing.T) {
	s := newSaga("test", nil)
	boom := errors.New("boom")

	err := s.Do(context.Background(), "step", func(context.Context) error { return boom }, func(context.Context) error {
		t.Fatal("undo of a failed step must not run")
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestSagaContinuesPastFailedUndo(t *testing.T) {
	s := newSaga("test", nil)
	var ran []string
	undoErr := errors.New("delete failed")

	s.Push("first", func(context.Context) error { ran = append(ran, "first"); return nil })
	s.Push("second", func(context.Context) error { ran = append(ran, "second"); return undoErr })
	s.Push("third", func(context.Context) error { ran = append(ran, "third"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Compensate(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, undoErr)
	assert.Equal(t, []string{"third", "second", "first"}, ran)
}
