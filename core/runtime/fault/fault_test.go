package fault_test

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperterse/queryengine/core/runtime/fault"
	"github.com/hyperterse/queryengine/core/shared/errors"
)

type stringer struct{}

func (stringer) String() string { return "from stringer" }

func TestRun_Success(t *testing.T) {
	got, err := fault.Run(context.Background(), "ok", func(context.Context) (string, error) {
		return "value", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "value", got)
}

func TestRun_ErrorPassesThrough(t *testing.T) {
	sentinel := stderrors.New("plain failure")
	_, err := fault.Run(context.Background(), "fails", func(context.Context) (int, error) {
		return 0, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.False(t, errors.IsPanic(err))
}

func TestRun_Panics(t *testing.T) {
	tests := []struct {
		name            string
		panicWith       any
		expectedMessage string
	}{
		{name: "string", panicWith: "boom", expectedMessage: "PANIC: boom"},
		{name: "error", panicWith: stderrors.New("bad state"), expectedMessage: "PANIC: bad state"},
		{name: "stringer", panicWith: stringer{}, expectedMessage: "PANIC: from stringer"},
		{name: "other", panicWith: 42, expectedMessage: "PANIC: unknown fault"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fault.Run(context.Background(), "panics", func(context.Context) (string, error) {
				panic(tt.panicWith)
			})
			require.Error(t, err)

			var apiErr *errors.ApiError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, errors.KindCore, apiErr.Kind)
			assert.Equal(t, tt.expectedMessage, apiErr.Message)
		})
	}
}

func TestRun_RuntimeErrorPanic(t *testing.T) {
	err := fault.Do(context.Background(), "nil map", func(context.Context) error {
		var m map[string]int
		m["x"] = 1
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.IsPanic(err))
	assert.Contains(t, err.Error(), "assignment to entry in nil map")
}

func TestRun_UsableAfterPanic(t *testing.T) {
	_ = fault.Do(context.Background(), "first", func(context.Context) error {
		panic("first")
	})

	err := fault.Do(context.Background(), "second", func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}
