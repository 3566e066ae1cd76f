package workers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerError_Message(t *testing.T) {
	err := NewWorkerError("task_registry", "run", nil, "task already running for request r1")
	assert.Equal(t, "task already running for request r1", err.Error())
}

func TestWorkerError_WrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewWorkerError("task_registry", "persist", cause, "")

	assert.Equal(t, "task_registry:persist: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestWorkerError_NoCause(t *testing.T) {
	err := NewWorkerError("task_registry", "cancel", nil, "")
	assert.Equal(t, "task_registry:cancel: unknown error", err.Error())
	require.Nil(t, err.Unwrap())
}

func TestWorkerPanicError(t *testing.T) {
	assert.Equal(t, "worker panic: boom", (&WorkerPanicError{Panic: "boom"}).Error())
	assert.Equal(t, "worker panic: bad state", (&WorkerPanicError{Panic: fmt.Errorf("bad state")}).Error())
	assert.Equal(t, "worker panic: unknown panic", (&WorkerPanicError{Panic: 42}).Error())
}
