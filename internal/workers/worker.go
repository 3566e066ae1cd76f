package workers

// WorkerError represents a worker-specific error
type WorkerError struct {
	WorkerName string
	Operation  string
	Err        error
	Message    string
}

func (e *WorkerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	prefix := e.WorkerName + ":" + e.Operation
	if e.Err != nil {
		return prefix + ": " + e.Err.Error()
	}
	return prefix + ": unknown error"
}

func (e *WorkerError) Unwrap() error {
	return e.Err
}

// NewWorkerError creates a new worker error
func NewWorkerError(workerName, operation string, err error, message string) *WorkerError {
	return &WorkerError{
		WorkerName: workerName,
		Operation:  operation,
		Err:        err,
		Message:    message,
	}
}

// WorkerPanicError represents a panic recovered from a pipeline task
type WorkerPanicError struct {
	Panic interface{}
}

func (e *WorkerPanicError) Error() string {
	return "worker panic: " + formatPanic(e.Panic)
}

func formatPanic(p interface{}) string {
	switch v := p.(type) {
	case string:
		return v
	case error:
		return v.Error()
	default:
		return "unknown panic"
	}
}
