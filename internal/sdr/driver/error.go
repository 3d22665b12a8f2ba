package driver

import "fmt"

// RuntimeError is returned when the sweep utility binary cannot be located
type RuntimeError struct {
	Runtime string
	Err     error
}

func NewRuntimeError(runtime string, err error) *RuntimeError {
	return &RuntimeError{Runtime: runtime, Err: err}
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime '%s' not found: %s", e.Runtime, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}
