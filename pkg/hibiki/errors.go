package hibiki

import "errors"

var (
	// ErrRunnerClosed indicates task submission after the runner shut down.
	ErrRunnerClosed = errors.New("hibiki: runner closed")
	// ErrTaskRejected indicates a non-blocking submission found no free slot.
	ErrTaskRejected = errors.New("hibiki: task rejected at capacity")
	// ErrBlankName indicates a registry operation with an empty name.
	ErrBlankName = errors.New("hibiki: blank name")
	// ErrDuplicateName indicates a second registration under a taken name.
	ErrDuplicateName = errors.New("hibiki: name already registered")
	// ErrNotRegistered indicates a registry lookup miss.
	ErrNotRegistered = errors.New("hibiki: not registered")
	// ErrWrongType indicates a typed registry lookup found another type.
	ErrWrongType = errors.New("hibiki: registered value has wrong type")
)
