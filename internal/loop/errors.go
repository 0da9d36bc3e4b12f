package loop

import "errors"

// Registry and validation errors.
var (
	// ErrToolNotFound is returned when an action is not registered.
	ErrToolNotFound = errors.New("action not found")

	// ErrToolNameEmpty is returned when a tool has no name.
	ErrToolNameEmpty = errors.New("action name cannot be empty")

	// ErrToolExecuteNil is returned when a tool has no execute function.
	ErrToolExecuteNil = errors.New("action execute function cannot be nil")

	// ErrToolAlreadyRegistered is returned when registering a duplicate.
	ErrToolAlreadyRegistered = errors.New("action already registered")

	// ErrSecondTerminal is returned when registering a second terminal
	// action; exactly one action may end the loop.
	ErrSecondTerminal = errors.New("a terminal action is already registered")

	// ErrMissingRequiredArg is returned when a required argument is missing.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrUnknownArg is returned for an argument the schema does not declare.
	ErrUnknownArg = errors.New("unknown argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")
)
