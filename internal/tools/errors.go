package tools

import "errors"

var (
	// ErrToolNotFound is returned when a plan references an unknown tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidArgs is returned when arguments fail schema validation
	// after coercion.
	ErrInvalidArgs = errors.New("invalid tool arguments")
)
