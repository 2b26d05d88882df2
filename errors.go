package ocrjudge

import "errors"

var (
	// ErrUnknownProvider is returned when a provider name is not present
	// in the registry.
	ErrUnknownProvider = errors.New("ocrjudge: unknown provider")

	// ErrUnknownModel is returned when a model name is not registered
	// under its provider.
	ErrUnknownModel = errors.New("ocrjudge: unknown model")

	// ErrInvalidConfig is returned for registry files that cannot be
	// loaded or decoded.
	ErrInvalidConfig = errors.New("ocrjudge: invalid configuration")
)
