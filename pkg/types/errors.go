package types

import "errors"

// ULID parse errors
var (
	ErrInvalidULIDLength    = errors.New("invalid ULID length")
	ErrInvalidULIDCharacter = errors.New("invalid ULID character")
)
