package keypager

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedCursor is returned when a keyset token cannot be parsed.
	ErrMalformedCursor = errors.New("malformed cursor")

	// ErrIncompleteCursor is returned when a boundary point lacks a sort key column.
	ErrIncompleteCursor = errors.New("incomplete cursor")

	// ErrInvalidSort is returned when an ordering cannot be used as a sort key.
	ErrInvalidSort = errors.New("invalid sort")
)

// MissingKeysError lists every sort key column absent from a boundary point.
type MissingKeysError struct {
	Columns []string
}

func (e *MissingKeysError) Error() string {
	return fmt.Sprintf("cursor seek position is missing keys: %s", strings.Join(e.Columns, ", "))
}

func (e *MissingKeysError) Unwrap() error {
	return ErrIncompleteCursor
}
