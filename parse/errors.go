package parse

import (
	"errors"
	"fmt"

	"tidbyt.dev/gtfsimport/model"
)

var (
	ErrMissingMember = errors.New("missing archive member")
	ErrInvalidUTF8   = errors.New("invalid UTF-8")

	ErrAmbiguousMember = errors.New("member found in more than one directory")
)

// Archive could not be opened, or a member could not be found or
// read.
type ArchiveError struct {
	Member string
	Err    error
}

func (e *ArchiveError) Error() string {
	if e.Member == "" {
		return fmt.Sprintf("archive: %v", e.Err)
	}
	return fmt.Sprintf("archive member %s: %v", e.Member, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// Delimited text could not be decoded. Line is 1-based.
type DecodeError struct {
	Line int
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding line %d: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// A data row does not have the number of fields required by its
// entity kind.
type SchemaError struct {
	Kind model.EntityKind
	Line int
	Got  int
	Want int
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s on line %d has %d fields, want %d", e.Kind, e.Line, e.Got, e.Want)
}
