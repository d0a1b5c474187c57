package protocol

import (
	"errors"
	"fmt"
)

// ErrMalformed is matched by every parse failure that should cause the
// message to be dropped.
var ErrMalformed = errors.New("malformed message")

type MissingFieldError struct {
	MessageName string
	FieldName   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field %s in message type %s", e.FieldName, e.MessageName)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMalformed
}

type UnknownTypeError struct {
	Type MessageType
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", e.Type)
}

type UnknownCommandError struct {
	Command CommandName
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q", e.Command)
}
