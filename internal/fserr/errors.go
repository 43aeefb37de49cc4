package fserr

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrInvalidName is returned for a path component that would escape its
// parent directory (separators, "..", empty names).
var ErrInvalidName = errors.New("invalid name")

// ErrDisabled is returned by features switched off in the settings.
var ErrDisabled = errors.New("feature disabled")

// Code is a coarse classification of a filesystem failure.
type Code int

const (
	Other Code = iota
	NotExist
	Exist
	Permission
	InvalidName
	Disabled
)

func (c Code) String() string {
	switch c {
	case NotExist:
		return "not_exist"
	case Exist:
		return "exist"
	case Permission:
		return "permission"
	case InvalidName:
		return "invalid_name"
	case Disabled:
		return "disabled"
	default:
		return "other"
	}
}

// Error is a filesystem failure tagged with the domain entity it concerns.
type Error struct {
	// Op is what was being attempted ("move", "create", "read", ...).
	Op string

	// Entity names the thing involved ("cluster", "group", "image", "annotation").
	Entity string

	// Name is the entity's name as the operator knows it (not a disk path).
	Name string

	Code Code
	err  error
}

// Wrap tags err with op, entity and name. A nil err stays nil.
func Wrap(op, entity, name string, err error) error {
	if err == nil {
		return nil
	}

	var existing *Error
	if errors.As(err, &existing) && existing.Entity == entity && existing.Name == name {
		return err
	}

	return &Error{Op: op, Entity: entity, Name: name, Code: classify(err), err: err}
}

// NotFound builds a NotExist error without an underlying syscall error.
func NotFound(entity, name string) error {
	return &Error{Op: "lookup", Entity: entity, Name: name, Code: NotExist, err: fs.ErrNotExist}
}

// AlreadyExists builds an Exist error without an underlying syscall error.
func AlreadyExists(entity, name string) error {
	return &Error{Op: "create", Entity: entity, Name: name, Code: Exist, err: fs.ErrExist}
}

// Invalid builds an InvalidName error.
func Invalid(entity, name, reason string) error {
	return &Error{Op: "validate", Entity: entity, Name: name, Code: InvalidName, err: fmt.Errorf("%w: %s", ErrInvalidName, reason)}
}

func (e *Error) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.err)
	}
	return fmt.Sprintf("%s %s %q: %v", e.Op, e.Entity, e.Name, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// ErrCode reports the Code of the first *Error in err's chain, or classifies err directly.
func ErrCode(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return classify(err)
}

func classify(err error) Code {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NotExist
	case errors.Is(err, fs.ErrExist):
		return Exist
	case errors.Is(err, fs.ErrPermission):
		return Permission
	case errors.Is(err, ErrInvalidName):
		return InvalidName
	case errors.Is(err, ErrDisabled):
		return Disabled
	default:
		return Other
	}
}
