package template

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedReference means expansion could not terminate, or a
	// mandatory variable was not defined.
	ErrUnresolvedReference = errors.New("unresolved reference")
	// ErrInvalidExpression means a generator rejected its arguments.
	ErrInvalidExpression = errors.New("invalid expression")
)

// ReferenceError names the expression that could not be expanded.
type ReferenceError struct {
	Kind   error
	Expr   string
	Reason string
}

func (e *ReferenceError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Expr)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Expr, e.Reason)
}

func (e *ReferenceError) Unwrap() error { return e.Kind }

func unresolved(expr, format string, args ...any) error {
	return &ReferenceError{Kind: ErrUnresolvedReference, Expr: expr, Reason: fmt.Sprintf(format, args...)}
}
