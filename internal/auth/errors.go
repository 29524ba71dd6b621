package auth

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrForbidden    = errors.New("auth: forbidden")
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrUnavailable  = errors.New("auth: not available in this deployment")

	// ErrCircularPolicy is returned by a profile store whose own access policy
	// recursed while evaluating the lookup. It is distinct from ErrNotFound.
	ErrCircularPolicy = errors.New("auth: circular policy evaluation")
)

// DeniedError carries the reason of a negative authorization decision.
type DeniedError struct {
	Action Action
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("not authorized to %s: %s", e.Action.describe(), e.Reason)
}

func (e *DeniedError) Unwrap() error { return ErrForbidden }
