package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mesapos/api/internal/store"
)

// Error kinds. Specific errors wrap exactly one kind and are matched with
// errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrNotFound            = errors.New("not found")
	ErrRemoteIO            = errors.New("store unavailable")
	ErrAuth                = errors.New("invalid credentials")
	ErrConflict            = errors.New("already exists")

	// ErrInvalidTransition is also an ErrValidation.
	ErrInvalidTransition = fmt.Errorf("%w: invalid state transition", ErrValidation)
)

var kinds = []error{
	ErrValidation, ErrOutOfStock, ErrInsufficientStock, ErrInsufficientPayment,
	ErrNotFound, ErrRemoteIO, ErrAuth, ErrConflict,
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeErr translates a store failure into the service taxonomy. Errors that
// already carry a kind pass through untouched.
func storeErr(err error, what string) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return err
		}
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, store.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrRemoteIO, what, err)
}
