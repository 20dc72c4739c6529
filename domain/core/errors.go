package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input errors
	ErrNoInput       = errors.New("no input found")
	ErrShapeMismatch = errors.New("shape mismatch")
	ErrSiteMismatch  = fmt.Errorf("%w: site lists differ", ErrShapeMismatch)

	// Analysis errors
	ErrInvalidQuantile          = errors.New("invalid quantile")
	ErrInsufficientRealizations = errors.New("insufficient realizations for checkpoint")
	ErrInsufficientData         = errors.New("insufficient data for analysis")
	ErrInvalidCheckpoints       = errors.New("invalid checkpoint sequence")
)

// NewShapeError reports a grid whose dimensions do not match what the caller expected.
func NewShapeError(source string, got, want int) error {
	return fmt.Errorf("%w: %s has %d values, expected %d", ErrShapeMismatch, source, got, want)
}

// NewNoInputError reports a directory or site with nothing to read.
func NewNoInputError(what string) error {
	return fmt.Errorf("%w: %s", ErrNoInput, what)
}

func IsShapeError(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}

func IsNoInputError(err error) bool {
	return errors.Is(err, ErrNoInput)
}

// IsInputError reports errors caused by bad analysis parameters rather than bad files.
func IsInputError(err error) bool {
	return errors.Is(err, ErrInvalidQuantile) ||
		errors.Is(err, ErrInsufficientRealizations) ||
		errors.Is(err, ErrInsufficientData) ||
		errors.Is(err, ErrInvalidCheckpoints)
}
