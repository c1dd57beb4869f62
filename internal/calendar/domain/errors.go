package domain

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a broken invariant, such as an absurd
// recurrence count. It is not caused by bad input data and must not be
// retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// MaxRecurrenceCount bounds count-limited recurrence rules.
const MaxRecurrenceCount = 1_000_000

var (
	ErrUnreasonableCount = &ConfigurationError{Reason: fmt.Sprintf("recurrence count exceeds %d", MaxRecurrenceCount)}
	ErrInvalidInterval   = &ConfigurationError{Reason: "recurrence interval must not be negative"}
	ErrImpossibleDate    = &ConfigurationError{Reason: "calendar computation produced no valid date"}

	ErrInvalidRawItem     = errors.New("invalid raw item")
	ErrSeriesNotFound     = errors.New("series not found")
	ErrOccurrenceNotFound = errors.New("occurrence not found")
	ErrEmptySeriesID      = errors.New("series id cannot be empty")
	ErrEmptyOccurrenceID  = errors.New("occurrence id cannot be empty")
)
