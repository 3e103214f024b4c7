package scheduler

import (
	"errors"
	"fmt"
)

const (
	MinFrequency     = 5
	MaxFrequency     = 300
	DefaultFrequency = 30
)

var (
	// ErrInvalidFrequency is matched by every frequency ValidationError.
	ErrInvalidFrequency = errors.New("invalid collection frequency")
	ErrAlreadyStarted   = errors.New("scheduler already started")
)

// FrequencyRangeMessage is the user-facing message for an out-of-range frequency.
var FrequencyRangeMessage = fmt.Sprintf("Frequency must be between %d and %d seconds", MinFrequency, MaxFrequency)

// ValidationError reports a rejected configuration value.
type ValidationError struct {
	Field   string
	Value   int
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s=%d: %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidFrequency
}

// ValidateFrequency checks MinFrequency <= seconds <= MaxFrequency.
func ValidateFrequency(seconds int) error {
	if seconds < MinFrequency || seconds > MaxFrequency {
		return &ValidationError{
			Field:   "collection_frequency",
			Value:   seconds,
			Message: FrequencyRangeMessage,
		}
	}
	return nil
}

// ClampFrequency forces seconds into the valid range.
func ClampFrequency(seconds int) int {
	return max(MinFrequency, min(seconds, MaxFrequency))
}
