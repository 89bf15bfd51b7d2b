package pipeline

import (
	"errors"
	"fmt"
)

// Stage names used in StageError.
const (
	StageAnalysis = "analysis"
	StageSearch   = "search"
	StagePricing  = "pricing"
)

// ErrNoKeywords is returned when the identification stage produced no search
// keywords, which makes the market lookup impossible.
var ErrNoKeywords = errors.New("analysis returned no search keywords")

// StageError wraps a failure from one pipeline stage. RetriesExhausted is
// set for model stages that failed on every attempt.
type StageError struct {
	Stage            string
	Err              error
	RetriesExhausted bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
