package proof

import (
	"errors"
	"fmt"
)

// Stage names the part of prove-and-submit that failed.
type Stage string

const (
	StageGeneration      Stage = "generation"
	StageSubmission      Stage = "submission"
	StageFinalityTimeout Stage = "finality-timeout"
)

// ProofError is returned by every failed prove-and-submit call.
type ProofError struct {
	Stage Stage
	Err   error
}

func (e *ProofError) Error() string {
	switch e.Stage {
	case StageGeneration:
		return fmt.Sprintf("proof generation failed: %v", e.Err)
	case StageFinalityTimeout:
		return "timed out waiting for block finality"
	default:
		return fmt.Sprintf("chain submission failed: %v", e.Err)
	}
}

func (e *ProofError) Unwrap() error { return e.Err }

// StageOf returns the stage carried by err, or "" for other errors.
func StageOf(err error) Stage {
	var pe *ProofError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}
