package config

import (
	"errors"
	"fmt"
)

// Configuration validation errors returned by Config.Validate.
var (
	ErrNoBaseURL                = errors.New("no base url: set base_url or --base-url")
	ErrInvalidBaseURL           = errors.New("invalid base url: must be scheme://host[:port]")
	ErrNoStorageKey             = errors.New("no storage key for the fixture")
	ErrNoReadySelector          = errors.New("no readiness selector")
	ErrInvalidReadyTimeout      = errors.New("invalid readiness timeout: must be positive")
	ErrInvalidNavigationTimeout = errors.New("invalid navigation timeout: must be non-negative")
	ErrNoOutputDir              = errors.New("no output directory")
	ErrUnknownEngine            = errors.New("unknown engine: use playwright or rod")
	ErrInvalidViewport          = errors.New("invalid viewport: width and height must be positive")
	ErrNoSteps                  = errors.New("scenario has no steps")
	ErrInvalidStep              = errors.New("invalid step")
)

// StepError reports a malformed scenario step. It matches ErrInvalidStep.
type StepError struct {
	Step   Step
	Reason string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("invalid step %q: %s", e.Step.Kind, e.Reason)
}

func (e *StepError) Is(target error) bool {
	return target == ErrInvalidStep
}
