package practice

import (
	"errors"

	"github.com/MrWong99/pointread/pkg/capture"
	"github.com/MrWong99/pointread/pkg/scoring"
)

// State is the controller's position in the practice loop.
type State int

const (
	// Idle is the state before Init has loaded a sentence.
	Idle State = iota
	// Ready means a sentence is loaded and nothing has been recorded for it.
	Ready
	// Recording means a take is being captured.
	Recording
	// Recorded means a finished take is waiting to be submitted.
	Recorded
	// Submitting means a take is being scored.
	Submitting
	// Scored means the last submission produced a result.
	Scored
	// Failed means the last operation failed; see [FailureKind].
	Failed
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Ready:
		return "ready"
	case Recording:
		return "recording"
	case Recorded:
		return "recorded"
	case Submitting:
		return "submitting"
	case Scored:
		return "scored"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailureKind says why the controller entered [Failed].
type FailureKind int

const (
	FailureNone FailureKind = iota
	// FailureColdStart means the scoring backend never produced a score
	// within the retry budget.
	FailureColdStart
	// FailureNetwork covers transport errors and anything unclassified.
	FailureNetwork
	// FailurePermission means microphone access was refused.
	FailurePermission
	// FailureConfiguration means an endpoint has no base URL.
	FailureConfiguration
	// FailureMicrophone means the capture device failed for another reason.
	FailureMicrophone
	// FailureService means the backend answered with a non-retryable error.
	FailureService
)

// String returns the lower-case name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureNone:
		return "none"
	case FailureColdStart:
		return "cold_start"
	case FailureNetwork:
		return "network"
	case FailurePermission:
		return "permission"
	case FailureConfiguration:
		return "configuration"
	case FailureMicrophone:
		return "microphone"
	case FailureService:
		return "service"
	default:
		return "unknown"
	}
}

func classify(err error) FailureKind {
	var mic *capture.MicrophoneError
	switch {
	case err == nil:
		return FailureNone
	case errors.Is(err, capture.ErrPermissionDenied):
		return FailurePermission
	case errors.Is(err, scoring.ErrNotConfigured):
		return FailureConfiguration
	case errors.Is(err, scoring.ErrColdStart):
		return FailureColdStart
	case errors.Is(err, scoring.ErrHardService):
		return FailureService
	case errors.As(err, &mic):
		return FailureMicrophone
	default:
		return FailureNetwork
	}
}

// describe turns err into the text shown to the learner.
func describe(kind FailureKind, err error) string {
	switch kind {
	case FailureNone:
		return ""
	case FailureColdStart:
		return "The scoring service is still warming up. Please try again in a moment."
	case FailurePermission:
		return "Microphone access was denied. Allow access to the microphone and try again."
	case FailureConfiguration:
		return "The scoring service is not configured: " + err.Error()
	default:
		return err.Error()
	}
}
