package session

import "fmt"

// Phase is the dictation controller lifecycle state.
type Phase string

const (
	PhaseIdle         Phase = "idle"
	PhaseRecording    Phase = "recording"
	PhaseTranscribing Phase = "transcribing"
	PhaseError        Phase = "error"
)

type phaseEvent string

const (
	eventStart       phaseEvent = "start"
	eventStop        phaseEvent = "stop"
	eventTranscribed phaseEvent = "transcribed"
	eventCancel      phaseEvent = "cancel"
	eventFail        phaseEvent = "fail"
	eventReset       phaseEvent = "reset"
)

// nextPhase applies one event to current.
func nextPhase(current Phase, event phaseEvent) (Phase, error) {
	switch current {
	case PhaseIdle:
		if event == eventStart {
			return PhaseRecording, nil
		}
	case PhaseRecording:
		switch event {
		case eventStop:
			return PhaseTranscribing, nil
		case eventCancel:
			return PhaseIdle, nil
		case eventFail:
			return PhaseError, nil
		}
	case PhaseTranscribing:
		switch event {
		case eventTranscribed:
			return PhaseIdle, nil
		case eventFail:
			return PhaseError, nil
		}
	case PhaseError:
		switch event {
		case eventReset:
			return PhaseIdle, nil
		case eventFail:
			return PhaseError, nil
		}
	}
	if event == eventFail {
		return PhaseError, nil
	}
	return current, fmt.Errorf("invalid session transition from %s on %s", current, event)
}
