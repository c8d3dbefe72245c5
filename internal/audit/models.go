package audit

import (
	"time"

	"github.com/google/uuid"
)

// EventType classifies audit events for filtering and retention.
type EventType string

const (
	EventStateTransition EventType = "STATE_TRANSITION"
	EventEvidence        EventType = "EVIDENCE_EVENT"
	EventValidationRun   EventType = "VALIDATION_RUN"
	EventAIInvocation    EventType = "AI_INVOCATION"
)

// Actions recorded under the event types above.
const (
	ActionCaseCreated        = "case_created"
	ActionStatusChanged      = "status_changed"
	ActionEvidenceRegistered = "evidence_registered"
	ActionEvidenceConfirmed  = "evidence_confirmed"
	ActionValidationStarted  = "validation_started"
	ActionValidationFinished = "validation_finished"
	ActionCapabilityCalled   = "capability_called"
)

// Event is an append-only record of something that happened to a case.
// Keep it transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID         uuid.UUID
	CaseID     string
	Type       EventType
	Action     string
	ActorType  string
	ActorID    string
	FromStatus string
	ToStatus   string
	Reason     string
	RequestID  string
	Payload    map[string]any
	Timestamp  time.Time
}

// Transition builds a STATE_TRANSITION event.
func Transition(caseID, from, to, reason string) Event {
	return Event{
		CaseID:     caseID,
		Type:       EventStateTransition,
		Action:     ActionStatusChanged,
		FromStatus: from,
		ToStatus:   to,
		Reason:     reason,
	}
}
