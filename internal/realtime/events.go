package realtime

import "github.com/google/uuid"

// EventType is the "type" field of a turn stream event.
type EventType string

const (
	EventConnection    EventType = "connection"
	EventMetadata      EventType = "metadata"
	EventChunk         EventType = "chunk"
	EventEvaluating    EventType = "evaluating"
	EventRating        EventType = "rating"
	EventGenerating    EventType = "generating"
	EventResponseStart EventType = "response_start"
	EventDone          EventType = "done"
	EventError         EventType = "error"
)

type ConnectionEvent struct {
	Type   EventType `json:"type"`
	Status string    `json:"status"`
}

func NewConnectionEvent() ConnectionEvent {
	return ConnectionEvent{Type: EventConnection, Status: "established"}
}

// MetadataEvent opens the first turn of a step.
type MetadataEvent struct {
	Type          EventType `json:"type"`
	StepID        uuid.UUID `json:"step_id"`
	StepOrder     int       `json:"step_order"`
	StepTitle     string    `json:"step_title"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	CurrentStep   int       `json:"current_step"`
	TotalSteps    int       `json:"total_steps"`
	AttemptCount  int       `json:"attempt_count"`
	TotalAttempts int       `json:"total_attempts"`
}

type ChunkEvent struct {
	Type  EventType `json:"type"`
	Text  string    `json:"text"`
	Index int       `json:"index"`
}

// PhaseEvent marks the evaluating and generating phases of a submit turn.
type PhaseEvent struct {
	Type EventType `json:"type"`
}

type RatingEvent struct {
	Type           EventType `json:"type"`
	Rating         int       `json:"rating"`
	Attempt        int       `json:"attempt"`
	MaxAttempts    int       `json:"max_attempts"`
	RequiredRating int       `json:"required_rating"`
	Action         string    `json:"action"`
}

// StepPreview is the look-ahead sent when a turn advances to another step.
type StepPreview struct {
	ID      uuid.UUID `json:"id"`
	Title   string    `json:"title"`
	Order   int       `json:"order"`
	Content string    `json:"content"`
}

type ResponseStartEvent struct {
	Type      EventType    `json:"type"`
	StepID    uuid.UUID    `json:"step_id"`
	AttemptID uuid.UUID    `json:"attempt_id"`
	NextStep  *StepPreview `json:"next_step,omitempty"`
}

type DoneEvent struct {
	Type                 EventType    `json:"type"`
	Action               string       `json:"action,omitempty"`
	Rating               *int         `json:"rating,omitempty"`
	CanContinue          bool         `json:"can_continue"`
	IsComplete           bool         `json:"is_complete"`
	CurrentStepCompleted bool         `json:"current_step_completed"`
	CurrentStepOrder     int          `json:"current_step_order"`
	AttemptCurrentStep   int          `json:"attempt_current_step"`
	TotalSteps           int          `json:"total_steps"`
	StepAttemptCount     int          `json:"step_attempt_count"`
	StepMaxAttempts      int          `json:"step_max_attempts"`
	NextStep             *StepPreview `json:"next_step,omitempty"`
}

type ErrorEvent struct {
	Type    EventType `json:"type"`
	Message string    `json:"message"`
}
