package realtime

type SSEEvent string

const (
	SSEEventJourneyAttemptStarted    SSEEvent = "JourneyAttemptStarted"
	SSEEventJourneyAttemptProgressed SSEEvent = "JourneyAttemptProgressed"
	SSEEventJourneyAttemptCompleted  SSEEvent = "JourneyAttemptCompleted"
	SSEEventJourneyAttemptAbandoned  SSEEvent = "JourneyAttemptAbandoned"
	SSEEventJourneyReportReady       SSEEvent = "JourneyReportReady"
)

// SSEMessage is a notification fanned out to every client subscribed to Channel.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
