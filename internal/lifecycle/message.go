package lifecycle

import "github.com/campuslive/lecturecast/internal/core"

const (
	// SessionsSubject carries every session lifecycle event
	SessionsSubject = "lecturecast.sessions"
	// RosterQueue is the work-sharing queue group of roster workers
	RosterQueue = "roster"
)

type EventKind string

const (
	BroadcastStarted EventKind = "broadcast_started"
	BroadcastEnded   EventKind = "broadcast_ended"
	ViewersChanged   EventKind = "viewers_changed"
)

// Event transfers one session lifecycle change to the roster workers.
type Event struct {
	Kind      EventKind          `json:"kind"`
	SessionID core.SessionID     `json:"session_id"`
	HostID    core.ParticipantID `json:"host_id,omitempty"`
	Viewers   int                `json:"viewers,omitempty"`
}
