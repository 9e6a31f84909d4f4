package core

import (
	"time"
)

type SessionState string

const (
	SessionScheduled SessionState = "scheduled"
	SessionLive      SessionState = "live"
	SessionEnded     SessionState = "ended"
)

// Session is one lecture. Owned by the presenter; viewers reference it by
// id and never mutate it.
type Session struct {
	ID           SessionID     `json:"id" db:"id"`
	HostID       ParticipantID `json:"host_id" db:"host_id"`
	Title        string        `json:"title" db:"title"`
	Description  string        `json:"description,omitempty" db:"description"`
	State        SessionState  `json:"state" db:"state"`
	ViewersCount int           `json:"viewers_count,omitempty" db:"viewers_count"`
	StartedAt    *time.Time    `json:"started_at,omitempty" db:"started_at"`
	EndedAt      *time.Time    `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt    time.Time     `json:"created_at,omitempty" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty" db:"updated_at"`
}

func (s *Session) IsLive() bool {
	return s.State == SessionLive
}
