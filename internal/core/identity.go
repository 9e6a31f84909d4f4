package core

// SessionID identifies one lecture session.
type SessionID string

// ParticipantID identifies a participant on a signaling channel. For the
// presenter it is the host's user id, for viewers it is generated per join.
type ParticipantID string

// Role determines the participant role on a channel
type Role string

const (
	// RoleHost is the presenter of a lecture
	RoleHost Role = "host"
	// RoleViewer is a watching student
	RoleViewer Role = "viewer"
)

// Identity is the caller identity consumed from the external auth
// collaborator. It is used for labeling connections and chat authorship
// only, never for authorization.
type Identity struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"display_name"`
}
