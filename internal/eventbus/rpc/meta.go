package rpc

import (
	"time"

	"github.com/campuslive/lecturecast/internal/core"
)

// MessageMeta is carried by every signaling message so receivers on the
// shared channel can filter by session.
type MessageMeta struct {
	SessionID core.SessionID `json:"session_id"`
	Timestamp int64          `json:"timestamp"`
}

func newMeta(sessionID core.SessionID) MessageMeta {
	return MessageMeta{
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
	}
}
