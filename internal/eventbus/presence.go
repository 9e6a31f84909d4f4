package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/campuslive/lecturecast/internal/core"
)

// PresenceRecord states that a participant is currently reachable on a
// channel. Entries are not durable beyond the writer's connection
// lifetime: the writer rewrites its record periodically and readers judge
// liveness by LastPing, not by mere existence.
type PresenceRecord struct {
	ParticipantID core.ParticipantID `json:"participant_id"`
	Role          core.Role          `json:"role"`
	SessionID     core.SessionID     `json:"session_id"`
	Streaming     bool               `json:"streaming"`
	OnlineAt      int64              `json:"online_at"`
	LastPing      int64              `json:"last_ping"`
}

// Live reports whether the record was refreshed within three heartbeat
// intervals.
func (r PresenceRecord) Live(interval time.Duration) bool {
	stale := time.Now().Add(-3 * interval)
	return time.UnixMilli(r.LastPing).After(stale)
}

// TrackPresence writes this participant's record. Last write wins per
// writer identity.
func (c *Channel) TrackPresence(ctx context.Context, record PresenceRecord) error {
	record.ParticipantID = c.participantID
	record.SessionID = c.sessionID

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	key := presenceKey(c.sessionID)
	if err := c.rdb.HSet(ctx, key, string(c.participantID), payload).Err(); err != nil {
		return err
	}

	// The whole registry evaporates if every writer stops refreshing.
	return c.rdb.Expire(ctx, key, c.presenceTTL).Err()
}

func (c *Channel) UntrackPresence(ctx context.Context) error {
	return c.rdb.HDel(ctx, presenceKey(c.sessionID), string(c.participantID)).Err()
}

// Presence lists all records currently on the channel.
func (c *Channel) Presence(ctx context.Context) ([]PresenceRecord, error) {
	fields, err := c.rdb.HGetAll(ctx, presenceKey(c.sessionID)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]PresenceRecord, 0, len(fields))
	for _, raw := range fields {
		record := PresenceRecord{}
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}
