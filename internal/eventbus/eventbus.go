package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

var (
	// ErrChannelTimeout is returned when a channel could not be
	// established within the configured bound. Distinct from "opened but
	// no peer yet", which is not an error at all.
	ErrChannelTimeout = errors.New("signaling channel open timed out")
)

// Handler consumes one decoded signaling message.
type Handler func(rpc.Rpc)

// SignalingChannel is one named broadcast topic scoped to a single live
// session. Used for signaling only, never for media.
type SignalingChannel interface {
	SessionID() core.SessionID
	ParticipantID() core.ParticipantID

	Publish(r rpc.Rpc) error
	Subscribe(method rpc.Method, h Handler)
	Start() <-chan struct{}
	Stop() <-chan struct{}

	TrackPresence(ctx context.Context, record PresenceRecord) error
	UntrackPresence(ctx context.Context) error
	Presence(ctx context.Context) ([]PresenceRecord, error)

	Close() error
}

// RedisBus is the raw subscription feed of a channel
type RedisBus interface {
	Channel(opts ...redis.ChannelOption) <-chan *redis.Message
	Close() error
}

// Bus builds signaling channels on top of redis pub/sub
type Bus struct {
	rdb         *redis.Client
	openTimeout time.Duration
	presenceTTL time.Duration
}

func NewBus(rdb *redis.Client, openTimeout, presenceTTL time.Duration) *Bus {
	return &Bus{
		rdb:         rdb,
		openTimeout: openTimeout,
		presenceTTL: presenceTTL,
	}
}

// Open establishes the channel for one participant. Failing to establish
// within the open timeout is fatal for this attempt and surfaces as
// ErrChannelTimeout.
func (b *Bus) Open(ctx context.Context, sessionID core.SessionID, participantID core.ParticipantID) (*Channel, error) {
	openCtx, cancel := context.WithTimeout(ctx, b.openTimeout)
	defer cancel()

	pubsub := b.rdb.Subscribe(openCtx, signalingTopic(sessionID))
	// Wait until the subscription is created
	if _, err := pubsub.Receive(openCtx); err != nil {
		pubsub.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrChannelTimeout
		}
		return nil, err
	}

	return newChannel(b.rdb, pubsub, sessionID, participantID, b.presenceTTL), nil
}

func signalingTopic(sessionID core.SessionID) string {
	return "signaling:" + string(sessionID)
}

func presenceKey(sessionID core.SessionID) string {
	return "presence:" + string(sessionID)
}
