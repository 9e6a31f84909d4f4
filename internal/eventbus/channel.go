package eventbus

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

// Channel is the redis-backed SignalingChannel. One read loop dispatches
// decoded messages to subscribed handlers in publish order per method;
// there is no ordering guarantee across methods.
type Channel struct {
	sessionID     core.SessionID
	participantID core.ParticipantID

	rdb         *redis.Client
	pubsub      RedisBus
	presenceTTL time.Duration

	mu       sync.RWMutex
	handlers map[rpc.Method][]Handler

	stop        chan struct{}
	stopped     chan struct{}
	stopOnce    sync.Once
	stoppedOnce sync.Once
	closeOnce   sync.Once
	closeErr    error
}

func newChannel(rdb *redis.Client, pubsub RedisBus, sessionID core.SessionID, participantID core.ParticipantID, presenceTTL time.Duration) *Channel {
	return &Channel{
		sessionID:     sessionID,
		participantID: participantID,
		rdb:           rdb,
		pubsub:        pubsub,
		presenceTTL:   presenceTTL,
		handlers:      make(map[rpc.Method][]Handler),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

func (c *Channel) SessionID() core.SessionID {
	return c.sessionID
}

func (c *Channel) ParticipantID() core.ParticipantID {
	return c.participantID
}

// Publish is fire-and-forget to all current subscribers. Subscribers that
// join mid-publish may miss it; callers compensate with periodic
// re-announcement.
func (c *Channel) Publish(r rpc.Rpc) error {
	payload, err := r.ToJSON()
	if err != nil {
		return err
	}

	return c.rdb.Publish(context.Background(), signalingTopic(c.sessionID), payload).Err()
}

// Subscribe registers a handler for one method. Register before Start so
// no delivered message is missed.
func (c *Channel) Subscribe(method rpc.Method, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[method] = append(c.handlers[method], h)
}

// Start runs the read loop. The returned channel closes once the loop is
// consuming messages.
func (c *Channel) Start() <-chan struct{} {
	ready := make(chan struct{})

	go func() {
		defer c.stoppedOnce.Do(func() { close(c.stopped) })

		feed := c.pubsub.Channel()
		close(ready)

		for {
			select {
			case msg, ok := <-feed:
				if !ok {
					return
				}
				c.dispatch(msg.Payload)
			case <-c.stop:
				return
			}
		}
	}()

	return ready
}

// Stop terminates the read loop. The returned channel closes once the
// loop has exited.
func (c *Channel) Stop() <-chan struct{} {
	c.stopOnce.Do(func() { close(c.stop) })
	return c.stopped
}

// Close releases the subscription and this participant's presence entry.
// Idempotent.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		<-c.Stop()

		if err := c.UntrackPresence(context.Background()); err != nil {
			log.Error().Err(err).Str("service", "eventbus").Msg("untrack presence on close")
		}

		c.closeErr = c.pubsub.Close()
	})

	return c.closeErr
}

func (c *Channel) dispatch(payload string) {
	r, err := rpc.FromReader(strings.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Str("service", "eventbus").Msg("malformed signaling message")
		return
	}

	c.mu.RLock()
	handlers := append([]Handler(nil), c.handlers[r.GetMethod()]...)
	c.mu.RUnlock()

	for _, h := range handlers {
		h(r)
	}
}
