package presence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

// Tracker keeps the presenter visible on a channel. Presence entries are
// not durable, so the record is rewritten on a fixed interval, paired
// with a host_ready broadcast. The registry answers "who is here now",
// the broadcast reaches viewers who joined before the host.
type Tracker struct {
	channel  eventbus.SignalingChannel
	interval time.Duration

	onlineAt time.Time

	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func NewTracker(channel eventbus.SignalingChannel, interval time.Duration) *Tracker {
	return &Tracker{
		channel:  channel,
		interval: interval,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start writes the initial presence record and launches the heartbeat.
func (t *Tracker) Start(ctx context.Context) error {
	t.onlineAt = time.Now()

	if err := t.heartbeat(ctx); err != nil {
		return err
	}

	go t.run()

	return nil
}

// Stop cancels the heartbeat and broadcasts stream_ended exactly once.
// Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		<-t.stopped

		if err := t.channel.Publish(rpc.NewStreamEndedRpc(t.channel.SessionID())); err != nil {
			log.Error().Err(err).Str("service", "presence").Msg("broadcast stream_ended")
		}
		if err := t.channel.UntrackPresence(context.Background()); err != nil {
			log.Error().Err(err).Str("service", "presence").Msg("untrack presence")
		}
	})
}

func (t *Tracker) run() {
	defer close(t.stopped)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.heartbeat(context.Background()); err != nil {
				log.Error().Err(err).Str("service", "presence").Msg("heartbeat")
			}
		case <-t.stop:
			return
		}
	}
}

func (t *Tracker) heartbeat(ctx context.Context) error {
	record := eventbus.PresenceRecord{
		Role:      core.RoleHost,
		Streaming: true,
		OnlineAt:  t.onlineAt.UnixMilli(),
		LastPing:  time.Now().UnixMilli(),
	}

	if err := t.channel.TrackPresence(ctx, record); err != nil {
		return err
	}

	return t.channel.Publish(rpc.NewHostReadyRpc(t.channel.SessionID(), true))
}
