package lifecycle

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
)

// Daemon is the roster worker. It consumes session lifecycle events in a
// queue group and keeps the sessions table in step with what actually
// happens on the signaling side.
type Daemon struct {
	nc       *nats.Conn
	sub      *nats.Subscription
	sessions core.SessionsDBStorer

	errors chan error
	stop   chan struct{}
}

func New(natsAddr string, sessions core.SessionsDBStorer) (*Daemon, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}

	daemon := &Daemon{
		nc:       nc,
		sessions: sessions,
		errors:   make(chan error),
		stop:     make(chan struct{}),
	}

	return daemon, nil
}

func (d *Daemon) Run() error {
	log.Info().Str("service", "lifecycle").Msg("start roster daemon")

	var err error
	d.sub, err = d.nc.QueueSubscribe(SessionsSubject, RosterQueue, func(msg *nats.Msg) {
		if err := d.apply(msg); err != nil {
			d.errors <- err
		}
	})
	if err != nil {
		return err
	}

	for {
		select {
		case err := <-d.errors:
			log.Error().Err(err).Str("service", "lifecycle").Msg("event failed")
		case <-d.stop:
			return d.shutdown()
		}
	}
}

func (d *Daemon) Stop() {
	close(d.stop)
}

func (d *Daemon) shutdown() error {
	log.Info().Str("service", "lifecycle").Msg("stop roster daemon")

	if err := d.sub.Unsubscribe(); err != nil {
		log.Error().Err(err).Str("service", "lifecycle").Msg("cannot unsubscribe")
	}

	return d.nc.Drain()
}

func (d *Daemon) apply(msg *nats.Msg) error {
	event := &Event{}

	r := bytes.NewReader(msg.Data)
	if err := json.NewDecoder(r).Decode(event); err != nil {
		return fmt.Errorf("lifecycle: malformed event %q: %w", string(msg.Data), err)
	}

	log.Debug().
		Str("service", "lifecycle").
		Str("kind", string(event.Kind)).
		Str("session_id", string(event.SessionID)).
		Msg("event received")

	switch event.Kind {
	case BroadcastStarted:
		return d.sessions.MarkLive(event.SessionID)
	case BroadcastEnded:
		return d.sessions.MarkEnded(event.SessionID)
	case ViewersChanged:
		return d.sessions.SetViewersCount(event.SessionID, event.Viewers)
	default:
		return fmt.Errorf("lifecycle: unknown event kind %q", event.Kind)
	}
}
