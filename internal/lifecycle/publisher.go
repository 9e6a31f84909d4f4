package lifecycle

import (
	"encoding/json"

	"github.com/nats-io/nats.go"

	"github.com/campuslive/lecturecast/internal/core"
)

// Notifier pushes session lifecycle events to anyone interested.
type Notifier interface {
	BroadcastStarted(sessionID core.SessionID, hostID core.ParticipantID) error
	BroadcastEnded(sessionID core.SessionID) error
	ViewersChanged(sessionID core.SessionID, viewers int) error
}

// Publisher sends lifecycle events over NATS.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(natsAddr string) (*Publisher, error) {
	nc, err := nats.Connect(natsAddr, nats.NoEcho())
	if err != nil {
		return nil, err
	}

	return &Publisher{nc: nc}, nil
}

func (p *Publisher) BroadcastStarted(sessionID core.SessionID, hostID core.ParticipantID) error {
	return p.publish(Event{Kind: BroadcastStarted, SessionID: sessionID, HostID: hostID})
}

func (p *Publisher) BroadcastEnded(sessionID core.SessionID) error {
	return p.publish(Event{Kind: BroadcastEnded, SessionID: sessionID})
}

func (p *Publisher) ViewersChanged(sessionID core.SessionID, viewers int) error {
	return p.publish(Event{Kind: ViewersChanged, SessionID: sessionID, Viewers: viewers})
}

func (p *Publisher) Close() error {
	return p.nc.Drain()
}

func (p *Publisher) publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.nc.Publish(SessionsSubject, payload)
}
