package main

import (
	"bytes"
	"context"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

// wsChannel speaks the signaling protocol over the server's websocket
// bridge. Presence bookkeeping lives on the server side of the socket,
// so the presence calls are accepted and dropped here.
type wsChannel struct {
	conn          *websocket.Conn
	sessionID     core.SessionID
	participantID core.ParticipantID

	mu       sync.RWMutex
	handlers map[rpc.Method][]eventbus.Handler

	writeMu sync.Mutex

	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
}

func newWsChannel(conn *websocket.Conn, sessionID core.SessionID, participantID core.ParticipantID) *wsChannel {
	return &wsChannel{
		conn:          conn,
		sessionID:     sessionID,
		participantID: participantID,
		handlers:      make(map[rpc.Method][]eventbus.Handler),
		stopped:       make(chan struct{}),
	}
}

func (c *wsChannel) SessionID() core.SessionID         { return c.sessionID }
func (c *wsChannel) ParticipantID() core.ParticipantID { return c.participantID }

func (c *wsChannel) Publish(r rpc.Rpc) error {
	payload, err := r.ToJSON()
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsChannel) Subscribe(method rpc.Method, h eventbus.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[method] = append(c.handlers[method], h)
}

func (c *wsChannel) Start() <-chan struct{} {
	ready := make(chan struct{})

	c.startOnce.Do(func() {
		go c.readLoop(ready)
	})

	return ready
}

func (c *wsChannel) readLoop(ready chan struct{}) {
	close(ready)
	defer close(c.stopped)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("service", "agent").Msg("socket closed")
			return
		}

		decoded, err := rpc.FromReader(bytes.NewReader(msg))
		if err != nil {
			log.Error().Err(err).Str("service", "agent").Msg("malformed message skipped")
			continue
		}

		c.mu.RLock()
		handlers := append([]eventbus.Handler(nil), c.handlers[decoded.GetMethod()]...)
		c.mu.RUnlock()

		for _, h := range handlers {
			h(decoded)
		}
	}
}

// Done closes when the read loop has ended, for any reason.
func (c *wsChannel) Done() <-chan struct{} {
	return c.stopped
}

func (c *wsChannel) Stop() <-chan struct{} {
	c.stopOnce.Do(func() {
		c.conn.Close()
	})

	return c.stopped
}

func (c *wsChannel) TrackPresence(ctx context.Context, record eventbus.PresenceRecord) error {
	return nil
}

func (c *wsChannel) UntrackPresence(ctx context.Context) error { return nil }

func (c *wsChannel) Presence(ctx context.Context) ([]eventbus.PresenceRecord, error) {
	return nil, nil
}

func (c *wsChannel) Close() error {
	<-c.Stop()
	return nil
}
