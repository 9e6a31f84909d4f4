package lifecycle

import (
	"encoding/json"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/campuslive/lecturecast/internal/core"
)

type MockSessions struct {
	live    []core.SessionID
	ended   []core.SessionID
	viewers map[core.SessionID]int
}

func NewMockSessions() *MockSessions {
	return &MockSessions{viewers: make(map[core.SessionID]int)}
}

func (m *MockSessions) Find(id core.SessionID) (*core.Session, error) { return nil, nil }

func (m *MockSessions) MarkLive(id core.SessionID) error {
	m.live = append(m.live, id)
	return nil
}

func (m *MockSessions) MarkEnded(id core.SessionID) error {
	m.ended = append(m.ended, id)
	return nil
}

func (m *MockSessions) SetViewersCount(id core.SessionID, count int) error {
	m.viewers[id] = count
	return nil
}

func eventMsg(t *testing.T, event Event) *nats.Msg {
	payload, err := json.Marshal(event)
	assert.Nil(t, err)
	return &nats.Msg{Subject: SessionsSubject, Data: payload}
}

func TestDaemonMarksSessionLive(t *testing.T) {
	sessions := NewMockSessions()
	daemon := &Daemon{sessions: sessions}

	err := daemon.apply(eventMsg(t, Event{
		Kind:      BroadcastStarted,
		SessionID: "lecture-42",
		HostID:    "host-1",
	}))
	assert.Nil(t, err)
	assert.Equal(t, []core.SessionID{"lecture-42"}, sessions.live)
}

func TestDaemonMarksSessionEnded(t *testing.T) {
	sessions := NewMockSessions()
	daemon := &Daemon{sessions: sessions}

	err := daemon.apply(eventMsg(t, Event{Kind: BroadcastEnded, SessionID: "lecture-42"}))
	assert.Nil(t, err)
	assert.Equal(t, []core.SessionID{"lecture-42"}, sessions.ended)
}

func TestDaemonUpdatesViewersCount(t *testing.T) {
	sessions := NewMockSessions()
	daemon := &Daemon{sessions: sessions}

	err := daemon.apply(eventMsg(t, Event{Kind: ViewersChanged, SessionID: "lecture-42", Viewers: 17}))
	assert.Nil(t, err)
	assert.Equal(t, 17, sessions.viewers["lecture-42"])
}

func TestDaemonRejectsMalformedEvent(t *testing.T) {
	daemon := &Daemon{sessions: NewMockSessions()}

	err := daemon.apply(&nats.Msg{Subject: SessionsSubject, Data: []byte("not json")})
	assert.NotNil(t, err)
}

func TestDaemonRejectsUnknownKind(t *testing.T) {
	daemon := &Daemon{sessions: NewMockSessions()}

	err := daemon.apply(eventMsg(t, Event{Kind: "resurrected", SessionID: "lecture-42"}))
	assert.NotNil(t, err)
}
