package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

type MockChannel struct {
	mu        sync.Mutex
	published []rpc.Rpc
	records   []eventbus.PresenceRecord
	untracked int
}

func (c *MockChannel) SessionID() core.SessionID         { return "lecture-42" }
func (c *MockChannel) ParticipantID() core.ParticipantID { return "host-1" }

func (c *MockChannel) Publish(r rpc.Rpc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, r)
	return nil
}

func (c *MockChannel) Subscribe(method rpc.Method, h eventbus.Handler) {}

func (c *MockChannel) Start() <-chan struct{} {
	ready := make(chan struct{})
	close(ready)
	return ready
}

func (c *MockChannel) Stop() <-chan struct{} {
	stopped := make(chan struct{})
	close(stopped)
	return stopped
}

func (c *MockChannel) TrackPresence(ctx context.Context, record eventbus.PresenceRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, record)
	return nil
}

func (c *MockChannel) UntrackPresence(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.untracked++
	return nil
}

func (c *MockChannel) Presence(ctx context.Context) ([]eventbus.PresenceRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]eventbus.PresenceRecord(nil), c.records...), nil
}

func (c *MockChannel) Close() error { return nil }

func (c *MockChannel) countMethod(method rpc.Method) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, r := range c.published {
		if r.GetMethod() == method {
			n++
		}
	}
	return n
}

func TestTrackerHeartbeats(t *testing.T) {
	channel := &MockChannel{}
	tracker := NewTracker(channel, 10*time.Millisecond)

	err := tracker.Start(context.Background())
	assert.Nil(t, err)

	time.Sleep(35 * time.Millisecond)
	tracker.Stop()

	// initial write plus ticks
	channel.mu.Lock()
	records := len(channel.records)
	channel.mu.Unlock()
	assert.GreaterOrEqual(t, records, 2)

	assert.GreaterOrEqual(t, channel.countMethod(rpc.HostReadyMethod), 2)
}

func TestTrackerStopBroadcastsStreamEndedOnce(t *testing.T) {
	channel := &MockChannel{}
	tracker := NewTracker(channel, 10*time.Millisecond)

	err := tracker.Start(context.Background())
	assert.Nil(t, err)

	tracker.Stop()
	tracker.Stop()

	assert.Equal(t, 1, channel.countMethod(rpc.StreamEndedMethod))

	channel.mu.Lock()
	untracked := channel.untracked
	channel.mu.Unlock()
	assert.Equal(t, 1, untracked)
}

func TestTrackerRecordIsHostAndStreaming(t *testing.T) {
	channel := &MockChannel{}
	tracker := NewTracker(channel, time.Minute)

	err := tracker.Start(context.Background())
	assert.Nil(t, err)
	tracker.Stop()

	channel.mu.Lock()
	defer channel.mu.Unlock()

	assert.NotEmpty(t, channel.records)
	record := channel.records[0]
	assert.Equal(t, core.RoleHost, record.Role)
	assert.Equal(t, true, record.Streaming)
	assert.Greater(t, record.LastPing, int64(0))
	assert.True(t, record.Live(time.Minute))
}
