package eventbus

import (
	"testing"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

const (
	testSessionID = core.SessionID("0c4038d6-da68-11ec-9d64-0242ac120002")
	testViewerID  = core.ParticipantID("viewer-1")
)

type MockBus struct {
	Messages chan *redis.Message
}

func NewMockBus() *MockBus {
	return &MockBus{Messages: make(chan *redis.Message)}
}

func (b *MockBus) Channel(opts ...redis.ChannelOption) <-chan *redis.Message {
	return b.Messages
}

func (b *MockBus) Close() error {
	close(b.Messages)
	return nil
}

func (b *MockBus) push(t *testing.T, r rpc.Rpc) {
	t.Helper()

	payload, err := r.ToJSON()
	assert.Nil(t, err)

	b.Messages <- &redis.Message{Payload: string(payload)}
}

func newTestChannel(bus *MockBus) *Channel {
	return newChannel(nil, bus, testSessionID, testViewerID, 0)
}

func TestChannelDispatchesSubscribedMethod(t *testing.T) {
	bus := NewMockBus()
	ch := newTestChannel(bus)

	var got rpc.Rpc
	ch.Subscribe(rpc.ViewerRequestConnectionMethod, func(r rpc.Rpc) {
		got = r
	})

	<-ch.Start()
	bus.push(t, rpc.NewViewerRequestConnectionRpc(testSessionID, testViewerID, "Alia"))
	<-ch.Stop()

	assert.NotNil(t, got)
	hello, ok := got.(*rpc.ViewerHelloRpc)
	assert.True(t, ok)
	assert.Equal(t, testViewerID, hello.Params.ViewerID)
	assert.Equal(t, "Alia", hello.Params.DisplayName)
	assert.Equal(t, testSessionID, hello.Params.SessionID)
}

func TestChannelIgnoresUnsubscribedMethod(t *testing.T) {
	bus := NewMockBus()
	ch := newTestChannel(bus)

	fired := false
	ch.Subscribe(rpc.HostOfferMethod, func(rpc.Rpc) {
		fired = true
	})

	<-ch.Start()
	bus.push(t, rpc.NewViewerPingRpc(testSessionID, testViewerID))
	<-ch.Stop()

	assert.False(t, fired)
}

func TestChannelKeepsPerMethodOrder(t *testing.T) {
	bus := NewMockBus()
	ch := newTestChannel(bus)

	var texts []string
	ch.Subscribe(rpc.ChatMessageMethod, func(r rpc.Rpc) {
		msg := r.(*rpc.ChatRpc)
		texts = append(texts, msg.Params.Text)
	})

	<-ch.Start()
	bus.push(t, rpc.NewChatMessageRpc(testSessionID, "m1", testViewerID, "Alia", "first"))
	bus.push(t, rpc.NewChatMessageRpc(testSessionID, "m2", testViewerID, "Alia", "second"))
	bus.push(t, rpc.NewChatMessageRpc(testSessionID, "m3", testViewerID, "Alia", "third"))
	<-ch.Stop()

	assert.Equal(t, []string{"first", "second", "third"}, texts)
}

func TestChannelSurvivesMalformedPayload(t *testing.T) {
	bus := NewMockBus()
	ch := newTestChannel(bus)

	fired := false
	ch.Subscribe(rpc.ViewerPingMethod, func(rpc.Rpc) {
		fired = true
	})

	<-ch.Start()
	bus.Messages <- &redis.Message{Payload: "{not json"}
	bus.push(t, rpc.NewViewerPingRpc(testSessionID, testViewerID))
	<-ch.Stop()

	assert.True(t, fired)
}

func TestChannelMultipleSubscriptionsPerMethod(t *testing.T) {
	bus := NewMockBus()
	ch := newTestChannel(bus)

	first, second := false, false
	ch.Subscribe(rpc.StreamEndedMethod, func(rpc.Rpc) { first = true })
	ch.Subscribe(rpc.StreamEndedMethod, func(rpc.Rpc) { second = true })

	<-ch.Start()
	bus.push(t, rpc.NewStreamEndedRpc(testSessionID))
	<-ch.Stop()

	assert.True(t, first)
	assert.True(t, second)
}

func TestStopIsIdempotent(t *testing.T) {
	bus := NewMockBus()
	ch := newTestChannel(bus)

	<-ch.Start()
	<-ch.Stop()
	<-ch.Stop()
}
