package broadcast

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"

	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

const testSessionID core.SessionID = "lecture-42"

// MockChannel records everything the coordinator publishes and lets the
// test inject messages through the same wire encoding real channels use.
type MockChannel struct {
	mu        sync.Mutex
	handlers  map[rpc.Method][]eventbus.Handler
	published []rpc.Rpc
}

func NewMockChannel() *MockChannel {
	return &MockChannel{handlers: make(map[rpc.Method][]eventbus.Handler)}
}

func (c *MockChannel) SessionID() core.SessionID         { return testSessionID }
func (c *MockChannel) ParticipantID() core.ParticipantID { return "host-1" }

func (c *MockChannel) Publish(r rpc.Rpc) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, r)
	return nil
}

func (c *MockChannel) Subscribe(method rpc.Method, h eventbus.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[method] = append(c.handlers[method], h)
}

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
	return nil
}
func (c *MockChannel) UntrackPresence(ctx context.Context) error { return nil }
func (c *MockChannel) Presence(ctx context.Context) ([]eventbus.PresenceRecord, error) {
	return nil, nil
}
func (c *MockChannel) Close() error { return nil }

func (c *MockChannel) deliver(t *testing.T, r rpc.Rpc) {
	payload, err := r.ToJSON()
	assert.Nil(t, err)

	decoded, err := rpc.FromReader(bytes.NewReader(payload))
	assert.Nil(t, err)

	c.mu.Lock()
	handlers := append([]eventbus.Handler(nil), c.handlers[decoded.GetMethod()]...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(decoded)
	}
}

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

func (c *MockChannel) offers() []*rpc.SDPRpc {
	c.mu.Lock()
	defer c.mu.Unlock()

	offers := make([]*rpc.SDPRpc, 0)
	for _, r := range c.published {
		if offer, ok := r.(*rpc.SDPRpc); ok && offer.GetMethod() == rpc.HostOfferMethod {
			offers = append(offers, offer)
		}
	}
	return offers
}

func (c *MockChannel) pongs() []*rpc.PingRpc {
	c.mu.Lock()
	defer c.mu.Unlock()

	pongs := make([]*rpc.PingRpc, 0)
	for _, r := range c.published {
		if pong, ok := r.(*rpc.PingRpc); ok && pong.GetMethod() == rpc.HostPongMethod {
			pongs = append(pongs, pong)
		}
	}
	return pongs
}

func testWebRTCConfig(t *testing.T) *config.WebRTCConfig {
	conf, err := config.NewWebRTCConfig(&config.Config{})
	assert.Nil(t, err)
	return conf
}

func testSource(t *testing.T) *StaticSource {
	video, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
		"video", "test",
	)
	assert.Nil(t, err)

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "test",
	)
	assert.Nil(t, err)

	return NewStaticSource(video, audio)
}

func newTestCoordinator(t *testing.T, source MediaSource, offerTimeout time.Duration) (*Coordinator, *MockChannel) {
	channel := NewMockChannel()

	coordinator := NewCoordinator(CoordinatorOptions{
		Channel: channel,
		Source:  source,
		EnabledCodecs: []config.CodecSpec{
			{Mime: "audio/opus"},
			{Mime: "video/VP8"},
		},
		WebRTC:       testWebRTCConfig(t),
		GatherDelay:  0,
		OfferTimeout: offerTimeout,
	})
	coordinator.Start()
	t.Cleanup(coordinator.Stop)

	return coordinator, channel
}

func waitOffer(t *testing.T, channel *MockChannel) *rpc.SDPRpc {
	assert.Eventually(t, func() bool {
		return len(channel.offers()) > 0
	}, 2*time.Second, 10*time.Millisecond)

	offers := channel.offers()
	assert.NotEmpty(t, offers)
	return offers[0]
}

func TestCoordinatorOffersOnHello(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))

	offer := waitOffer(t, channel)
	assert.Equal(t, core.ParticipantID("viewer-1"), offer.Params.ViewerID)
	assert.Equal(t, webrtc.SDPTypeOffer, offer.Params.SessionDescription.Type)
	assert.NotEmpty(t, offer.Params.SessionDescription.SDP)

	state, ok := coordinator.LinkState("viewer-1")
	assert.True(t, ok)
	assert.Equal(t, LinkOfferSent, state)
}

func TestCoordinatorSecondHelloDoesNotRenegotiate(t *testing.T) {
	_, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	channel.deliver(t, rpc.NewViewerRequestConnectionRpc(testSessionID, "viewer-1", "Alice"))

	waitOffer(t, channel)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, channel.countMethod(rpc.HostOfferMethod))
}

func TestCoordinatorIgnoresForeignSession(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc("another-lecture", "viewer-1", "Alice"))

	time.Sleep(50 * time.Millisecond)
	_, ok := coordinator.LinkState("viewer-1")
	assert.False(t, ok)
	assert.Equal(t, 0, channel.countMethod(rpc.HostOfferMethod))
}

func TestCoordinatorNoMediaIsFatalForViewer(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, NewStaticSource(), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))

	err, ok := coordinator.Failure("viewer-1")
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrNoMediaSource)

	_, ok = coordinator.LinkState("viewer-1")
	assert.False(t, ok)
	assert.Equal(t, 0, channel.countMethod(rpc.HostOfferMethod))
}

func TestCoordinatorAppliesViewerAnswer(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	offer := waitOffer(t, channel)

	// a plain receiving peer answers the published offer
	peer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	assert.Nil(t, err)
	defer peer.Close()

	assert.Nil(t, peer.SetRemoteDescription(offer.Params.SessionDescription))
	answer, err := peer.CreateAnswer(nil)
	assert.Nil(t, err)
	assert.Nil(t, peer.SetLocalDescription(answer))

	channel.deliver(t, rpc.NewViewerAnswerRpc(testSessionID, "viewer-1", &answer))

	_, failed := coordinator.Failure("viewer-1")
	assert.False(t, failed)
	_, ok := coordinator.LinkState("viewer-1")
	assert.True(t, ok)
}

func TestCoordinatorIgnoresRedeliveredAnswer(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	offer := waitOffer(t, channel)

	peer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	assert.Nil(t, err)
	defer peer.Close()

	assert.Nil(t, peer.SetRemoteDescription(offer.Params.SessionDescription))
	answer, err := peer.CreateAnswer(nil)
	assert.Nil(t, err)
	assert.Nil(t, peer.SetLocalDescription(answer))

	// the channel redelivers; the second copy must not touch the leg
	channel.deliver(t, rpc.NewViewerAnswerRpc(testSessionID, "viewer-1", &answer))
	channel.deliver(t, rpc.NewViewerAnswerRpc(testSessionID, "viewer-1", &answer))

	_, failed := coordinator.Failure("viewer-1")
	assert.False(t, failed)
	_, ok := coordinator.LinkState("viewer-1")
	assert.True(t, ok)
}

func TestCoordinatorBuffersEarlyCandidates(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	offer := waitOffer(t, channel)

	// candidate lands before the answer and must be buffered, not dropped
	channel.deliver(t, rpc.NewViewerCandidateRpc(testSessionID, "viewer-1", webrtc.ICECandidateInit{
		Candidate: "candidate:3288912309 1 udp 2122260223 192.168.1.10 54321 typ host",
	}))

	peer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	assert.Nil(t, err)
	defer peer.Close()

	assert.Nil(t, peer.SetRemoteDescription(offer.Params.SessionDescription))
	answer, err := peer.CreateAnswer(nil)
	assert.Nil(t, err)
	assert.Nil(t, peer.SetLocalDescription(answer))

	channel.deliver(t, rpc.NewViewerAnswerRpc(testSessionID, "viewer-1", &answer))

	_, failed := coordinator.Failure("viewer-1")
	assert.False(t, failed)
}

func TestCoordinatorIgnoresAnswerFromUnknownViewer(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0\r\n"}
	channel.deliver(t, rpc.NewViewerAnswerRpc(testSessionID, "ghost", &answer))

	_, ok := coordinator.LinkState("ghost")
	assert.False(t, ok)
	_, failed := coordinator.Failure("ghost")
	assert.False(t, failed)
}

func TestCoordinatorViewerLeftClosesLeg(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	waitOffer(t, channel)

	channel.deliver(t, rpc.NewViewerLeftRpc(testSessionID, "viewer-1"))

	_, ok := coordinator.LinkState("viewer-1")
	assert.False(t, ok)

	// a second leave and a leave for a stranger are both no-ops
	channel.deliver(t, rpc.NewViewerLeftRpc(testSessionID, "viewer-1"))
	channel.deliver(t, rpc.NewViewerLeftRpc(testSessionID, "ghost"))
}

func TestCoordinatorPongsEveryPing(t *testing.T) {
	_, channel := newTestCoordinator(t, testSource(t), 0)

	// never announced, still gets a pong
	channel.deliver(t, rpc.NewViewerPingRpc(testSessionID, "viewer-7"))

	pongs := channel.pongs()
	assert.Len(t, pongs, 1)
	assert.Equal(t, core.ParticipantID("viewer-7"), pongs[0].Params.ViewerID)
}

func TestCoordinatorExpiresUnansweredOffer(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 50*time.Millisecond)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	waitOffer(t, channel)

	assert.Eventually(t, func() bool {
		_, ok := coordinator.LinkState("viewer-1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	err, ok := coordinator.Failure("viewer-1")
	assert.True(t, ok)
	assert.ErrorIs(t, err, ErrOfferTimeout)
}

func TestCoordinatorStopTearsDownEverything(t *testing.T) {
	coordinator, channel := newTestCoordinator(t, testSource(t), 0)

	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-1", "Alice"))
	channel.deliver(t, rpc.NewViewerJoinedRpc(testSessionID, "viewer-2", "Bob"))

	assert.Eventually(t, func() bool {
		return len(channel.offers()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	coordinator.Stop()

	_, ok := coordinator.LinkState("viewer-1")
	assert.False(t, ok)
	_, ok = coordinator.LinkState("viewer-2")
	assert.False(t, ok)
	assert.Equal(t, 0, coordinator.ViewersCount())
}
