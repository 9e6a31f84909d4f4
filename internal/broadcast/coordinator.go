package broadcast

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
	"github.com/campuslive/lecturecast/internal/rtc"
	"github.com/campuslive/lecturecast/internal/telemetry"
)

var (
	// ErrNoMediaSource: a viewer announced itself while no local tracks
	// exist. Fatal for that viewer's connection attempt.
	ErrNoMediaSource = errors.New("no media tracks available")
	// ErrOfferTimeout: the viewer never answered a published offer.
	ErrOfferTimeout = errors.New("offer was not answered in time")
)

type CoordinatorOptions struct {
	Channel       eventbus.SignalingChannel
	Source        MediaSource
	EnabledCodecs []config.CodecSpec
	WebRTC        *config.WebRTCConfig

	// GatherDelay is waited between setting the local offer and
	// publishing it, so the first candidates ride close behind.
	GatherDelay time.Duration
	// OfferTimeout tears down links stuck in offer_sent. Zero disables
	// the sweep.
	OfferTimeout time.Duration
}

// Coordinator is the presenter-side fanout. It keeps one send-only peer
// connection per announced viewer and drives each through
// announced, offer_sent, connected. All signaling flows over the
// session's channel, every message is addressed by viewer id.
type Coordinator struct {
	opts      CoordinatorOptions
	sessionID core.SessionID

	mu       sync.RWMutex
	links    map[core.ParticipantID]*viewerLink
	failures map[core.ParticipantID]error

	stop     chan struct{}
	stopOnce sync.Once
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	c := &Coordinator{
		opts:      opts,
		sessionID: opts.Channel.SessionID(),
		links:     make(map[core.ParticipantID]*viewerLink),
		failures:  make(map[core.ParticipantID]error),
		stop:      make(chan struct{}),
	}

	ch := opts.Channel
	ch.Subscribe(rpc.ViewerJoinedMethod, c.onViewerHello)
	ch.Subscribe(rpc.ViewerRequestConnectionMethod, c.onViewerHello)
	ch.Subscribe(rpc.ViewerAnswerMethod, c.onViewerAnswer)
	ch.Subscribe(rpc.ViewerCandidateMethod, c.onViewerCandidate)
	ch.Subscribe(rpc.ViewerLeftMethod, c.onViewerLeft)
	ch.Subscribe(rpc.ViewerPingMethod, c.onViewerPing)

	return c
}

// Start launches the offer timeout sweep. Subscription happens at
// construction, a coordinator observes the channel as soon as the
// channel's own dispatch runs.
func (c *Coordinator) Start() {
	if c.opts.OfferTimeout > 0 {
		go c.sweepExpiredOffers()
	}
}

// Stop tears down every viewer leg and forgets all bookkeeping. The
// stream_ended broadcast is the presence tracker's job.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)

		c.mu.Lock()
		links := c.links
		c.links = make(map[core.ParticipantID]*viewerLink)
		c.failures = make(map[core.ParticipantID]error)
		c.mu.Unlock()

		for _, link := range links {
			link.setState(LinkClosed)
			link.transport.Close()
		}

		telemetry.BroadcastStopped(string(c.sessionID))

		log.Info().
			Str("service", "broadcast").
			Str("session_id", string(c.sessionID)).
			Int("viewers", len(links)).
			Msg("broadcast stopped")
	})
}

// ViewersCount reports how many viewer legs are currently connected.
func (c *Coordinator) ViewersCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	for _, link := range c.links {
		if link.State() == LinkConnected {
			n++
		}
	}
	return n
}

// LinkState reports the state of one viewer's leg.
func (c *Coordinator) LinkState(viewerID core.ParticipantID) (LinkState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	link, ok := c.links[viewerID]
	if !ok {
		return "", false
	}
	return link.State(), true
}

// Failure reports the recorded reason a viewer could not be served.
func (c *Coordinator) Failure(viewerID core.ParticipantID) (error, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	err, ok := c.failures[viewerID]
	return err, ok
}

func (c *Coordinator) onViewerHello(r rpc.Rpc) {
	hello, ok := r.(*rpc.ViewerHelloRpc)
	if !ok {
		return
	}
	if hello.Params.SessionID != c.sessionID {
		return
	}

	c.handleHello(hello.Params.ViewerID, hello.Params.DisplayName)
}

func (c *Coordinator) handleHello(viewerID core.ParticipantID, displayName string) {
	c.mu.Lock()

	if _, ok := c.links[viewerID]; ok {
		c.mu.Unlock()
		// viewer_joined and viewer_request_connection overlap, a second
		// hello for a live link never spawns a second connection
		log.Debug().
			Str("service", "broadcast").
			Str("viewer_id", string(viewerID)).
			Msg("duplicate hello ignored")
		return
	}

	if !c.opts.Source.Ready() {
		c.failures[viewerID] = ErrNoMediaSource
		c.mu.Unlock()
		telemetry.SignalingOperations.WithLabelValues("host_offer", "error", "no_media").Inc()
		log.Error().
			Str("service", "broadcast").
			Str("session_id", string(c.sessionID)).
			Str("viewer_id", string(viewerID)).
			Msg("viewer announced but no media tracks exist")
		return
	}

	transport, err := rtc.NewPCTransport(rtc.TransportParams{
		EnabledCodecs: c.opts.EnabledCodecs,
		Config:        c.opts.WebRTC,
		Direction:     c.opts.WebRTC.Host,
	})
	if err != nil {
		c.failures[viewerID] = err
		c.mu.Unlock()
		telemetry.SignalingOperations.WithLabelValues("host_offer", "error", "transport").Inc()
		log.Error().Err(err).Str("service", "broadcast").Msg("cannot create viewer transport")
		return
	}

	link := newViewerLink(viewerID, displayName, transport)
	c.links[viewerID] = link
	delete(c.failures, viewerID)
	c.mu.Unlock()

	if err := c.bindTracks(link); err != nil {
		c.failLink(link, err)
		return
	}

	pc := transport.PC()
	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		err := c.opts.Channel.Publish(rpc.NewHostCandidateRpc(c.sessionID, viewerID, candidate.ToJSON()))
		if err != nil {
			log.Error().Err(err).Str("service", "broadcast").Msg("cannot publish candidate")
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			link.setState(LinkConnected)
			telemetry.ViewerConnected(string(c.sessionID))
			log.Info().
				Str("service", "broadcast").
				Str("session_id", string(c.sessionID)).
				Str("viewer_id", string(viewerID)).
				Msg("viewer connected")
		case webrtc.PeerConnectionStateFailed:
			c.dropLink(viewerID, LinkFailed, state.String())
		}
	})

	go c.negotiate(link)
}

// bindTracks attaches every source track send-only and drains the
// senders' RTCP so interceptors keep running.
func (c *Coordinator) bindTracks(link *viewerLink) error {
	pc := link.transport.PC()

	for _, track := range c.opts.Source.Tracks() {
		transceiver, err := pc.AddTransceiverFromTrack(track, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionSendonly,
		})
		if err != nil {
			return err
		}

		sender := transceiver.Sender()
		go func() {
			rtcpBuf := make([]byte, 1500)
			for {
				if _, _, rtcpErr := sender.Read(rtcpBuf); rtcpErr != nil {
					return
				}
			}
		}()
	}

	return nil
}

func (c *Coordinator) negotiate(link *viewerLink) {
	pc := link.transport.PC()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		c.failLink(link, err)
		return
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		c.failLink(link, err)
		return
	}

	// Candidates gathered during the delay travel inside the offer,
	// later ones trickle as host_candidate messages.
	if c.opts.GatherDelay > 0 {
		time.Sleep(c.opts.GatherDelay)
	}

	err = c.opts.Channel.Publish(rpc.NewHostOfferRpc(c.sessionID, link.viewerID, pc.LocalDescription()))
	if err != nil {
		c.failLink(link, err)
		return
	}

	link.markOfferSent(time.Now())
	telemetry.SignalingOperations.WithLabelValues("host_offer", "success", "").Inc()
}

func (c *Coordinator) onViewerAnswer(r rpc.Rpc) {
	answer, ok := r.(*rpc.SDPRpc)
	if !ok {
		return
	}
	if answer.Params.SessionID != c.sessionID {
		return
	}

	c.mu.RLock()
	link, ok := c.links[answer.Params.ViewerID]
	c.mu.RUnlock()
	if !ok {
		// stale answer for a leg that is already gone
		log.Debug().
			Str("service", "broadcast").
			Str("viewer_id", string(answer.Params.ViewerID)).
			Msg("answer for unknown viewer ignored")
		return
	}

	// Delivery is at least once. A redelivered answer, or one arriving
	// after the leg moved on, is noise, not a reason to tear down.
	if link.State() != LinkOfferSent || link.transport.PC().RemoteDescription() != nil {
		log.Debug().
			Str("service", "broadcast").
			Str("viewer_id", string(answer.Params.ViewerID)).
			Str("state", string(link.State())).
			Msg("duplicate or out-of-order answer ignored")
		return
	}

	if err := link.transport.SetRemoteDescription(answer.Params.SessionDescription); err != nil {
		c.failLink(link, err)
		return
	}

	telemetry.SignalingOperations.WithLabelValues("viewer_answer", "success", "").Inc()
}

func (c *Coordinator) onViewerCandidate(r rpc.Rpc) {
	candidate, ok := r.(*rpc.ICECandidateRpc)
	if !ok {
		return
	}
	if candidate.Params.SessionID != c.sessionID {
		return
	}

	c.mu.RLock()
	link, ok := c.links[candidate.Params.ViewerID]
	c.mu.RUnlock()
	if !ok {
		return
	}

	if err := link.transport.AddICECandidate(&candidate.Params.ICECandidateInit); err != nil {
		log.Error().Err(err).Str("service", "broadcast").Msg("cannot add viewer candidate")
	}
}

func (c *Coordinator) onViewerLeft(r rpc.Rpc) {
	left, ok := r.(*rpc.ViewerLeftRpc)
	if !ok {
		return
	}
	if left.Params.SessionID != c.sessionID {
		return
	}

	// unknown viewer ids are a no-op, leaving twice is fine
	c.dropLink(left.Params.ViewerID, LinkClosed, "viewer_left")
}

func (c *Coordinator) onViewerPing(r rpc.Rpc) {
	ping, ok := r.(*rpc.PingRpc)
	if !ok {
		return
	}
	if ping.Params.SessionID != c.sessionID {
		return
	}

	// answered regardless of the viewer's connection state
	err := c.opts.Channel.Publish(rpc.NewHostPongRpc(c.sessionID, ping.Params.ViewerID))
	if err != nil {
		log.Error().Err(err).Str("service", "broadcast").Msg("cannot publish pong")
	}
}

func (c *Coordinator) dropLink(viewerID core.ParticipantID, final LinkState, reason string) {
	c.mu.Lock()
	link, ok := c.links[viewerID]
	if ok {
		delete(c.links, viewerID)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	wasConnected := link.State() == LinkConnected
	link.setState(final)
	link.transport.Close()

	if wasConnected {
		telemetry.ViewerGone(string(c.sessionID))
	}

	log.Info().
		Str("service", "broadcast").
		Str("session_id", string(c.sessionID)).
		Str("viewer_id", string(viewerID)).
		Str("reason", reason).
		Msg("viewer leg closed")
}

func (c *Coordinator) failLink(link *viewerLink, err error) {
	c.mu.Lock()
	if current, ok := c.links[link.viewerID]; ok && current == link {
		delete(c.links, link.viewerID)
	}
	c.failures[link.viewerID] = err
	c.mu.Unlock()

	wasConnected := link.State() == LinkConnected
	link.setState(LinkFailed)
	link.transport.Close()

	if wasConnected {
		telemetry.ViewerGone(string(c.sessionID))
	}

	telemetry.SignalingOperations.WithLabelValues("host_offer", "error", "negotiation").Inc()
	log.Error().Err(err).
		Str("service", "broadcast").
		Str("session_id", string(c.sessionID)).
		Str("viewer_id", string(link.viewerID)).
		Msg("viewer leg failed")
}

func (c *Coordinator) sweepExpiredOffers() {
	ticker := time.NewTicker(c.opts.OfferTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.mu.RLock()
			expired := make([]*viewerLink, 0)
			for _, link := range c.links {
				if link.offerExpired(now, c.opts.OfferTimeout) {
					expired = append(expired, link)
				}
			}
			c.mu.RUnlock()

			for _, link := range expired {
				c.failLink(link, ErrOfferTimeout)
			}
		}
	}
}
