package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
	"github.com/campuslive/lecturecast/internal/rtc"
)

type AgentState string

const (
	// StateJoining: join announced, nothing heard back yet
	StateJoining AgentState = "joining"
	// StateWaitingForOffer: announced and waiting for the presenter
	StateWaitingForOffer AgentState = "waiting_for_offer"
	// StateAnswering: offer received, answer published, ICE in flight
	StateAnswering AgentState = "answering"
	StateConnected AgentState = "connected"
	StateLeft      AgentState = "left"
	StateFailed    AgentState = "failed"
)

type AgentOptions struct {
	Channel       eventbus.SignalingChannel
	Identity      core.Identity
	EnabledCodecs []config.CodecSpec
	WebRTC        *config.WebRTCConfig

	// PingInterval drives the liveness probe and presence refresh.
	// Zero disables both.
	PingInterval time.Duration

	// OnTrack receives every remote track of the current leg. Optional.
	OnTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

// Agent is the viewer side of the handshake. It announces the viewer,
// answers whatever offer the presenter addresses to it and keeps a
// single receive-only leg alive. A later offer supersedes the current
// leg entirely, which is how the presenter renegotiates.
type Agent struct {
	opts      AgentOptions
	sessionID core.SessionID
	viewerID  core.ParticipantID

	mu        sync.Mutex
	state     AgentState
	transport *rtc.PCTransport
	// pending holds host candidates that arrived before any offer
	pending  []webrtc.ICECandidateInit
	lastPong time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

func NewAgent(opts AgentOptions) *Agent {
	a := &Agent{
		opts:      opts,
		sessionID: opts.Channel.SessionID(),
		viewerID:  opts.Identity.ID,
		state:     StateJoining,
		stop:      make(chan struct{}),
	}

	ch := opts.Channel
	ch.Subscribe(rpc.HostOfferMethod, a.onHostOffer)
	ch.Subscribe(rpc.HostCandidateMethod, a.onHostCandidate)
	ch.Subscribe(rpc.HostReadyMethod, a.onHostReady)
	ch.Subscribe(rpc.HostPongMethod, a.onHostPong)
	ch.Subscribe(rpc.StreamEndedMethod, a.onStreamEnded)

	return a
}

// Join announces the viewer on the channel and registers its presence.
// The presenter may not be there yet, host_ready retriggers the request
// until an offer lands.
func (a *Agent) Join(ctx context.Context) error {
	err := a.opts.Channel.Publish(rpc.NewViewerJoinedRpc(a.sessionID, a.viewerID, a.opts.Identity.DisplayName))
	if err != nil {
		return err
	}

	if err := a.trackPresence(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	if a.state == StateJoining {
		a.state = StateWaitingForOffer
	}
	a.mu.Unlock()

	if a.opts.PingInterval > 0 {
		go a.pingLoop()
	}

	return nil
}

// Leave says goodbye and tears the leg down. Safe to call twice.
func (a *Agent) Leave(ctx context.Context) {
	a.stopOnce.Do(func() {
		close(a.stop)

		if err := a.opts.Channel.Publish(rpc.NewViewerLeftRpc(a.sessionID, a.viewerID)); err != nil {
			log.Error().Err(err).Str("service", "viewer").Msg("cannot publish viewer_left")
		}
		if err := a.opts.Channel.UntrackPresence(ctx); err != nil {
			log.Error().Err(err).Str("service", "viewer").Msg("cannot untrack presence")
		}

		a.mu.Lock()
		transport := a.transport
		a.transport = nil
		a.state = StateLeft
		a.mu.Unlock()

		if transport != nil {
			transport.Close()
		}
	})
}

func (a *Agent) State() AgentState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// LastPong reports when the presenter last answered a liveness probe.
func (a *Agent) LastPong() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPong
}

func (a *Agent) trackPresence(ctx context.Context) error {
	return a.opts.Channel.TrackPresence(ctx, eventbus.PresenceRecord{
		ParticipantID: a.viewerID,
		Role:          core.RoleViewer,
		SessionID:     a.sessionID,
		OnlineAt:      time.Now().Unix(),
		LastPing:      time.Now().UnixMilli(),
	})
}

func (a *Agent) onHostOffer(r rpc.Rpc) {
	offer, ok := r.(*rpc.SDPRpc)
	if !ok {
		return
	}
	if offer.Params.SessionID != a.sessionID || offer.Params.ViewerID != a.viewerID {
		return
	}

	a.mu.Lock()
	if a.state == StateLeft || a.state == StateFailed {
		a.mu.Unlock()
		return
	}

	// a fresh offer replaces the current leg, this is renegotiation
	previous := a.transport

	transport, err := rtc.NewPCTransport(rtc.TransportParams{
		EnabledCodecs: a.opts.EnabledCodecs,
		Config:        a.opts.WebRTC,
		Direction:     a.opts.WebRTC.Viewer,
	})
	if err != nil {
		a.state = StateFailed
		a.mu.Unlock()
		log.Error().Err(err).Str("service", "viewer").Msg("cannot create transport")
		return
	}

	a.transport = transport
	a.state = StateAnswering
	pending := a.pending
	a.pending = nil
	a.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	a.wireTransport(transport)

	if err := a.answer(transport, offer.Params.SessionDescription, pending); err != nil {
		a.fail(transport, err)
	}
}

func (a *Agent) wireTransport(transport *rtc.PCTransport) {
	pc := transport.PC()

	if a.opts.OnTrack != nil {
		pc.OnTrack(a.opts.OnTrack)
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		err := a.opts.Channel.Publish(rpc.NewViewerCandidateRpc(a.sessionID, a.viewerID, candidate.ToJSON()))
		if err != nil {
			log.Error().Err(err).Str("service", "viewer").Msg("cannot publish candidate")
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			a.mu.Lock()
			// only the current leg may flip the state
			if a.transport == transport && a.state == StateAnswering {
				a.state = StateConnected
			}
			a.mu.Unlock()
			log.Info().
				Str("service", "viewer").
				Str("session_id", string(a.sessionID)).
				Str("viewer_id", string(a.viewerID)).
				Msg("connected")
		case webrtc.PeerConnectionStateFailed:
			a.fail(transport, nil)
		}
	})
}

func (a *Agent) answer(transport *rtc.PCTransport, offer webrtc.SessionDescription, pending []webrtc.ICECandidateInit) error {
	pc := transport.PC()

	if err := transport.SetRemoteDescription(offer); err != nil {
		return err
	}
	for _, candidate := range pending {
		c := candidate
		if err := transport.AddICECandidate(&c); err != nil {
			log.Error().Err(err).Str("service", "viewer").Msg("cannot apply early candidate")
		}
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}

	return a.opts.Channel.Publish(rpc.NewViewerAnswerRpc(a.sessionID, a.viewerID, pc.LocalDescription()))
}

func (a *Agent) onHostCandidate(r rpc.Rpc) {
	candidate, ok := r.(*rpc.ICECandidateRpc)
	if !ok {
		return
	}
	if candidate.Params.SessionID != a.sessionID || candidate.Params.ViewerID != a.viewerID {
		return
	}

	a.mu.Lock()
	transport := a.transport
	if transport == nil {
		a.pending = append(a.pending, candidate.Params.ICECandidateInit)
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if err := transport.AddICECandidate(&candidate.Params.ICECandidateInit); err != nil {
		log.Error().Err(err).Str("service", "viewer").Msg("cannot add host candidate")
	}
}

// onHostReady re-requests a connection while the offer has not landed
// yet. Covers the viewer arriving before the presenter, and the
// presenter having missed the original hello.
func (a *Agent) onHostReady(r rpc.Rpc) {
	ready, ok := r.(*rpc.HostReadyRpc)
	if !ok {
		return
	}
	if ready.Params.SessionID != a.sessionID || !ready.Params.Streaming {
		return
	}

	a.mu.Lock()
	waiting := a.state == StateWaitingForOffer
	a.mu.Unlock()
	if !waiting {
		return
	}

	err := a.opts.Channel.Publish(rpc.NewViewerRequestConnectionRpc(a.sessionID, a.viewerID, a.opts.Identity.DisplayName))
	if err != nil {
		log.Error().Err(err).Str("service", "viewer").Msg("cannot re-request connection")
	}
}

func (a *Agent) onHostPong(r rpc.Rpc) {
	pong, ok := r.(*rpc.PingRpc)
	if !ok {
		return
	}
	if pong.Params.SessionID != a.sessionID || pong.Params.ViewerID != a.viewerID {
		return
	}

	a.mu.Lock()
	a.lastPong = time.Now()
	a.mu.Unlock()
}

func (a *Agent) onStreamEnded(r rpc.Rpc) {
	ended, ok := r.(*rpc.StreamEndedRpc)
	if !ok {
		return
	}
	if ended.Params.SessionID != a.sessionID {
		return
	}

	a.mu.Lock()
	transport := a.transport
	a.transport = nil
	a.state = StateLeft
	a.mu.Unlock()

	if transport != nil {
		transport.Close()
	}

	log.Info().
		Str("service", "viewer").
		Str("session_id", string(a.sessionID)).
		Msg("stream ended")
}

func (a *Agent) fail(transport *rtc.PCTransport, err error) {
	a.mu.Lock()
	if a.transport != transport {
		// a newer leg superseded this one, nothing to do
		a.mu.Unlock()
		transport.Close()
		return
	}
	a.transport = nil
	a.state = StateFailed
	a.mu.Unlock()

	transport.Close()

	log.Error().Err(err).
		Str("service", "viewer").
		Str("session_id", string(a.sessionID)).
		Str("viewer_id", string(a.viewerID)).
		Msg("leg failed")
}

func (a *Agent) pingLoop() {
	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			if err := a.opts.Channel.Publish(rpc.NewViewerPingRpc(a.sessionID, a.viewerID)); err != nil {
				log.Error().Err(err).Str("service", "viewer").Msg("cannot publish ping")
			}
			if err := a.trackPresence(context.Background()); err != nil {
				log.Error().Err(err).Str("service", "viewer").Msg("cannot refresh presence")
			}
		}
	}
}
