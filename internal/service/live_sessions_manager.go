package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/broadcast"
	"github.com/campuslive/lecturecast/internal/config"
	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/lifecycle"
	"github.com/campuslive/lecturecast/internal/presence"
	"github.com/campuslive/lecturecast/internal/rtc"
	"github.com/campuslive/lecturecast/internal/viewer"
	"github.com/pion/webrtc/v3"
)

var (
	// ErrNoMediaDevice: hosting was attempted without any capture source
	ErrNoMediaDevice = errors.New("no media device available")
	// ErrPermissionDenied: the caller may not run this operation on the
	// session, e.g. hosting a session that is already hosted
	ErrPermissionDenied = errors.New("permission denied")
)

// ChannelOpener hides the signaling backend behind the manager.
type ChannelOpener interface {
	Open(ctx context.Context, sessionID core.SessionID, participantID core.ParticipantID) (eventbus.SignalingChannel, error)
}

// BusOpener adapts the redis bus to the opener the manager consumes.
type BusOpener struct {
	Bus *eventbus.Bus
}

func (o BusOpener) Open(ctx context.Context, sessionID core.SessionID, participantID core.ParticipantID) (eventbus.SignalingChannel, error) {
	return o.Bus.Open(ctx, sessionID, participantID)
}

type HostRequest struct {
	SessionID   core.SessionID
	CallerID    core.ParticipantID
	DisplayName string
	// Source carries the presenter's capture tracks. Nil means the
	// presenter has nothing to show, which is fatal for hosting.
	Source broadcast.MediaSource
}

type JoinRequest struct {
	SessionID   core.SessionID
	CallerID    core.ParticipantID
	DisplayName string
	OnTrack     func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

type hostedBroadcast struct {
	hostID      core.ParticipantID
	channel     eventbus.SignalingChannel
	coordinator *broadcast.Coordinator
	tracker     *presence.Tracker
	stop        chan struct{}
}

// LiveSessionsManager is the entrypoint for going live and for watching.
// It owns at most one coordinator per session id and composes channel,
// presence tracker and fanout for the presenter side.
type LiveSessionsManager struct {
	cfg       *config.Config
	rtcConfig *config.WebRTCConfig
	opener    ChannelOpener
	sessions  core.SessionsDBStorer
	notifier  lifecycle.Notifier

	lock       sync.RWMutex
	broadcasts map[core.SessionID]*hostedBroadcast
}

func NewLiveSessionsManager(
	cfg *config.Config,
	opener ChannelOpener,
	sessions core.SessionsDBStorer,
	notifier lifecycle.Notifier,
) (*LiveSessionsManager, error) {
	rtcConf, err := config.NewWebRTCConfig(cfg)
	if err != nil {
		return nil, err
	}

	return &LiveSessionsManager{
		cfg:        cfg,
		rtcConfig:  rtcConf,
		opener:     opener,
		sessions:   sessions,
		notifier:   notifier,
		broadcasts: make(map[core.SessionID]*hostedBroadcast),
	}, nil
}

// CreateIngest builds the capture leg the presenter publishes into. The
// returned source becomes Ready once the first track arrives and is the
// natural Source for Host.
func (s *LiveSessionsManager) CreateIngest(sessionID core.SessionID) (*broadcast.IngestSource, error) {
	transport, err := rtc.NewPCTransport(rtc.TransportParams{
		EnabledCodecs: s.cfg.Peer.EnabledCodecs,
		Config:        s.rtcConfig,
		Direction:     s.rtcConfig.Viewer,
	})
	if err != nil {
		return nil, err
	}

	return broadcast.NewIngestSource(sessionID, transport), nil
}

// Host takes a session live: opens the signaling channel, starts the
// fanout coordinator and the presence heartbeat, and records the state
// change for the roster side.
func (s *LiveSessionsManager) Host(ctx context.Context, req HostRequest) error {
	if req.Source == nil {
		return ErrNoMediaDevice
	}

	s.lock.Lock()
	if _, ok := s.broadcasts[req.SessionID]; ok {
		s.lock.Unlock()
		return ErrPermissionDenied
	}
	// reserve the slot before the slow channel open
	s.broadcasts[req.SessionID] = nil
	s.lock.Unlock()

	channel, err := s.opener.Open(ctx, req.SessionID, req.CallerID)
	if err != nil {
		s.forget(req.SessionID)
		return err
	}

	coordinator := broadcast.NewCoordinator(broadcast.CoordinatorOptions{
		Channel:       channel,
		Source:        req.Source,
		EnabledCodecs: s.cfg.Peer.EnabledCodecs,
		WebRTC:        s.rtcConfig,
		GatherDelay:   s.cfg.Signaling.GatherDelay,
		OfferTimeout:  s.cfg.Signaling.OfferTimeout,
	})
	tracker := presence.NewTracker(channel, s.cfg.Signaling.PresenceInterval)

	<-channel.Start()
	coordinator.Start()
	if err := tracker.Start(ctx); err != nil {
		coordinator.Stop()
		channel.Close()
		s.forget(req.SessionID)
		return err
	}

	hosted := &hostedBroadcast{
		hostID:      req.CallerID,
		channel:     channel,
		coordinator: coordinator,
		tracker:     tracker,
		stop:        make(chan struct{}),
	}

	s.lock.Lock()
	s.broadcasts[req.SessionID] = hosted
	s.lock.Unlock()

	if err := s.sessions.MarkLive(req.SessionID); err != nil {
		log.Error().Err(err).Str("service", "sessions").Msg("cannot mark session live")
	}
	if err := s.notifier.BroadcastStarted(req.SessionID, req.CallerID); err != nil {
		log.Error().Err(err).Str("service", "sessions").Msg("cannot notify broadcast start")
	}

	go s.reportViewers(req.SessionID, hosted)

	log.Info().
		Str("service", "sessions").
		Str("session_id", string(req.SessionID)).
		Str("host_id", string(req.CallerID)).
		Msg("session is live")

	return nil
}

// StopHosting ends the broadcast. Only the presenter that started it
// may stop it.
func (s *LiveSessionsManager) StopHosting(ctx context.Context, sessionID core.SessionID, callerID core.ParticipantID) error {
	s.lock.Lock()
	hosted, ok := s.broadcasts[sessionID]
	if !ok || hosted == nil {
		s.lock.Unlock()
		return ErrPermissionDenied
	}
	if hosted.hostID != callerID {
		s.lock.Unlock()
		return ErrPermissionDenied
	}
	delete(s.broadcasts, sessionID)
	s.lock.Unlock()

	close(hosted.stop)
	// tracker broadcasts stream_ended and clears presence first, so
	// viewers learn about the end before their legs drop
	hosted.tracker.Stop()
	hosted.coordinator.Stop()
	if err := hosted.channel.Close(); err != nil {
		log.Error().Err(err).Str("service", "sessions").Msg("cannot close channel")
	}

	if err := s.sessions.MarkEnded(sessionID); err != nil {
		log.Error().Err(err).Str("service", "sessions").Msg("cannot mark session ended")
	}
	if err := s.notifier.BroadcastEnded(sessionID); err != nil {
		log.Error().Err(err).Str("service", "sessions").Msg("cannot notify broadcast end")
	}

	log.Info().
		Str("service", "sessions").
		Str("session_id", string(sessionID)).
		Msg("session ended")

	return nil
}

// Join opens a viewer's channel and announces it. The returned agent
// holds the receive leg, the caller releases it with Leave.
func (s *LiveSessionsManager) Join(ctx context.Context, req JoinRequest) (*viewer.Agent, error) {
	channel, err := s.opener.Open(ctx, req.SessionID, req.CallerID)
	if err != nil {
		return nil, err
	}

	agent := viewer.NewAgent(viewer.AgentOptions{
		Channel:       channel,
		Identity:      core.Identity{ID: req.CallerID, DisplayName: req.DisplayName},
		EnabledCodecs: s.cfg.Peer.EnabledCodecs,
		WebRTC:        s.rtcConfig,
		PingInterval:  s.cfg.Signaling.PresenceInterval,
		OnTrack:       req.OnTrack,
	})

	<-channel.Start()

	if err := agent.Join(ctx); err != nil {
		channel.Close()
		return nil, err
	}

	return agent, nil
}

// ViewersCount reports connected viewers of a hosted session.
func (s *LiveSessionsManager) ViewersCount(sessionID core.SessionID) int {
	s.lock.RLock()
	hosted, ok := s.broadcasts[sessionID]
	s.lock.RUnlock()

	if !ok || hosted == nil {
		return 0
	}
	return hosted.coordinator.ViewersCount()
}

func (s *LiveSessionsManager) forget(sessionID core.SessionID) {
	s.lock.Lock()
	delete(s.broadcasts, sessionID)
	s.lock.Unlock()
}

// reportViewers pushes the connected viewer count to the roster side
// whenever it changes.
func (s *LiveSessionsManager) reportViewers(sessionID core.SessionID, hosted *hostedBroadcast) {
	ticker := time.NewTicker(s.cfg.Signaling.PresenceInterval)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-hosted.stop:
			return
		case <-ticker.C:
			count := hosted.coordinator.ViewersCount()
			if count == last {
				continue
			}
			last = count

			if err := s.sessions.SetViewersCount(sessionID, count); err != nil {
				log.Error().Err(err).Str("service", "sessions").Msg("cannot store viewers count")
			}
			if err := s.notifier.ViewersChanged(sessionID, count); err != nil {
				log.Error().Err(err).Str("service", "sessions").Msg("cannot notify viewers count")
			}
		}
	}
}
