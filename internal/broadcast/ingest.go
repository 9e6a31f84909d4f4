package broadcast

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/rtc"
)

const rtcpPLIInterval = 3 * time.Second

// IngestSource is the presenter's capture leg. The presenter's browser
// publishes its camera and microphone here over a receive-only peer
// connection and every incoming RTP packet is mirrored onto a local
// track that viewer legs subscribe to.
type IngestSource struct {
	sessionID core.SessionID
	transport *rtc.PCTransport

	mu      sync.RWMutex
	tracks  map[webrtc.RTPCodecType]*webrtc.TrackLocalStaticRTP
	packets uint64
	lastSeq map[webrtc.RTPCodecType]uint16
	lost    uint64

	stop     chan struct{}
	stopOnce sync.Once
}

func NewIngestSource(sessionID core.SessionID, transport *rtc.PCTransport) *IngestSource {
	s := &IngestSource{
		sessionID: sessionID,
		transport: transport,
		tracks:    make(map[webrtc.RTPCodecType]*webrtc.TrackLocalStaticRTP),
		lastSeq:   make(map[webrtc.RTPCodecType]uint16),
		stop:      make(chan struct{}),
	}

	s.transport.PC().OnTrack(s.onTrack)

	return s
}

func (s *IngestSource) Transport() *rtc.PCTransport {
	return s.transport
}

// Accept answers the presenter's publish offer. The ingest leg does not
// trickle, the answer carries the gathered candidates.
func (s *IngestSource) Accept(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	pc := s.transport.PC()

	if err := s.transport.SetRemoteDescription(offer); err != nil {
		return nil, err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gathered

	return pc.LocalDescription(), nil
}

func (s *IngestSource) Tracks() []webrtc.TrackLocal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracks := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		tracks = append(tracks, t)
	}
	return tracks
}

func (s *IngestSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tracks) > 0
}

// PacketsReceived reports how many RTP packets the ingest leg has
// forwarded so far, over all tracks. PacketsLost counts sequence number
// gaps seen on the way in.
func (s *IngestSource) PacketsReceived() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.packets
}

func (s *IngestSource) PacketsLost() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lost
}

func (s *IngestSource) observe(kind webrtc.RTPCodecType, pkt *rtp.Packet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.packets++
	if last, ok := s.lastSeq[kind]; ok {
		if delta := pkt.SequenceNumber - last; delta > 1 && delta < 1<<15 {
			s.lost += uint64(delta - 1)
		}
	}
	s.lastSeq[kind] = pkt.SequenceNumber
}

func (s *IngestSource) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.transport.Close()
	})
}

func (s *IngestSource) onTrack(remoteTrack *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	log.Info().
		Str("service", "broadcast").
		Str("session_id", string(s.sessionID)).
		Str("kind", remoteTrack.Kind().String()).
		Msg("ingest track started")

	if remoteTrack.Kind() == webrtc.RTPCodecTypeVideo {
		// Ask the publisher for a keyframe on an interval so late
		// joiners can render without waiting for a natural one.
		go func() {
			ticker := time.NewTicker(rtcpPLIInterval)
			defer ticker.Stop()
			for {
				select {
				case <-s.stop:
					return
				case <-ticker.C:
					err := s.transport.PC().WriteRTCP([]rtcp.Packet{
						&rtcp.PictureLossIndication{MediaSSRC: uint32(remoteTrack.SSRC())},
					})
					if err != nil {
						return
					}
				}
			}
		}()
	}

	go func() {
		rtcpBuf := make([]byte, 1500)
		for {
			if _, _, rtcpErr := receiver.Read(rtcpBuf); rtcpErr != nil {
				return
			}
		}
	}()

	localTrack, err := webrtc.NewTrackLocalStaticRTP(
		remoteTrack.Codec().RTPCodecCapability,
		remoteTrack.Kind().String(),
		string(s.sessionID),
	)
	if err != nil {
		log.Error().Err(err).Str("service", "broadcast").Msg("cannot create local track")
		return
	}

	s.mu.Lock()
	s.tracks[remoteTrack.Kind()] = localTrack
	s.mu.Unlock()

	for {
		pkt, _, readErr := remoteTrack.ReadRTP()
		if readErr != nil {
			log.Debug().Err(readErr).Str("service", "broadcast").Msg("ingest track ended")
			return
		}
		s.observe(remoteTrack.Kind(), pkt)

		// ErrClosedPipe means no viewer leg is bound yet, keep reading
		if err := localTrack.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Error().Err(err).Str("service", "broadcast").Msg("cannot forward packet")
			return
		}
	}
}
