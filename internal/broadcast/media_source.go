package broadcast

import (
	"github.com/pion/webrtc/v3"
)

// MediaSource supplies the local tracks fanned out to viewers. A source
// that is not Ready has no tracks to offer, which is fatal for any
// viewer connection attempted while it lasts.
type MediaSource interface {
	Tracks() []webrtc.TrackLocal
	Ready() bool
}

// StaticSource serves a fixed set of prepared tracks.
type StaticSource struct {
	tracks []webrtc.TrackLocal
}

func NewStaticSource(tracks ...webrtc.TrackLocal) *StaticSource {
	return &StaticSource{tracks: tracks}
}

func (s *StaticSource) Tracks() []webrtc.TrackLocal {
	return s.tracks
}

func (s *StaticSource) Ready() bool {
	return len(s.tracks) > 0
}
