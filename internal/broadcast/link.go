package broadcast

import (
	"sync"
	"time"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/rtc"
)

type LinkState string

const (
	// LinkAnnounced: the viewer said hello, an offer is being prepared
	LinkAnnounced LinkState = "announced"
	// LinkOfferSent: offer published, waiting for the answer
	LinkOfferSent LinkState = "offer_sent"
	// LinkConnected: the media path is up
	LinkConnected LinkState = "connected"
	LinkClosed    LinkState = "closed"
	LinkFailed    LinkState = "failed"
)

// viewerLink is the coordinator's record of one viewer leg.
type viewerLink struct {
	viewerID    core.ParticipantID
	displayName string
	transport   *rtc.PCTransport

	mu          sync.Mutex
	state       LinkState
	offerSentAt time.Time
}

func newViewerLink(viewerID core.ParticipantID, displayName string, transport *rtc.PCTransport) *viewerLink {
	return &viewerLink{
		viewerID:    viewerID,
		displayName: displayName,
		transport:   transport,
		state:       LinkAnnounced,
	}
}

func (l *viewerLink) State() LinkState {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state
}

func (l *viewerLink) setState(state LinkState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state = state
}

// markOfferSent records the offer moment. The connected state is owned
// by the connection callback and never rolled back here.
func (l *viewerLink) markOfferSent(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == LinkAnnounced {
		l.state = LinkOfferSent
		l.offerSentAt = now
	}
}

// offerExpired reports whether the link has been waiting for an answer
// longer than the given timeout.
func (l *viewerLink) offerExpired(now time.Time, timeout time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.state == LinkOfferSent && now.Sub(l.offerSentAt) > timeout
}
