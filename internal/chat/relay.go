package chat

import (
	"sync"

	"github.com/google/uuid"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/campuslive/lecturecast/internal/eventbus"
	"github.com/campuslive/lecturecast/internal/eventbus/rpc"
)

// Message is one chat line as observed by this participant.
type Message struct {
	ID         string             `json:"id"`
	AuthorID   core.ParticipantID `json:"author_id"`
	AuthorName string             `json:"author_name"`
	Text       string             `json:"text"`
	Timestamp  int64              `json:"timestamp"`
}

// Relay rides the signaling channel with best-effort broadcast chat.
// Messages live only in each participant's runtime buffer: whoever is
// subscribed when a message is published sees it, late joiners never do.
type Relay struct {
	// OnMessage, when set before the channel starts, is invoked once per
	// newly observed message, after it lands in the history.
	OnMessage func(Message)

	channel  eventbus.SignalingChannel
	identity core.Identity

	mu       sync.RWMutex
	messages []Message
	seen     map[string]struct{}
}

func NewRelay(channel eventbus.SignalingChannel, identity core.Identity) *Relay {
	relay := &Relay{
		channel:  channel,
		identity: identity,
		seen:     make(map[string]struct{}),
	}

	channel.Subscribe(rpc.ChatMessageMethod, relay.onChatMessage)

	return relay
}

// Send publishes one message to all current subscribers. The sender's own
// copy arrives through the channel like everyone else's.
func (r *Relay) Send(text string) error {
	msg := rpc.NewChatMessageRpc(
		r.channel.SessionID(),
		uuid.NewString(),
		r.identity.ID,
		r.identity.DisplayName,
		text,
	)

	return r.channel.Publish(msg)
}

// History returns the messages observed so far, in arrival order.
func (r *Relay) History() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Message(nil), r.messages...)
}

func (r *Relay) onChatMessage(raw rpc.Rpc) {
	msg, ok := raw.(*rpc.ChatRpc)
	if !ok {
		return
	}
	if msg.Params.SessionID != r.channel.SessionID() {
		return
	}

	observed := Message{
		ID:         msg.Params.ID,
		AuthorID:   msg.Params.AuthorID,
		AuthorName: msg.Params.AuthorName,
		Text:       msg.Params.Text,
		Timestamp:  msg.Params.Timestamp,
	}

	r.mu.Lock()
	// id-equality dedup only
	if _, ok := r.seen[observed.ID]; ok {
		r.mu.Unlock()
		return
	}
	r.seen[observed.ID] = struct{}{}
	r.messages = append(r.messages, observed)
	r.mu.Unlock()

	if r.OnMessage != nil {
		r.OnMessage(observed)
	}
}
