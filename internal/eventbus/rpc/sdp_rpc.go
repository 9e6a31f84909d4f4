package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/pion/webrtc/v3"
)

type SDPParams struct {
	webrtc.SessionDescription
	MessageMeta
	// ViewerID addresses a host_offer to one viewer, or names the sender
	// of a viewer_answer. Non-addressed peers ignore the message.
	ViewerID core.ParticipantID `json:"viewer_id"`
}

// SDP RPC
type SDPRpc struct {
	jsonRpcHead
	Params SDPParams `json:"params"`
}

func NewHostOfferRpc(sessionID core.SessionID, viewerID core.ParticipantID, sdp *webrtc.SessionDescription) *SDPRpc {
	return &SDPRpc{
		jsonRpcHead: newHead(HostOfferMethod),
		Params: SDPParams{
			SessionDescription: *sdp,
			MessageMeta:        newMeta(sessionID),
			ViewerID:           viewerID,
		},
	}
}

func NewViewerAnswerRpc(sessionID core.SessionID, viewerID core.ParticipantID, sdp *webrtc.SessionDescription) *SDPRpc {
	return &SDPRpc{
		jsonRpcHead: newHead(ViewerAnswerMethod),
		Params: SDPParams{
			SessionDescription: *sdp,
			MessageMeta:        newMeta(sessionID),
			ViewerID:           viewerID,
		},
	}
}

func (r SDPRpc) GetMethod() Method {
	return r.Method
}

func (r SDPRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
