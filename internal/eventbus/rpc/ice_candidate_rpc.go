package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
	"github.com/pion/webrtc/v3"
)

type ICECandidateParams struct {
	webrtc.ICECandidateInit
	MessageMeta
	ViewerID core.ParticipantID `json:"viewer_id"`
}

// ICE candidate RPC
type ICECandidateRpc struct {
	jsonRpcHead
	Params ICECandidateParams `json:"params"`
}

func NewHostCandidateRpc(sessionID core.SessionID, viewerID core.ParticipantID, candidate webrtc.ICECandidateInit) *ICECandidateRpc {
	return &ICECandidateRpc{
		jsonRpcHead: newHead(HostCandidateMethod),
		Params: ICECandidateParams{
			ICECandidateInit: candidate,
			MessageMeta:      newMeta(sessionID),
			ViewerID:         viewerID,
		},
	}
}

func NewViewerCandidateRpc(sessionID core.SessionID, viewerID core.ParticipantID, candidate webrtc.ICECandidateInit) *ICECandidateRpc {
	return &ICECandidateRpc{
		jsonRpcHead: newHead(ViewerCandidateMethod),
		Params: ICECandidateParams{
			ICECandidateInit: candidate,
			MessageMeta:      newMeta(sessionID),
			ViewerID:         viewerID,
		},
	}
}

func (r ICECandidateRpc) GetMethod() Method {
	return r.Method
}

func (r ICECandidateRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
