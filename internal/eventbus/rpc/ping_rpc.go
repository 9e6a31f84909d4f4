package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
)

type PingParams struct {
	MessageMeta
	ViewerID core.ParticipantID `json:"viewer_id"`
}

// PingRpc is the liveness probe pair. A viewer_ping is answered with a
// host_pong regardless of connection state.
type PingRpc struct {
	jsonRpcHead
	Params PingParams `json:"params"`
}

func NewViewerPingRpc(sessionID core.SessionID, viewerID core.ParticipantID) *PingRpc {
	return &PingRpc{
		jsonRpcHead: newHead(ViewerPingMethod),
		Params: PingParams{
			MessageMeta: newMeta(sessionID),
			ViewerID:    viewerID,
		},
	}
}

func NewHostPongRpc(sessionID core.SessionID, viewerID core.ParticipantID) *PingRpc {
	return &PingRpc{
		jsonRpcHead: newHead(HostPongMethod),
		Params: PingParams{
			MessageMeta: newMeta(sessionID),
			ViewerID:    viewerID,
		},
	}
}

func (r PingRpc) GetMethod() Method {
	return r.Method
}

func (r PingRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
