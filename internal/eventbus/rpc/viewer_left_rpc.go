package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
)

type ViewerLeftParams struct {
	MessageMeta
	ViewerID core.ParticipantID `json:"viewer_id"`
}

type ViewerLeftRpc struct {
	jsonRpcHead
	Params ViewerLeftParams `json:"params"`
}

func NewViewerLeftRpc(sessionID core.SessionID, viewerID core.ParticipantID) *ViewerLeftRpc {
	return &ViewerLeftRpc{
		jsonRpcHead: newHead(ViewerLeftMethod),
		Params: ViewerLeftParams{
			MessageMeta: newMeta(sessionID),
			ViewerID:    viewerID,
		},
	}
}

func (r ViewerLeftRpc) GetMethod() Method {
	return r.Method
}

func (r ViewerLeftRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
