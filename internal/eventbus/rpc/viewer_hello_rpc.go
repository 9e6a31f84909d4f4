package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
)

type ViewerHelloParams struct {
	MessageMeta
	ViewerID    core.ParticipantID `json:"viewer_id"`
	DisplayName string             `json:"display_name,omitempty"`
}

// ViewerHelloRpc announces a viewer that wants in. viewer_joined and
// viewer_request_connection are equivalent; the latter is the reliable
// duplicate sent after subscriptions are in place.
type ViewerHelloRpc struct {
	jsonRpcHead
	Params ViewerHelloParams `json:"params"`
}

func NewViewerJoinedRpc(sessionID core.SessionID, viewerID core.ParticipantID, displayName string) *ViewerHelloRpc {
	return &ViewerHelloRpc{
		jsonRpcHead: newHead(ViewerJoinedMethod),
		Params: ViewerHelloParams{
			MessageMeta: newMeta(sessionID),
			ViewerID:    viewerID,
			DisplayName: displayName,
		},
	}
}

func NewViewerRequestConnectionRpc(sessionID core.SessionID, viewerID core.ParticipantID, displayName string) *ViewerHelloRpc {
	return &ViewerHelloRpc{
		jsonRpcHead: newHead(ViewerRequestConnectionMethod),
		Params: ViewerHelloParams{
			MessageMeta: newMeta(sessionID),
			ViewerID:    viewerID,
			DisplayName: displayName,
		},
	}
}

func (r ViewerHelloRpc) GetMethod() Method {
	return r.Method
}

func (r ViewerHelloRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
