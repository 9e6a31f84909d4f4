package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
)

type StreamEndedParams struct {
	MessageMeta
}

type StreamEndedRpc struct {
	jsonRpcHead
	Params StreamEndedParams `json:"params"`
}

func NewStreamEndedRpc(sessionID core.SessionID) *StreamEndedRpc {
	return &StreamEndedRpc{
		jsonRpcHead: newHead(StreamEndedMethod),
		Params: StreamEndedParams{
			MessageMeta: newMeta(sessionID),
		},
	}
}

func (r StreamEndedRpc) GetMethod() Method {
	return r.Method
}

func (r StreamEndedRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
