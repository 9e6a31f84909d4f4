package rpc

import (
	"encoding/json"

	"github.com/campuslive/lecturecast/internal/core"
)

type HostReadyParams struct {
	MessageMeta
	Streaming bool `json:"streaming"`
}

// HostReadyRpc is broadcast on the presence interval. It complements the
// registry: a viewer that subscribed just after the last registry write
// still learns the host is reachable.
type HostReadyRpc struct {
	jsonRpcHead
	Params HostReadyParams `json:"params"`
}

func NewHostReadyRpc(sessionID core.SessionID, streaming bool) *HostReadyRpc {
	return &HostReadyRpc{
		jsonRpcHead: newHead(HostReadyMethod),
		Params: HostReadyParams{
			MessageMeta: newMeta(sessionID),
			Streaming:   streaming,
		},
	}
}

func (r HostReadyRpc) GetMethod() Method {
	return r.Method
}

func (r HostReadyRpc) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
