package rpc

import (
	"encoding/json"
	"errors"
	"io"
)

const jsonRpcVersion = "2.0"

type Method string

const (
	// viewer -> host
	ViewerJoinedMethod            Method = "viewer_joined"
	ViewerRequestConnectionMethod Method = "viewer_request_connection"
	ViewerAnswerMethod            Method = "viewer_answer"
	ViewerCandidateMethod         Method = "viewer_candidate"
	ViewerLeftMethod              Method = "viewer_left"
	ViewerPingMethod              Method = "viewer_ping"

	// host -> viewers
	HostOfferMethod     Method = "host_offer"
	HostCandidateMethod Method = "host_candidate"
	HostReadyMethod     Method = "host_ready"
	HostPongMethod      Method = "host_pong"
	StreamEndedMethod   Method = "stream_ended"

	// any participant
	ChatMessageMethod Method = "chat_message"
)

// AllMethods enumerates every wire method. Bridges that mirror a whole
// channel subscribe to each of them.
var AllMethods = []Method{
	ViewerJoinedMethod,
	ViewerRequestConnectionMethod,
	ViewerAnswerMethod,
	ViewerCandidateMethod,
	ViewerLeftMethod,
	ViewerPingMethod,
	HostOfferMethod,
	HostCandidateMethod,
	HostReadyMethod,
	HostPongMethod,
	StreamEndedMethod,
	ChatMessageMethod,
}

var (
	ErrUnknownRpcType = errors.New("unknown RPC type")
	ErrMalformedRpc   = errors.New("malformed RPC")
)

type Rpc interface {
	GetMethod() Method
	ToJSON() ([]byte, error)
}

type jsonRpcHead struct {
	Version string `json:"jsonrpc"`
	Method  Method `json:"method"`
}

type jsonRpc struct {
	jsonRpcHead
	Params json.RawMessage `json:"params"`
}

func newHead(method Method) jsonRpcHead {
	return jsonRpcHead{
		Version: jsonRpcVersion,
		Method:  method,
	}
}

func FromReader(reader io.Reader) (Rpc, error) {
	rpc := &jsonRpc{}

	if err := json.NewDecoder(reader).Decode(rpc); err != nil {
		return nil, err
	}

	decode := func(params interface{}) error {
		if len(rpc.Params) == 0 {
			return ErrMalformedRpc
		}
		return json.Unmarshal(rpc.Params, params)
	}

	switch rpc.Method {
	case ViewerJoinedMethod, ViewerRequestConnectionMethod:
		p := ViewerHelloParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &ViewerHelloRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case ViewerAnswerMethod, HostOfferMethod:
		p := SDPParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &SDPRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case ViewerCandidateMethod, HostCandidateMethod:
		p := ICECandidateParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &ICECandidateRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case ViewerLeftMethod:
		p := ViewerLeftParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &ViewerLeftRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case ViewerPingMethod, HostPongMethod:
		p := PingParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &PingRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case HostReadyMethod:
		p := HostReadyParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &HostReadyRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case StreamEndedMethod:
		p := StreamEndedParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &StreamEndedRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	case ChatMessageMethod:
		p := ChatParams{}
		if err := decode(&p); err != nil {
			return nil, err
		}
		return &ChatRpc{jsonRpcHead: rpc.jsonRpcHead, Params: p}, nil
	default:
		return nil, ErrUnknownRpcType
	}
}
