package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Stream names a data stream a client can subscribe to.
type Stream uint8

const (
	StreamFieldGeometry Stream = iota + 1
	StreamGameState
	StreamVisMappings
	StreamWorldState
	StreamVisualizations
)

// RequestKind tags the payload of a control request.
type RequestKind uint8

const (
	RequestNone RequestKind = iota
	RequestStreams
	RequestUDPStreams
	RequestVisFilter
)

// Request is any control message a client sends over the WebSocket channel.
type Request interface {
	RequestKind() RequestKind
}

// StreamRequest subscribes to streams delivered over the control channel.
type StreamRequest struct {
	Streams []Stream `msgpack:"streams"`
}

// UDPStreamRequest subscribes to streams delivered as unicast UDP to Port.
type UDPStreamRequest struct {
	Streams []Stream `msgpack:"streams"`
	Port    uint16   `msgpack:"port"`
}

// VisFilter selects visualizations by id.
type VisFilter struct {
	IDs []uint32 `msgpack:"ids"`
}

func (*StreamRequest) RequestKind() RequestKind    { return RequestStreams }
func (*UDPStreamRequest) RequestKind() RequestKind { return RequestUDPStreams }
func (*VisFilter) RequestKind() RequestKind        { return RequestVisFilter }

// EncodeRequest wraps r in an envelope.
func EncodeRequest(r Request) ([]byte, error) {
	body, err := msgpack.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return msgpack.Marshal(&envelope{Kind: uint8(r.RequestKind()), Body: body})
}

// DecodeRequest unwraps a control request envelope.
func DecodeRequest(data []byte) (Request, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	var r Request
	switch RequestKind(env.Kind) {
	case RequestStreams:
		r = &StreamRequest{}
	case RequestUDPStreams:
		r = &UDPStreamRequest{}
	case RequestVisFilter:
		r = &VisFilter{}
	case RequestNone:
		return nil, ErrEmptyPacket
	default:
		return nil, fmt.Errorf("%w: request %d", ErrUnknownKind, env.Kind)
	}

	if len(env.Body) == 0 {
		return nil, ErrEmptyPacket
	}
	if err := msgpack.Unmarshal(env.Body, r); err != nil {
		return nil, fmt.Errorf("decoding request: %w", err)
	}
	return r, nil
}
