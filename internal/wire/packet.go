package wire

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrUnknownKind is returned for an envelope whose kind this client
	// does not know.
	ErrUnknownKind = errors.New("unknown packet kind")
	// ErrEmptyPacket is returned for an envelope without a body.
	ErrEmptyPacket = errors.New("empty packet")
)

// Kind tags the payload carried by an envelope.
type Kind uint8

const (
	KindNone Kind = iota
	KindStatus
	KindVisualizationUpdate
	KindFieldGeometry
	KindGameState
	KindVisMappings
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindStatus:
		return "status"
	case KindVisualizationUpdate:
		return "visualization_update"
	case KindFieldGeometry:
		return "field_geometry"
	case KindGameState:
		return "game_state"
	case KindVisMappings:
		return "vis_mappings"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Packet is any payload a host sends to the client.
type Packet interface {
	Kind() Kind
}

func (*Status) Kind() Kind              { return KindStatus }
func (*VisualizationUpdate) Kind() Kind { return KindVisualizationUpdate }
func (*FieldGeometry) Kind() Kind       { return KindFieldGeometry }
func (*GameState) Kind() Kind           { return KindGameState }
func (*VisMappings) Kind() Kind         { return KindVisMappings }

type envelope struct {
	Kind uint8              `msgpack:"k"`
	Body msgpack.RawMessage `msgpack:"b,omitempty"`
}

// EncodePacket wraps p in an envelope.
func EncodePacket(p Packet) ([]byte, error) {
	body, err := msgpack.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s: %w", p.Kind(), err)
	}
	return msgpack.Marshal(&envelope{Kind: uint8(p.Kind()), Body: body})
}

// DecodePacket unwraps an envelope into its concrete payload.
func DecodePacket(data []byte) (Packet, error) {
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	var p Packet
	switch Kind(env.Kind) {
	case KindStatus:
		p = &Status{}
	case KindVisualizationUpdate:
		p = &VisualizationUpdate{}
	case KindFieldGeometry:
		p = &FieldGeometry{}
	case KindGameState:
		p = &GameState{}
	case KindVisMappings:
		p = &VisMappings{}
	case KindNone:
		return nil, ErrEmptyPacket
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, env.Kind)
	}

	if len(env.Body) == 0 {
		return nil, ErrEmptyPacket
	}
	if err := msgpack.Unmarshal(env.Body, p); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", Kind(env.Kind), err)
	}
	return p, nil
}

// DecodeDataRequest decodes a bare DataRequest datagram.
func DecodeDataRequest(data []byte) (DataRequest, error) {
	var req DataRequest
	if err := msgpack.Unmarshal(data, &req); err != nil {
		return DataRequest{}, fmt.Errorf("decoding data request: %w", err)
	}
	return req, nil
}

// EncodeDataRequest encodes a bare DataRequest datagram.
func EncodeDataRequest(req DataRequest) ([]byte, error) {
	return msgpack.Marshal(&req)
}
