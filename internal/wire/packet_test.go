package wire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func TestDecodePacket_Status(t *testing.T) {
	z := 0.2
	data, err := EncodePacket(&Status{
		Timestamp: 1_000_000,
		World: &WorldState{
			Ball:   &Ball{X: 1, Y: 2, Z: &z},
			Yellow: []Robot{{ID: 3, X: -1, Y: 0.5, Phi: 1.2}},
		},
	})
	require.NoError(t, err)

	p, err := DecodePacket(data)
	require.NoError(t, err)

	status, ok := p.(*Status)
	require.True(t, ok, "expected *Status, got %T", p)
	assert.Equal(t, int64(1_000_000), status.Timestamp)
	require.NotNil(t, status.World)
	require.NotNil(t, status.World.Ball.Z)
	assert.Equal(t, 0.2, *status.World.Ball.Z)
	assert.Len(t, status.World.Yellow, 1)
	assert.Nil(t, status.Geometry)
}

func TestDecodePacket_VisualizationGeometry(t *testing.T) {
	src := uint32(7)
	data, err := EncodePacket(&VisualizationUpdate{
		Group: &VisualizationGroup{Group: 1, GroupCount: 4},
		Sets: []VisualizationSet{{
			Source: &src,
			Visualizations: []Visualization{{
				ID:    12,
				Parts: []VisPart{{Path: &Path{Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}}},
			}},
		}},
	})
	require.NoError(t, err)

	p, err := DecodePacket(data)
	require.NoError(t, err)
	update := p.(*VisualizationUpdate)
	assert.Equal(t, uint32(4), update.Group.GroupCount)
	part := update.Sets[0].Visualizations[0].Parts[0]
	assert.Nil(t, part.Circle)
	assert.Nil(t, part.Polygon)
	require.NotNil(t, part.Path)
	assert.Len(t, part.Path.Points, 2)
}

func TestDecodePacket_UnknownKind(t *testing.T) {
	for name, body := range map[string]msgpack.RawMessage{
		"nil body":  {0xc0},
		"empty map": {0x80},
		"no body":   nil,
	} {
		data, err := msgpack.Marshal(&envelope{Kind: 200, Body: body})
		require.NoError(t, err, name)

		_, err = DecodePacket(data)
		assert.ErrorIs(t, err, ErrUnknownKind, name)
	}
}

func TestDecodePacket_Empty(t *testing.T) {
	data, err := msgpack.Marshal(&envelope{Kind: uint8(KindStatus)})
	require.NoError(t, err)

	_, err = DecodePacket(data)
	assert.True(t, errors.Is(err, ErrEmptyPacket))
}

func TestDecodePacket_Truncated(t *testing.T) {
	data, err := EncodePacket(&GameState{})
	require.NoError(t, err)

	_, err = DecodePacket(data[:len(data)-1])
	assert.Error(t, err)
}

func TestDecodeRequest(t *testing.T) {
	data, err := EncodeRequest(&UDPStreamRequest{Streams: []Stream{StreamWorldState}, Port: 40000})
	require.NoError(t, err)

	r, err := DecodeRequest(data)
	require.NoError(t, err)
	req, ok := r.(*UDPStreamRequest)
	require.True(t, ok)
	assert.Equal(t, uint16(40000), req.Port)
	assert.Equal(t, []Stream{StreamWorldState}, req.Streams)
}

func TestDecodeRequest_UnknownKind(t *testing.T) {
	data, err := msgpack.Marshal(&envelope{Kind: 99, Body: msgpack.RawMessage{0xc0}})
	require.NoError(t, err)

	_, err = DecodeRequest(data)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestDecodeRequest_Empty(t *testing.T) {
	data, err := msgpack.Marshal(&envelope{Kind: uint8(RequestVisFilter)})
	require.NoError(t, err)

	_, err = DecodeRequest(data)
	assert.ErrorIs(t, err, ErrEmptyPacket)
}
