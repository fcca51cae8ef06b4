package field

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/discovery"
	"fieldsync/internal/filter"
	"fieldsync/internal/task"
	"fieldsync/internal/wire"
)

var testHost = discovery.Host{
	Addr:       netip.MustParseAddrPort("192.168.1.20:40000"),
	Interfaces: []int{2},
	Hostname:   "field-a",
}

// fakeTransport replays packets and records requests until cancelled.
func fakeTransport(packets []wire.Packet, requests chan<- wire.Request, fail error) task.Func[wire.Packet, wire.Request] {
	return func(ctx context.Context, out *task.Sender[wire.Packet], in <-chan wire.Request) error {
		for _, p := range packets {
			out.TrySend(p)
		}
		if fail != nil {
			return fail
		}
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case r := <-in:
				if requests != nil {
					requests <- r
				}
			}
		}
	}
}

func newTestField(t *testing.T, fn task.Func[wire.Packet, wire.Request]) *Field {
	t.Helper()
	h := task.Spawn(context.Background(), task.Options{Name: "fake", OutBuffer: 16, Log: zerolog.Nop()}, fn)
	f := newField(testHost, xid.New(), h, DefaultOptions(), zerolog.Nop())
	t.Cleanup(f.Close)
	return f
}

func tickUntil(t *testing.T, f *Field, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for f.Received() < n && time.Now().Before(deadline) {
		f.Tick()
		time.Sleep(2 * time.Millisecond)
	}
	require.GreaterOrEqual(t, f.Received(), n)
}

func TestTick_RoutesPackets(t *testing.T) {
	yellow := "ER-Force"
	goal := 1.0
	packets := []wire.Packet{
		&wire.Status{Timestamp: 0, World: &wire.WorldState{Ball: &wire.Ball{X: 1}}},
		&wire.FieldGeometry{FieldSizeX: 9, FieldSizeY: 6, GoalWidth: &goal},
		&wire.GameState{YellowTeamName: &yellow},
		&wire.VisMappings{Sources: map[uint32]string{1: "planner"}},
		&wire.VisualizationUpdate{Sets: []wire.VisualizationSet{{Visualizations: []wire.Visualization{{ID: 5}}}}},
	}
	f := newTestField(t, fakeTransport(packets, nil, nil))
	tickUntil(t, f, len(packets))

	ws := f.WorldState()
	require.NotNil(t, ws.Ball)
	assert.Equal(t, 1.0, ws.Ball.X)

	assert.Equal(t, filter.Vec2{X: 9, Y: 6}, f.FieldGeometry().PlayArea)
	assert.Equal(t, 1.0, f.FieldGeometry().GoalWidth)
	assert.Equal(t, "ER-Force", f.GameState().YellowTeam)
	assert.Equal(t, "planner", f.Mappings().Sources[1])

	batch := f.VisualizationUpdates()
	require.Len(t, batch.Visualizations(), 1)
	assert.Equal(t, uint32(5), batch.Visualizations()[0].ID)
	assert.True(t, f.VisualizationUpdates().Empty())
}

func TestFieldGeometry_FallsBackToTelemetry(t *testing.T) {
	packets := []wire.Packet{
		&wire.Status{Timestamp: 0, Geometry: &wire.FieldGeometry{FieldSizeX: 9, FieldSizeY: 6}},
		&wire.FieldGeometry{},
	}
	f := newTestField(t, fakeTransport(packets, nil, nil))
	tickUntil(t, f, len(packets))

	assert.Equal(t, filter.Vec2{X: 9, Y: 6}, f.FieldGeometry().PlayArea)
}

func TestFieldGeometry_DefaultWithoutData(t *testing.T) {
	f := newTestField(t, fakeTransport(nil, nil, nil))
	assert.True(t, f.Tick())
	assert.Equal(t, filter.DivisionA, f.FieldGeometry())
	assert.Equal(t, wire.WorldState{}, f.WorldState())
}

func TestTick_FalseAfterTransportEnds(t *testing.T) {
	errConn := errors.New("connection refused")
	f := newTestField(t, fakeTransport([]wire.Packet{&wire.Status{Timestamp: 1}}, nil, errConn))

	deadline := time.Now().Add(2 * time.Second)
	for f.Tick() && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	assert.False(t, f.Tick())
	assert.ErrorIs(t, f.Err(), errConn)
	// Packets sent before the failure are still applied
	assert.Equal(t, 1, f.Received())
}

func TestSubscribeAndSelect(t *testing.T) {
	requests := make(chan wire.Request, 4)
	f := newTestField(t, fakeTransport(nil, requests, nil))

	f.subscribe()
	require.True(t, f.SelectVisualizations([]uint32{3, 4}))

	var got []wire.Request
	for len(got) < 3 {
		select {
		case r := <-requests:
			got = append(got, r)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d requests, want 3", len(got))
		}
	}

	sr, ok := got[0].(*wire.StreamRequest)
	require.True(t, ok)
	assert.Contains(t, sr.Streams, wire.StreamFieldGeometry)
	ur, ok := got[1].(*wire.UDPStreamRequest)
	require.True(t, ok)
	assert.Contains(t, ur.Streams, wire.StreamWorldState)
	vf, ok := got[2].(*wire.VisFilter)
	require.True(t, ok)
	assert.Equal(t, []uint32{3, 4}, vf.IDs)
}
