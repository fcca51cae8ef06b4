// Package field holds the client-side state of one bound field host: the
// transport task, the jitter buffer and the overlay tracker. All methods are
// called from the owner's tick and are not safe for concurrent use.
package field

import (
	"context"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"fieldsync/internal/discovery"
	"fieldsync/internal/filter"
	"fieldsync/internal/stream"
	"fieldsync/internal/vistrack"
	"fieldsync/internal/wire"
)

// Options configures a field session.
type Options struct {
	Stream stream.Config
	Filter filter.Config
	// Unfiltered returns the newest snapshot instead of interpolating.
	Unfiltered bool
}

// DefaultOptions returns the default session settings.
func DefaultOptions() Options {
	return Options{
		Stream: stream.DefaultConfig(),
		Filter: filter.DefaultConfig(),
	}
}

// Field is a bound field host.
type Field struct {
	host    discovery.Host
	session xid.ID
	opts    Options
	log     zerolog.Logger
	handle  *stream.Handle

	filter  *filter.WorldStateFilter
	tracker *vistrack.Tracker

	geometry    filter.Geometry
	hasGeometry bool
	game        filter.GameInfo
	hasGame     bool
	mappings    wire.VisMappings
	received    int
}

// Bind starts receiving telemetry from host and subscribes to every stream.
func Bind(ctx context.Context, host discovery.Host, opts Options, log zerolog.Logger) (*Field, error) {
	session := xid.New()
	log = log.With().
		Str("component", "field").
		Str("host", host.Name()).
		Str("session", session.String()).
		Logger()

	h, err := stream.Spawn(ctx, host, opts.Stream, log)
	if err != nil {
		return nil, err
	}

	f := newField(host, session, h, opts, log)
	f.subscribe()

	log.Info().
		Str("addr", host.Addr.String()).
		Int("if_index", host.Interface()).
		Str("transport", string(opts.Stream.Transport)).
		Msg("Field bound")
	return f, nil
}

func newField(host discovery.Host, session xid.ID, h *stream.Handle, opts Options, log zerolog.Logger) *Field {
	return &Field{
		host:    host,
		session: session,
		opts:    opts,
		log:     log,
		handle:  h,
		filter:  filter.New(opts.Filter),
		tracker: vistrack.New(),
	}
}

// subscribe queues the initial stream requests. Metadata travels over the
// control channel, telemetry and overlays over UDP.
func (f *Field) subscribe() {
	reqs := []wire.Request{
		&wire.StreamRequest{Streams: []wire.Stream{
			wire.StreamFieldGeometry,
			wire.StreamGameState,
			wire.StreamVisMappings,
		}},
		&wire.UDPStreamRequest{Streams: []wire.Stream{
			wire.StreamWorldState,
			wire.StreamVisualizations,
		}},
	}
	for _, r := range reqs {
		if !f.handle.Request(r) {
			f.log.Warn().Msg("Request channel full, initial subscription dropped")
		}
	}
}

// Tick applies every packet received since the previous tick. It returns
// false once the transport task has ended; the caller then discards the
// field.
func (f *Field) Tick() bool {
	for {
		pkt, ok := f.handle.TryRecv()
		if !ok {
			break
		}
		f.apply(pkt)
	}
	return !f.handle.Finished()
}

func (f *Field) apply(pkt wire.Packet) {
	f.received++
	switch p := pkt.(type) {
	case *wire.Status:
		f.filter.PushPacket(*p)
	case *wire.VisualizationUpdate:
		f.tracker.PushUpdate(*p)
	case *wire.FieldGeometry:
		f.geometry, f.hasGeometry = filter.GeometryFromWire(*p)
	case *wire.GameState:
		f.game, f.hasGame = filter.GameInfoFromWire(*p), true
	case *wire.VisMappings:
		f.mappings = *p
	default:
		f.log.Debug().Stringer("kind", pkt.Kind()).Msg("Ignoring packet")
	}
}

// WorldState returns the world state for the current tick.
func (f *Field) WorldState() wire.WorldState {
	if f.opts.Unfiltered {
		return f.filter.LatestWorldState()
	}
	return f.filter.CurrentWorldState()
}

// FieldGeometry returns the geometry sent over the control channel, or the
// newest one carried by telemetry.
func (f *Field) FieldGeometry() filter.Geometry {
	if f.hasGeometry {
		return f.geometry
	}
	return f.filter.CurrentFieldGeometry()
}

// GameState returns the newest team names.
func (f *Field) GameState() filter.GameInfo {
	if f.hasGame {
		return f.game
	}
	return f.filter.CurrentGameState()
}

// VisualizationUpdates returns the overlays received since the previous call.
func (f *Field) VisualizationUpdates() vistrack.Batch {
	return f.tracker.Updates()
}

// Mappings returns the overlay names offered by the host.
func (f *Field) Mappings() wire.VisMappings {
	return f.mappings
}

// SelectVisualizations asks the host to publish only the given overlays.
func (f *Field) SelectVisualizations(ids []uint32) bool {
	return f.handle.Request(&wire.VisFilter{IDs: append([]uint32(nil), ids...)})
}

// Host returns the bound host.
func (f *Field) Host() discovery.Host {
	return f.host
}

// Session returns the id of this binding.
func (f *Field) Session() xid.ID {
	return f.session
}

// Received returns the number of packets applied so far.
func (f *Field) Received() int {
	return f.received
}

// Stats returns jitter buffer diagnostics.
func (f *Field) Stats() filter.Stats {
	return f.filter.Stats()
}

// Err returns the error the transport task ended with.
func (f *Field) Err() error {
	return f.handle.Err()
}

// Close stops the transport task.
func (f *Field) Close() {
	f.handle.Close()
}
