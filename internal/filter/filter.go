// Package filter turns an unordered, jittery stream of telemetry snapshots
// into a smoothly advancing world state.
//
// Snapshots are placed on a local monotonic timeline (microseconds since the
// filter was created) by adding an estimated clock offset to the sender's
// timestamp. Reads interpolate between the two samples surrounding "now".
// The offset is tuned by a simple integral controller driven by the observed
// buffer margin and the number of underruns; it is not a Kalman filter.
package filter

import (
	"math"
	"slices"
	"time"

	"fieldsync/internal/wire"
)

const (
	// DefaultRetention is how long a sample stays in the history.
	DefaultRetention = time.Second
	// DefaultHealthPeriod is the length of one buffer health tracking cycle.
	DefaultHealthPeriod = 10 * time.Second
	// DefaultWarmUp delays the first offset adaptation after the first packet.
	DefaultWarmUp = time.Second
	// DefaultTargetBuffer is the safety margin kept ahead of playback.
	DefaultTargetBuffer = 10 * time.Millisecond

	// One underrun per stutterInterval is tolerated before the offset is adapted.
	stutterInterval = 5 * time.Second
)

// Config tunes the jitter buffer.
type Config struct {
	Retention    time.Duration
	HealthPeriod time.Duration
	WarmUp       time.Duration
	TargetBuffer time.Duration
}

// DefaultConfig returns the default tuning.
func DefaultConfig() Config {
	return Config{
		Retention:    DefaultRetention,
		HealthPeriod: DefaultHealthPeriod,
		WarmUp:       DefaultWarmUp,
		TargetBuffer: DefaultTargetBuffer,
	}
}

type entry struct {
	ts     int64
	status wire.Status
}

// healthSample accumulates buffer health over one tracking cycle.
type healthSample struct {
	minMargin int64
	stutters  int
	due       int64
}

func newHealthSample(due int64) *healthSample {
	return &healthSample{minMargin: math.MaxInt64, due: due}
}

func (h *healthSample) recorded() bool {
	return h.minMargin != math.MaxInt64
}

func (h *healthSample) observe(margin int64) {
	if margin < h.minMargin {
		h.minMargin = margin
	}
}

// Stats is a diagnostic snapshot of the filter.
type Stats struct {
	Samples  int
	Offset   time.Duration
	Stutters int
}

// WorldStateFilter is the jitter buffer for one field host. It is owned by a
// single consumer and is not safe for concurrent use.
type WorldStateFilter struct {
	cfg Config

	// newest first, non-increasing ts
	history []entry

	now    func() int64
	offset int64
	synced bool
	health *healthSample
}

// New creates a filter whose local timeline starts now.
func New(cfg Config) *WorldStateFilter {
	ref := time.Now()
	return &WorldStateFilter{
		cfg: cfg,
		now: func() int64 { return time.Since(ref).Microseconds() },
	}
}

// PushPacket inserts a snapshot into the history.
func (f *WorldStateFilter) PushPacket(status wire.Status) {
	now := f.now()

	if !f.synced {
		f.offset = now - status.Timestamp
		f.synced = true
		f.health = newHealthSample(now + f.cfg.WarmUp.Microseconds())
	}

	f.adaptOffset(now)

	if status.World != nil {
		world := cloneWorld(*status.World)
		remapWorld(&world)
		status.World = &world
	}

	ts := status.Timestamp + f.offset
	i := 0
	for i < len(f.history) && f.history[i].ts > ts {
		i++
	}
	f.history = slices.Insert(f.history, i, entry{ts: ts, status: status})

	f.purge(now)
}

func (f *WorldStateFilter) purge(now int64) {
	retention := f.cfg.Retention.Microseconds()
	keep := len(f.history)
	for keep > 0 && f.history[keep-1].ts+retention < now {
		keep--
	}
	clear(f.history[keep:])
	f.history = f.history[:keep]
}

// adaptOffset runs one health cycle once it is due: the offset is moved so
// that the worst observed margin would have been TargetBuffer, if the margin
// was too large or playback stuttered too often. The sample is reset every
// cycle.
func (f *WorldStateFilter) adaptOffset(now int64) {
	h := f.health
	if h == nil || now < h.due {
		return
	}

	if h.recorded() {
		target := f.cfg.TargetBuffer.Microseconds()
		maxStutters := int(f.cfg.HealthPeriod / stutterInterval)
		if h.minMargin > 2*target || h.stutters > maxStutters {
			f.offset += target - h.minMargin
		}
	}

	f.health = newHealthSample(now + f.cfg.HealthPeriod.Microseconds())
}

// CurrentWorldState returns the world state interpolated for the current
// local time.
func (f *WorldStateFilter) CurrentWorldState() wire.WorldState {
	now := f.now()

	var prev, next, latest *entry
	for i := range f.history {
		e := &f.history[i]
		if e.status.World == nil {
			continue
		}
		if latest == nil {
			latest = e
		}
		next = prev
		prev = e
		if e.ts <= now {
			break
		}
	}

	switch {
	case prev == nil:
		return wire.WorldState{}

	case prev.ts > now:
		// Playback is behind every buffered sample
		f.observeMargin(latest.ts - now)
		return wire.WorldState{}

	case next != nil:
		f.observeMargin(latest.ts - now)
		return interpolateWorld(now, prev.ts, prev.status.World, next.ts, next.status.World)

	default:
		// Underrun: playback is already past the newest sample
		if f.health != nil {
			f.health.stutters++
		}
		f.observeMargin(prev.ts - now)

		if older := f.olderWorld(prev); older != nil {
			return interpolateWorld(now, older.ts, older.status.World, prev.ts, prev.status.World)
		}
		return cloneWorld(*prev.status.World)
	}
}

// olderWorld returns the next world-bearing entry older than e.
func (f *WorldStateFilter) olderWorld(e *entry) *entry {
	found := false
	for i := range f.history {
		c := &f.history[i]
		if c == e {
			found = true
			continue
		}
		if found && c.status.World != nil {
			return c
		}
	}
	return nil
}

func (f *WorldStateFilter) observeMargin(margin int64) {
	if f.health != nil {
		f.health.observe(margin)
	}
}

// LatestWorldState returns the newest world state without interpolation.
func (f *WorldStateFilter) LatestWorldState() wire.WorldState {
	for _, e := range f.history {
		if e.status.World != nil {
			return cloneWorld(*e.status.World)
		}
	}
	return wire.WorldState{}
}

// CurrentFieldGeometry returns the newest field geometry, or DivisionA when
// none was received or the newest one is degenerate.
func (f *WorldStateFilter) CurrentFieldGeometry() Geometry {
	for _, e := range f.history {
		if e.status.Geometry == nil {
			continue
		}
		if g, ok := GeometryFromWire(*e.status.Geometry); ok {
			return g
		}
		break
	}
	return DivisionA
}

// CurrentGameState returns the newest non-empty game state.
func (f *WorldStateFilter) CurrentGameState() GameInfo {
	for _, e := range f.history {
		if e.status.Game == nil {
			continue
		}
		info := GameInfoFromWire(*e.status.Game)
		if info != (GameInfo{}) {
			return info
		}
	}
	return GameInfo{}
}

// Len returns the number of buffered samples.
func (f *WorldStateFilter) Len() int {
	return len(f.history)
}

// Stats returns a diagnostic snapshot.
func (f *WorldStateFilter) Stats() Stats {
	s := Stats{
		Samples: len(f.history),
		Offset:  time.Duration(f.offset) * time.Microsecond,
	}
	if f.health != nil {
		s.Stutters = f.health.stutters
	}
	return s
}
