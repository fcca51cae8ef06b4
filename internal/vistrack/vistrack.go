// Package vistrack merges sharded overlay updates into complete epochs.
//
// A host splits its overlays over GroupCount groups. An epoch is complete
// once every group in [0, GroupCount) was seen at least once.
package vistrack

import (
	"slices"

	"fieldsync/internal/wire"
)

// Entry is the newest overlay set of one (group, source) pair.
type Entry struct {
	Group uint32
	// Source is nil for unsourced sets, which are never merged.
	Source         *uint32
	Visualizations []wire.Visualization
}

// Batch is everything received since the previous call to Updates.
type Batch struct {
	GroupCount uint32
	// Groups lists the groups that contributed entries, ascending.
	Groups  []uint32
	Entries []Entry
}

// Empty reports whether the batch carries nothing.
func (b Batch) Empty() bool {
	return len(b.Entries) == 0 && len(b.Groups) == 0
}

// Tracker keeps the updates of the current epoch, newest first. It is not
// safe for concurrent use.
type Tracker struct {
	history []wire.VisualizationUpdate
}

// New returns an empty tracker.
func New() *Tracker {
	return &Tracker{}
}

func groupOf(u *wire.VisualizationUpdate) wire.VisualizationGroup {
	if u.Group == nil {
		return wire.VisualizationGroup{Group: 0, GroupCount: 1}
	}
	return *u.Group
}

// PushUpdate stores a remapped copy of the update. An update without a
// group is group 0 of 1. Entries beyond the
// point where every group of the update's epoch was seen, and entries from a
// different epoch, are discarded.
func (t *Tracker) PushUpdate(update wire.VisualizationUpdate) {
	update = remap(update)

	count := groupOf(&update).GroupCount
	t.history = slices.Insert(t.history, 0, update)

	seen := make(map[uint32]struct{})
	for i := range t.history {
		g := groupOf(&t.history[i])
		if g.GroupCount != count {
			t.truncate(i)
			return
		}
		seen[g.Group] = struct{}{}
		if len(seen) >= int(count) {
			t.truncate(i + 1)
			return
		}
	}
}

func (t *Tracker) truncate(n int) {
	clear(t.history[n:])
	t.history = t.history[:n]
}

// Len returns the number of retained updates.
func (t *Tracker) Len() int {
	return len(t.history)
}

// Updates returns the newest set per (group, source) and clears the history,
// so every update is surfaced once.
func (t *Tracker) Updates() Batch {
	if len(t.history) == 0 {
		return Batch{}
	}

	batch := Batch{GroupCount: groupOf(&t.history[0]).GroupCount}

	sources := make(map[uint32]map[uint32]struct{})
	for i := range t.history {
		group := groupOf(&t.history[i]).Group
		seen, ok := sources[group]
		if !ok {
			seen = make(map[uint32]struct{})
			sources[group] = seen
			batch.Groups = append(batch.Groups, group)
		}

		for _, set := range t.history[i].Sets {
			if set.Source != nil {
				if _, dup := seen[*set.Source]; dup {
					continue
				}
				seen[*set.Source] = struct{}{}
			}
			batch.Entries = append(batch.Entries, Entry{
				Group:          group,
				Source:         set.Source,
				Visualizations: set.Visualizations,
			})
		}
	}
	slices.Sort(batch.Groups)

	t.truncate(0)
	return batch
}

// Visualizations flattens a batch into its overlays.
func (b Batch) Visualizations() []wire.Visualization {
	var out []wire.Visualization
	for _, e := range b.Entries {
		out = append(out, e.Visualizations...)
	}
	return out
}

// remap returns a copy of u with y mirrored to match the world state frame.
// The caller's update is left untouched.
func remap(u wire.VisualizationUpdate) wire.VisualizationUpdate {
	out := wire.VisualizationUpdate{Group: u.Group}
	if u.Sets == nil {
		return out
	}
	out.Sets = make([]wire.VisualizationSet, len(u.Sets))
	for si, set := range u.Sets {
		out.Sets[si].Source = set.Source
		if set.Visualizations == nil {
			continue
		}
		vis := make([]wire.Visualization, len(set.Visualizations))
		for vi, v := range set.Visualizations {
			vis[vi].ID = v.ID
			if v.Parts == nil {
				continue
			}
			vis[vi].Parts = make([]wire.VisPart, len(v.Parts))
			for pi, part := range v.Parts {
				vis[vi].Parts[pi] = remapPart(part)
			}
		}
		out.Sets[si].Visualizations = vis
	}
	return out
}

func remapPart(part wire.VisPart) wire.VisPart {
	out := wire.VisPart{Color: part.Color}
	switch {
	case part.Circle != nil:
		c := *part.Circle
		c.Y = -c.Y
		out.Circle = &c
	case part.Polygon != nil:
		out.Polygon = &wire.Polygon{Points: mirror(part.Polygon.Points)}
	case part.Path != nil:
		out.Path = &wire.Path{Points: mirror(part.Path.Points)}
	}
	return out
}

func mirror(points []wire.Point) []wire.Point {
	if points == nil {
		return nil
	}
	out := make([]wire.Point, len(points))
	for i, p := range points {
		out[i] = wire.Point{X: p.X, Y: -p.Y}
	}
	return out
}
