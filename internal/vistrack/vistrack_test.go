package vistrack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fieldsync/internal/wire"
)

func src(s uint32) *uint32 { return &s }

func shard(group, count uint32, sets ...wire.VisualizationSet) wire.VisualizationUpdate {
	return wire.VisualizationUpdate{
		Group: &wire.VisualizationGroup{Group: group, GroupCount: count},
		Sets:  sets,
	}
}

func set(source *uint32, ids ...uint32) wire.VisualizationSet {
	s := wire.VisualizationSet{Source: source}
	for _, id := range ids {
		s.Visualizations = append(s.Visualizations, wire.Visualization{ID: id})
	}
	return s
}

func TestUpdates_Empty(t *testing.T) {
	tr := New()
	b := tr.Updates()
	assert.True(t, b.Empty())
	assert.Equal(t, uint32(0), b.GroupCount)
}

func TestUpdates_CompleteEpochAnyOrder(t *testing.T) {
	for _, order := range [][]uint32{{0, 1, 2, 3}, {3, 1, 0, 2}, {2, 3, 1, 0}} {
		tr := New()
		for _, g := range order {
			tr.PushUpdate(shard(g, 4, set(src(7), g*10)))
		}
		require.Equal(t, 4, tr.Len())

		b := tr.Updates()
		assert.Equal(t, uint32(4), b.GroupCount)
		assert.Equal(t, []uint32{0, 1, 2, 3}, b.Groups)
		require.Len(t, b.Entries, 4)

		pairs := make(map[[2]uint32]int)
		for _, e := range b.Entries {
			require.NotNil(t, e.Source)
			pairs[[2]uint32{e.Group, *e.Source}]++
		}
		for g := uint32(0); g < 4; g++ {
			assert.Equal(t, 1, pairs[[2]uint32{g, 7}], "group %d", g)
		}

		assert.Equal(t, 0, tr.Len())
		assert.True(t, tr.Updates().Empty())
	}
}

func TestPushUpdate_TruncatesAfterFullEpoch(t *testing.T) {
	tr := New()
	tr.PushUpdate(shard(0, 2, set(src(1), 1)))
	tr.PushUpdate(shard(1, 2, set(src(1), 2)))
	tr.PushUpdate(shard(0, 2, set(src(1), 3)))

	// Newest group 0 and group 1 cover the epoch; the old group 0 is gone
	assert.Equal(t, 2, tr.Len())

	b := tr.Updates()
	ids := make([]uint32, 0, len(b.Entries))
	for _, v := range b.Visualizations() {
		ids = append(ids, v.ID)
	}
	assert.ElementsMatch(t, []uint32{3, 2}, ids)
}

func TestPushUpdate_GroupCountChangeDropsStaleEpoch(t *testing.T) {
	tr := New()
	tr.PushUpdate(shard(0, 3, set(src(1), 1)))
	tr.PushUpdate(shard(1, 3, set(src(1), 2)))
	tr.PushUpdate(shard(0, 2, set(src(1), 3)))

	assert.Equal(t, 1, tr.Len())
	b := tr.Updates()
	assert.Equal(t, uint32(2), b.GroupCount)
	assert.Equal(t, []uint32{0}, b.Groups)
}

func TestUpdates_LastWriterWinsPerSource(t *testing.T) {
	tr := New()
	tr.PushUpdate(shard(0, 3, set(src(1), 10), set(src(2), 20)))
	tr.PushUpdate(shard(0, 3, set(src(1), 11)))

	b := tr.Updates()
	require.Len(t, b.Entries, 2)
	assert.Equal(t, uint32(1), *b.Entries[0].Source)
	assert.Equal(t, uint32(11), b.Entries[0].Visualizations[0].ID)
	assert.Equal(t, uint32(2), *b.Entries[1].Source)
	assert.Equal(t, uint32(20), b.Entries[1].Visualizations[0].ID)
}

func TestUpdates_UnsourcedSetsAlwaysKept(t *testing.T) {
	tr := New()
	tr.PushUpdate(shard(0, 3, set(nil, 1)))
	tr.PushUpdate(shard(0, 3, set(nil, 2)))

	b := tr.Updates()
	assert.Len(t, b.Entries, 2)
}

func TestPushUpdate_UngroupedIsSingleGroup(t *testing.T) {
	tr := New()
	tr.PushUpdate(wire.VisualizationUpdate{Sets: []wire.VisualizationSet{set(nil, 1)}})
	tr.PushUpdate(wire.VisualizationUpdate{Sets: []wire.VisualizationSet{set(nil, 2)}})

	// Each ungrouped update is a full epoch by itself
	require.Equal(t, 1, tr.Len())
	b := tr.Updates()
	assert.Equal(t, uint32(1), b.GroupCount)
	assert.Equal(t, uint32(2), b.Entries[0].Visualizations[0].ID)
}

func TestPushUpdate_MirrorsY(t *testing.T) {
	tr := New()
	tr.PushUpdate(shard(0, 1, wire.VisualizationSet{
		Visualizations: []wire.Visualization{{
			ID: 1,
			Parts: []wire.VisPart{
				{Circle: &wire.Circle{X: 1, Y: 2, Radius: 3}},
				{Polygon: &wire.Polygon{Points: []wire.Point{{X: 1, Y: 1}, {X: 2, Y: -2}}}},
				{Path: &wire.Path{Points: []wire.Point{{X: 0, Y: 5}}}},
			},
		}},
	}))

	parts := tr.Updates().Entries[0].Visualizations[0].Parts
	assert.Equal(t, wire.Circle{X: 1, Y: -2, Radius: 3}, *parts[0].Circle)
	assert.Equal(t, []wire.Point{{X: 1, Y: -1}, {X: 2, Y: 2}}, parts[1].Polygon.Points)
	assert.Equal(t, []wire.Point{{X: 0, Y: -5}}, parts[2].Path.Points)
}

func TestPushUpdate_LeavesInputUntouched(t *testing.T) {
	circle := &wire.Circle{X: 1, Y: 2, Radius: 3}
	points := []wire.Point{{X: 1, Y: 1}, {X: 2, Y: -2}}
	update := shard(0, 1, wire.VisualizationSet{
		Visualizations: []wire.Visualization{{
			ID: 1,
			Parts: []wire.VisPart{
				{Circle: circle},
				{Polygon: &wire.Polygon{Points: points}},
			},
		}},
	})

	tr := New()
	tr.PushUpdate(update)

	assert.Equal(t, wire.Circle{X: 1, Y: 2, Radius: 3}, *circle)
	assert.Equal(t, []wire.Point{{X: 1, Y: 1}, {X: 2, Y: -2}}, points)

	// Pushing the same update again mirrors once, not twice.
	tr.PushUpdate(update)
	parts := tr.Updates().Entries[0].Visualizations[0].Parts
	assert.Equal(t, -2.0, parts[0].Circle.Y)
	assert.Equal(t, []wire.Point{{X: 1, Y: -1}, {X: 2, Y: 2}}, parts[1].Polygon.Points)
}
