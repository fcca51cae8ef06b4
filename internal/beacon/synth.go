package beacon

import (
	"math"
	"slices"

	"fieldsync/internal/wire"
)

const (
	synthRobots     = 3
	synthVisGroups  = 2
	synthSource     = 1
	visBallTrail    = 1
	visRobotMarkers = 2
)

func ptr[T any](v T) *T { return &v }

// synthStatus generates a ball circling the center and robots turning in
// place. Geometry and team names are attached when withMeta is set.
func synthStatus(ts int64, withMeta bool) wire.Status {
	t := float64(ts) / 1e6

	world := wire.WorldState{
		Ball: &wire.Ball{X: 2 * math.Cos(t), Y: 2 * math.Sin(t), Z: ptr(0.0)},
	}
	for i := 0; i < synthRobots; i++ {
		phi := math.Mod(t+float64(i), 2*math.Pi) - math.Pi
		world.Yellow = append(world.Yellow, wire.Robot{ID: uint32(i), X: -1 - float64(i), Y: float64(i) - 1, Phi: phi})
		world.Blue = append(world.Blue, wire.Robot{ID: uint32(i), X: 1 + float64(i), Y: float64(i) - 1, Phi: -phi})
	}

	status := wire.Status{Timestamp: ts, World: &world}
	if withMeta {
		status.Geometry = &wire.FieldGeometry{
			FieldSizeX:    9,
			FieldSizeY:    6,
			BoundaryWidth: ptr(0.3),
			DefenseSizeX:  ptr(1.0),
			DefenseSizeY:  ptr(2.0),
			GoalWidth:     ptr(1.0),
		}
		status.Game = &wire.GameState{
			YellowTeamName: ptr("Yellow"),
			BlueTeamName:   ptr("Blue"),
		}
	}
	return status
}

// synthVisualization alternates between the overlay groups. ids selects the
// overlays to include; empty selects all.
func synthVisualization(frame int, ids []uint32) wire.VisualizationUpdate {
	group := uint32(frame % synthVisGroups)
	id := visBallTrail + group

	update := wire.VisualizationUpdate{
		Group: &wire.VisualizationGroup{Group: group, GroupCount: synthVisGroups},
	}
	if len(ids) > 0 && !slices.Contains(ids, id) {
		return update
	}

	r := 0.1 + 0.05*float64(frame%20)
	update.Sets = []wire.VisualizationSet{{
		Source: ptr(uint32(synthSource)),
		Visualizations: []wire.Visualization{{
			ID: id,
			Parts: []wire.VisPart{
				{Color: 0xff8000ff, Circle: &wire.Circle{Radius: r}},
				{Color: 0x00ff00ff, Path: &wire.Path{Points: []wire.Point{{X: -1, Y: -1}, {X: 1, Y: 1}}}},
			},
		}},
	}}
	return update
}

func synthMappings() *wire.VisMappings {
	return &wire.VisMappings{
		Sources:        map[uint32]string{synthSource: "synthetic"},
		Visualizations: map[uint32]string{visBallTrail: "ball trail", visRobotMarkers: "robot markers"},
	}
}
