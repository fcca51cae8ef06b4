package filter

import "fieldsync/internal/wire"

// Vec2 is a 2D size or position in meters.
type Vec2 struct {
	X, Y float64
}

// Geometry is the resolved field geometry.
type Geometry struct {
	PlayArea      Vec2
	BoundaryWidth float64
	DefenseSize   Vec2
	GoalWidth     float64
}

var (
	DivisionA = Geometry{
		PlayArea:      Vec2{12, 9},
		BoundaryWidth: 0.3,
		DefenseSize:   Vec2{1.8, 3.6},
		GoalWidth:     1.8,
	}
	DivisionB = Geometry{
		PlayArea:      Vec2{9, 6},
		BoundaryWidth: 0.3,
		DefenseSize:   Vec2{1, 2},
		GoalWidth:     1,
	}
)

// GeometryFromWire resolves optional sizes and reports false for a
// degenerate geometry.
func GeometryFromWire(g wire.FieldGeometry) (Geometry, bool) {
	out := Geometry{
		PlayArea:    Vec2{g.FieldSizeX, g.FieldSizeY},
		DefenseSize: Vec2{g.FieldSizeX / 6, g.FieldSizeY / 3},
		GoalWidth:   g.FieldSizeY / 5,
	}
	if g.BoundaryWidth != nil {
		out.BoundaryWidth = *g.BoundaryWidth
	}
	if g.DefenseSizeX != nil {
		out.DefenseSize.X = *g.DefenseSizeX
	}
	if g.DefenseSizeY != nil {
		out.DefenseSize.Y = *g.DefenseSizeY
	}
	if g.GoalWidth != nil {
		out.GoalWidth = *g.GoalWidth
	}

	if out.PlayArea == (Vec2{}) || out.DefenseSize == (Vec2{}) || out.GoalWidth == 0 {
		return Geometry{}, false
	}
	return out, true
}

// GameInfo is the resolved game state.
type GameInfo struct {
	YellowTeam string
	BlueTeam   string
}

// GameInfoFromWire resolves optional team names.
func GameInfoFromWire(g wire.GameState) GameInfo {
	var info GameInfo
	if g.YellowTeamName != nil {
		info.YellowTeam = *g.YellowTeamName
	}
	if g.BlueTeamName != nil {
		info.BlueTeam = *g.BlueTeamName
	}
	return info
}
