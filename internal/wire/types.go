// Package wire defines the telemetry, overlay and control payloads exchanged
// with a field host and their msgpack envelope.
package wire

// MaxDatagramSize is the largest UDP payload accepted on data channels.
const MaxDatagramSize = 65535

// Status is one timestamped telemetry snapshot. Timestamp is the sender's
// clock in microseconds.
type Status struct {
	Timestamp int64          `msgpack:"ts"`
	World     *WorldState    `msgpack:"world,omitempty"`
	Geometry  *FieldGeometry `msgpack:"geom,omitempty"`
	Game      *GameState     `msgpack:"game,omitempty"`
}

// WorldState holds the ball and robot poses of one frame.
type WorldState struct {
	Ball   *Ball   `msgpack:"ball,omitempty"`
	Yellow []Robot `msgpack:"yellow,omitempty"`
	Blue   []Robot `msgpack:"blue,omitempty"`
}

// Ball is a ball position. Z is only set when the height is known.
type Ball struct {
	X float64  `msgpack:"x"`
	Y float64  `msgpack:"y"`
	Z *float64 `msgpack:"z,omitempty"`
}

// Robot is a robot pose. Phi is the heading in radians.
type Robot struct {
	ID  uint32  `msgpack:"id"`
	X   float64 `msgpack:"x"`
	Y   float64 `msgpack:"y"`
	Phi float64 `msgpack:"phi"`
}

// FieldGeometry describes the playing field in meters. Optional sizes fall
// back to fractions of the field size.
type FieldGeometry struct {
	FieldSizeX    float64  `msgpack:"size_x"`
	FieldSizeY    float64  `msgpack:"size_y"`
	BoundaryWidth *float64 `msgpack:"boundary,omitempty"`
	DefenseSizeX  *float64 `msgpack:"defense_x,omitempty"`
	DefenseSizeY  *float64 `msgpack:"defense_y,omitempty"`
	GoalWidth     *float64 `msgpack:"goal_width,omitempty"`
}

// GameState carries the team names.
type GameState struct {
	YellowTeamName *string `msgpack:"yellow,omitempty"`
	BlueTeamName   *string `msgpack:"blue,omitempty"`
}

// VisualizationGroup places an update in a sharded epoch: a complete picture
// needs one update from every group in [0, GroupCount).
type VisualizationGroup struct {
	Group      uint32 `msgpack:"group"`
	GroupCount uint32 `msgpack:"count"`
}

// VisualizationUpdate is one shard of overlay data.
type VisualizationUpdate struct {
	Group *VisualizationGroup `msgpack:"group,omitempty"`
	Sets  []VisualizationSet  `msgpack:"sets,omitempty"`
}

// VisualizationSet is the overlay output of a single source.
type VisualizationSet struct {
	Source         *uint32         `msgpack:"source,omitempty"`
	Visualizations []Visualization `msgpack:"vis,omitempty"`
}

// Visualization is one overlay drawn from several parts.
type Visualization struct {
	ID    uint32    `msgpack:"id"`
	Parts []VisPart `msgpack:"parts,omitempty"`
}

// VisPart carries exactly one geometry.
type VisPart struct {
	Color   uint32   `msgpack:"color,omitempty"`
	Circle  *Circle  `msgpack:"circle,omitempty"`
	Polygon *Polygon `msgpack:"polygon,omitempty"`
	Path    *Path    `msgpack:"path,omitempty"`
}

// Circle is a circle overlay.
type Circle struct {
	X      float64 `msgpack:"x"`
	Y      float64 `msgpack:"y"`
	Radius float64 `msgpack:"r"`
}

// Point is a 2D point.
type Point struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
}

// Polygon is a closed polygon overlay.
type Polygon struct {
	Points []Point `msgpack:"points"`
}

// Path is an open polyline overlay.
type Path struct {
	Points []Point `msgpack:"points"`
}

// VisMappings names the overlay sources and visualizations a host offers.
type VisMappings struct {
	Sources        map[uint32]string `msgpack:"sources,omitempty"`
	Visualizations map[uint32]string `msgpack:"names,omitempty"`
}

// DataRequest selects the visualizations a multicast host should publish.
type DataRequest struct {
	VisualizationIDs []uint32 `msgpack:"vis_ids"`
}
