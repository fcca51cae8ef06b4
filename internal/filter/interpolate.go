package filter

import (
	"math"

	"fieldsync/internal/wire"
)

// interpolateWorld blends prev and next at the position of now between their
// timestamps. A ratio above 1 extrapolates past next.
func interpolateWorld(now, prevTime int64, prev *wire.WorldState, nextTime int64, next *wire.WorldState) wire.WorldState {
	ratio := 1.0
	if nextTime != prevTime {
		ratio = float64(now-prevTime) / float64(nextTime-prevTime)
	}

	out := wire.WorldState{
		Yellow: interpolateRobots(prev.Yellow, next.Yellow, ratio),
		Blue:   interpolateRobots(prev.Blue, next.Blue, ratio),
	}

	switch {
	case prev.Ball != nil && next.Ball != nil:
		b := wire.Ball{
			X: lerp(prev.Ball.X, next.Ball.X, ratio),
			Y: lerp(prev.Ball.Y, next.Ball.Y, ratio),
		}
		if prev.Ball.Z != nil && next.Ball.Z != nil {
			z := lerp(*prev.Ball.Z, *next.Ball.Z, ratio)
			b.Z = &z
		}
		out.Ball = &b
	case next.Ball != nil:
		b := *next.Ball
		out.Ball = &b
	}

	return out
}

// interpolateRobots matches robots by id. Robots missing from next are dropped.
func interpolateRobots(prev, next []wire.Robot, ratio float64) []wire.Robot {
	var out []wire.Robot
	for _, pr := range prev {
		for _, nr := range next {
			if nr.ID != pr.ID {
				continue
			}
			out = append(out, wire.Robot{
				ID:  pr.ID,
				X:   lerp(pr.X, nr.X, ratio),
				Y:   lerp(pr.Y, nr.Y, ratio),
				Phi: pr.Phi + ratio*wrapAngle(nr.Phi-pr.Phi),
			})
			break
		}
	}
	return out
}

func lerp(a, b, ratio float64) float64 {
	return a + ratio*(b-a)
}

// wrapAngle maps an angle difference onto [-π, π).
func wrapAngle(d float64) float64 {
	m := math.Mod(d+math.Pi, 2*math.Pi)
	if m < 0 {
		m += 2 * math.Pi
	}
	return m - math.Pi
}

func cloneWorld(w wire.WorldState) wire.WorldState {
	out := wire.WorldState{
		Yellow: append([]wire.Robot(nil), w.Yellow...),
		Blue:   append([]wire.Robot(nil), w.Blue...),
	}
	if w.Ball != nil {
		b := *w.Ball
		if b.Z != nil {
			z := *b.Z
			b.Z = &z
		}
		out.Ball = &b
	}
	return out
}

// remapWorld converts from the vision frame (z up, +y left) to the
// consumer frame: y is mirrored and headings are rotated by -π/2.
func remapWorld(w *wire.WorldState) {
	if w.Ball != nil {
		w.Ball.Y = -w.Ball.Y
	}
	for i := range w.Yellow {
		w.Yellow[i].Y = -w.Yellow[i].Y
		w.Yellow[i].Phi -= math.Pi / 2
	}
	for i := range w.Blue {
		w.Blue[i].Y = -w.Blue[i].Y
		w.Blue[i].Phi -= math.Pi / 2
	}
}
