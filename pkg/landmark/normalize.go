package landmark

import "math"

// Normalize translates points so the wrist sits at the origin and scales them
// by the wrist to middle-finger-base distance. The scale falls back to 1 when
// that distance is zero, non-finite, or the anchor point is missing.
// Returns nil for empty input.
func Normalize(points []Point) []Point {
	if len(points) == 0 {
		return nil
	}

	origin := points[Wrist]
	scale := 1.0
	if len(points) > MiddleMCP {
		d := points[MiddleMCP].Distance(origin)
		if d > 0 && !math.IsInf(d, 0) && !math.IsNaN(d) {
			scale = d
		}
	}

	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = p.Sub(origin).Scale(scale)
	}
	return out
}

// NormalizeFrame normalizes the frame's points.
func NormalizeFrame(f Frame) []Point {
	return Normalize(f.Points)
}

// Mirror negates the X coordinate of every point.
func Mirror(points []Point) []Point {
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = Point{X: -p.X, Y: p.Y, Z: p.Z}
	}
	return out
}
