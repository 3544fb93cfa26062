package observation

import "math"

type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3) Scale(k float64) Vec3 { return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k} }

func (v Vec3) Len() float64 { return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z) }

// Unit returns v normalized; the zero vector stays zero.
func (v Vec3) Unit() Vec3 {
	l := v.Len()
	if l == 0 {
		return Vec3{}
	}
	return v.Scale(1 / l)
}

func (v Vec3) DistSq(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return dx*dx + dy*dy + dz*dz
}

// Location is a point in a named world plus the direction the requester was facing.
type Location struct {
	World  string `json:"world"`
	Pos    Vec3   `json:"pos"`
	Facing Vec3   `json:"facing"`
}

// Block returns the integer block coordinates containing the location.
func (l Location) Block() [3]int {
	return [3]int{int(math.Floor(l.Pos.X)), int(math.Floor(l.Pos.Y)), int(math.Floor(l.Pos.Z))}
}

// Marker placement relative to the requester: above their head and a little in front.
const (
	DisplayRise  = 3.0
	DisplayReach = 2.0
)

func displayFor(src Location) Location {
	pos := src.Pos.Add(Vec3{Y: DisplayRise}).Add(src.Facing.Unit().Scale(DisplayReach))
	return Location{World: src.World, Pos: pos, Facing: src.Facing}
}
