// Package geom provides the 2D vector and bounding box math used for all
// spatial reasoning in the simulation.
package geom

import (
	"fmt"
	"math"
)

// Vec2 is an immutable 2D vector. All operations return a new value.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// V is shorthand for Vec2{X: x, Y: y}.
func V(x, y float64) Vec2 {
	return Vec2{X: x, Y: y}
}

// Add returns v + o.
func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

// Sub returns v - o.
func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

// Scale returns v * s.
func (v Vec2) Scale(s float64) Vec2 { return Vec2{X: v.X * s, Y: v.Y * s} }

// Len2 returns the squared length of v.
func (v Vec2) Len2() float64 { return v.X*v.X + v.Y*v.Y }

// Len returns the length of v.
func (v Vec2) Len() float64 { return math.Sqrt(v.Len2()) }

// Dst2 returns the squared Euclidean distance between v and o.
//
// Postcondition: Dst2(o) == Dst2 of o to v, and is >= 0.
func (v Vec2) Dst2(o Vec2) float64 { return v.Sub(o).Len2() }

// Dst returns the Euclidean distance between v and o.
func (v Vec2) Dst(o Vec2) float64 { return math.Sqrt(v.Dst2(o)) }

// Nor returns the unit vector in the direction of v.
//
// Postcondition: Returns the zero vector when v has zero length.
func (v Vec2) Nor() Vec2 {
	l := v.Len()
	if l == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / l, Y: v.Y / l}
}

// MoveTowards returns the point reached by travelling at most maxDist from v
// towards target along a straight line.
//
// Precondition: maxDist >= 0.
// Postcondition: the result never overshoots target.
func (v Vec2) MoveTowards(target Vec2, maxDist float64) Vec2 {
	delta := target.Sub(v)
	if delta.Len2() <= maxDist*maxDist {
		return target
	}
	return v.Add(delta.Nor().Scale(maxDist))
}

// String returns "(x, y)" with three decimals.
func (v Vec2) String() string {
	return fmt.Sprintf("(%.3f, %.3f)", v.X, v.Y)
}
