// Package scene holds the per-tick data model shared by the vision analyzers
// and the bot policy: frames, screen geometry and the readings produced from a frame.
//
// Everything here is a value type or is treated as immutable once built, so a
// reading can be handed from a detector goroutine to the control loop without locking.
package scene

import (
	"image"
	"math"
)

// Point is a coordinate in screen space.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Distance returns the Euclidean distance to another point.
func (p Point) Distance(other Point) float64 {
	dx := float64(p.X - other.X)
	dy := float64(p.Y - other.Y)
	return math.Sqrt(dx*dx + dy*dy)
}

// IsZero reports whether p is the origin, which is used as "unknown".
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// Region is a rectangle relative to a frame.
type Region struct {
	X int `json:"x" mapstructure:"x"` // Top-left X coordinate
	Y int `json:"y" mapstructure:"y"` // Top-left Y coordinate
	W int `json:"w" mapstructure:"w"` // Width
	H int `json:"h" mapstructure:"h"` // Height
}

// Rgn creates a new Region.
func Rgn(x, y, w, h int) Region {
	return Region{X: x, Y: y, W: w, H: h}
}

// RegionOf converts an image rectangle into a Region.
func RegionOf(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Rect returns the region as an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Center returns the center point of the region.
func (r Region) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Area returns W*H.
func (r Region) Area() int {
	return r.W * r.H
}

// Empty reports whether the region covers no pixels.
func (r Region) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Contains checks if a point is within the region (max edges exclusive).
func (r Region) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W &&
		p.Y >= r.Y && p.Y < r.Y+r.H
}

// Offset moves the region by the given origin.
func (r Region) Offset(origin Point) Region {
	return Region{X: r.X + origin.X, Y: r.Y + origin.Y, W: r.W, H: r.H}
}

// Inset shrinks the region by n pixels on every side.
func (r Region) Inset(n int) Region {
	out := Region{X: r.X + n, Y: r.Y + n, W: r.W - 2*n, H: r.H - 2*n}
	if out.W < 0 {
		out.W = 0
	}
	if out.H < 0 {
		out.H = 0
	}
	return out
}

// Clip returns the intersection of r and bounds.
func (r Region) Clip(bounds Region) Region {
	return RegionOf(r.Rect().Intersect(bounds.Rect()))
}

// BottomStrip returns the bottom part of the region covering fraction of its height.
func (r Region) BottomStrip(fraction float64) Region {
	h := int(math.Round(float64(r.H) * fraction))
	if h < 1 {
		h = 1
	}
	if h > r.H {
		h = r.H
	}
	return Region{X: r.X, Y: r.Y + r.H - h, W: r.W, H: h}
}
