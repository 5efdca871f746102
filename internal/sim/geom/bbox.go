package geom

import "fmt"

// BoundingBox is an axis-aligned box described by its center and full extent.
type BoundingBox struct {
	Center Vec2
	Extent Vec2
}

// NewBoundingBox returns the box centered on center with the given extent.
//
// Precondition: extent components are >= 0.
func NewBoundingBox(center, extent Vec2) BoundingBox {
	return BoundingBox{Center: center, Extent: extent}
}

// Min returns the lower-left corner.
func (b BoundingBox) Min() Vec2 {
	return Vec2{X: b.Center.X - b.Extent.X/2, Y: b.Center.Y - b.Extent.Y/2}
}

// Max returns the upper-right corner.
func (b BoundingBox) Max() Vec2 {
	return Vec2{X: b.Center.X + b.Extent.X/2, Y: b.Center.Y + b.Extent.Y/2}
}

// Contains reports whether p lies inside b. Points on the border are inside.
func (b BoundingBox) Contains(p Vec2) bool {
	lo, hi := b.Min(), b.Max()
	return p.X >= lo.X && p.X <= hi.X && p.Y >= lo.Y && p.Y <= hi.Y
}

func (b BoundingBox) String() string {
	lo, hi := b.Min(), b.Max()
	return fmt.Sprintf("AABB[%s - %s]", lo, hi)
}
