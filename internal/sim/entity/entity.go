// Package entity provides identity and placement shared by every simulated object.
package entity

import (
	"strconv"

	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
)

// ID uniquely identifies an entity within one World.
type ID uint64

// None is the zero value; no valid entity has this ID.
const None ID = 0

// String returns "#<n>".
func (id ID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// DefaultExtent is the size of an entity's bounding box when none is given.
var DefaultExtent = geom.V(0.05, 0.05)

// Base holds the identity and placement of an entity. Concrete entity types
// embed it.
type Base struct {
	id       ID
	position geom.Vec2
	extent   geom.Vec2
}

// NewBase returns a Base with a fresh id from ids.
//
// Precondition: ids must be non-nil.
// Postcondition: the returned Base has a non-None id and DefaultExtent.
func NewBase(ids *Allocator, position geom.Vec2) Base {
	return Base{id: ids.Next(), position: position, extent: DefaultExtent}
}

// ID returns the entity id.
func (b *Base) ID() ID { return b.id }

// Position returns the current position.
func (b *Base) Position() geom.Vec2 { return b.position }

// SetPosition moves the entity.
func (b *Base) SetPosition(p geom.Vec2) { b.position = p }

// BoundingBox returns the entity's box centered on its position.
func (b *Base) BoundingBox() geom.BoundingBox {
	return geom.NewBoundingBox(b.position, b.extent)
}

// Dst2 returns the squared distance from the entity to p.
func (b *Base) Dst2(p geom.Vec2) float64 { return b.position.Dst2(p) }
