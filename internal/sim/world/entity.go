package world

import (
	"fmt"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
)

// Kind is the closed set of entity kinds the World knows how to route.
type Kind uint8

const (
	KindController Kind = iota + 1
	KindRobot
	KindDepot
	KindFactory
)

func (k Kind) String() string {
	switch k {
	case KindController:
		return "controller"
	case KindRobot:
		return "robot"
	case KindDepot:
		return "depot"
	case KindFactory:
		return "factory"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Entity is anything registered in a World.
type Entity interface {
	ID() entity.ID
	Kind() Kind
	Position() geom.Vec2
	BoundingBox() geom.BoundingBox
}

// Ticker is an entity that does work once per World tick.
type Ticker interface {
	// Tick advances the entity by dt seconds.
	//
	// Precondition: dt >= 0; w is the World the entity is registered in.
	Tick(dt float64, w *World) error
}
