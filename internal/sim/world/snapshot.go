package world

import (
	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

// EntitySnapshot is a read-only view of one entity.
type EntitySnapshot struct {
	ID       entity.ID    `json:"id"`
	Kind     string       `json:"kind"`
	Position geom.Vec2    `json:"position"`
	Items    []item.Stack `json:"items"`

	// Robot only.
	State      string    `json:"state,omitempty"`
	Controller entity.ID `json:"controller,omitempty"`

	// Factory only.
	LostOutputFull   int `json:"lost_output_full,omitempty"`
	LostMissingInput int `json:"lost_missing_input,omitempty"`
}

// Snapshot is a read-only structured view of a World after a tick.
type Snapshot struct {
	Tick        uint64             `json:"tick"`
	Entities    []EntitySnapshot   `json:"entities"`
	Controllers []ControllerStatus `json:"controllers"`
}

// Snapshot captures the current state of every entity and controller.
//
// Postcondition: the result shares no memory with the World.
func (w *World) Snapshot() Snapshot {
	s := Snapshot{
		Tick:        w.tick,
		Entities:    make([]EntitySnapshot, 0, len(w.order)),
		Controllers: make([]ControllerStatus, 0, len(w.controllers)),
	}
	for _, e := range w.order {
		es := EntitySnapshot{
			ID:       e.ID(),
			Kind:     e.Kind().String(),
			Position: e.Position(),
			Items:    w.inventory.Amounts(e.ID()),
		}
		switch v := e.(type) {
		case *Robot:
			es.State = v.State().String()
			es.Controller = v.Controller()
		case *Factory:
			es.LostOutputFull = v.LostOutputFull()
			es.LostMissingInput = v.LostMissingInput()
		}
		s.Entities = append(s.Entities, es)
	}
	for _, c := range w.controllers {
		s.Controllers = append(s.Controllers, c.Status())
	}
	return s
}
