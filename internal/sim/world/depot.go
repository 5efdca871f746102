package world

import (
	"fmt"
	"strings"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/inventory"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/message"
)

// offerMediumFill is the fill ratio at which a depot's offers escalate to Medium.
const offerMediumFill = 0.75

// DepotParams are the per-instance tunables of a depot.
type DepotParams struct {
	// Capacity is the total number of units the depot stores across all types.
	Capacity int
	// MinAmount is the per-type stock below which the depot requests more.
	MinAmount int
}

// DefaultDepotParams matches the defaults in configs/dev.yaml.
func DefaultDepotParams() DepotParams {
	return DepotParams{Capacity: 200, MinAmount: 0}
}

// Depot stores the item types it accepts, requests stock for types that run
// low, and offers everything it holds.
type Depot struct {
	entity.Base
	DepotParams

	// Accepts lists the accepted types. item.Any accepts everything.
	Accepts []item.Type
}

// NewDepot returns an empty depot at pos.
//
// Precondition: ids non-nil; p.Capacity > 0; p.MinAmount >= 0.
func NewDepot(ids *entity.Allocator, pos geom.Vec2, p DepotParams, accepts ...item.Type) *Depot {
	a := make([]item.Type, len(accepts))
	copy(a, accepts)
	return &Depot{Base: entity.NewBase(ids, pos), DepotParams: p, Accepts: a}
}

// Kind implements Entity.
func (d *Depot) Kind() Kind { return KindDepot }

// AcceptsType reports whether any accepted type matches t.
func (d *Depot) AcceptsType(t item.Type) bool {
	for _, a := range d.Accepts {
		if a.Matches(t) {
			return true
		}
	}
	return false
}

// FreeCapacity returns the number of units the depot can still store.
func (d *Depot) FreeCapacity(l inventory.Reader) int {
	return max(d.Capacity-l.StoredAmount(d.ID()), 0)
}

// AcceptedAmount implements inventory.Receiver.
func (d *Depot) AcceptedAmount(t item.Type, l inventory.Reader) int {
	if !d.AcceptsType(t) {
		return 0
	}
	return d.FreeCapacity(l)
}

// IsFull reports whether no capacity is left.
func (d *Depot) IsFull(l inventory.Reader) bool { return d.FreeCapacity(l) == 0 }

// Tick implements Ticker: it announces a request for every accepted type
// below the minimum stock and an offer for every stored type.
func (d *Depot) Tick(_ float64, w *World) error {
	l := w.Inventory()
	remaining := d.FreeCapacity(l)

	if d.MinAmount > 0 {
		for _, t := range d.Accepts {
			if remaining <= 0 {
				break
			}
			if !t.IsConcrete() {
				continue
			}
			stock := l.Amount(d.ID(), t)
			if stock >= d.MinAmount {
				continue
			}
			toAsk := min(d.MinAmount-stock, remaining)
			prio := message.Low
			if stock == 0 {
				prio = message.High
			}
			if err := w.announce(d.ID(), message.Request, item.NewStack(t, toAsk), prio); err != nil {
				return err
			}
			remaining -= toAsk
		}
	}

	prio := d.offerPriority(l)
	for _, s := range l.Amounts(d.ID()) {
		if err := w.announce(d.ID(), message.Offer, s, prio); err != nil {
			return err
		}
	}
	return nil
}

func (d *Depot) offerPriority(l inventory.Reader) message.Priority {
	stored := l.StoredAmount(d.ID())
	switch {
	case stored >= d.Capacity:
		return message.High
	case float64(stored) >= offerMediumFill*float64(d.Capacity):
		return message.Medium
	default:
		return message.Low
	}
}

func (d *Depot) String() string {
	names := make([]string, len(d.Accepts))
	for i, t := range d.Accepts {
		names[i] = t.String()
	}
	return fmt.Sprintf("Depot %s {%s}", d.ID(), strings.Join(names, ","))
}
