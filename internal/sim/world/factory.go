package world

import (
	"fmt"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/inventory"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/message"
)

// FactoryParams are the per-instance tunables of a factory.
type FactoryParams struct {
	// Input is the consumed type. item.Unknown makes the factory a raw source
	// that produces without input.
	Input item.Type
	// InputConsumed is the number of input units one cycle consumes.
	InputConsumed int
	// InputMax is the input stock the factory requests up to.
	InputMax int
	// ItemsPerCycle is the output of one cycle.
	ItemsPerCycle int
	// MaxStorage bounds the stored output.
	MaxStorage int
	// ProductionSeconds is the cycle length.
	ProductionSeconds float64
}

// DefaultFactoryParams matches the defaults in configs/dev.yaml.
func DefaultFactoryParams() FactoryParams {
	return FactoryParams{
		Input:             item.Stone,
		InputConsumed:     1,
		InputMax:          10,
		ItemsPerCycle:     1,
		MaxStorage:        10,
		ProductionSeconds: 2,
	}
}

// Factory converts input into Produced on a fixed cycle and announces its
// output and its input shortfall every tick.
type Factory struct {
	entity.Base
	FactoryParams

	// Produced is the output type.
	Produced item.Type

	elapsed          float64
	lostOutputFull   int
	lostMissingInput int
}

// NewFactory returns a factory producing produced at pos.
//
// Precondition: ids non-nil; produced is concrete; p.ProductionSeconds > 0.
func NewFactory(ids *entity.Allocator, pos geom.Vec2, produced item.Type, p FactoryParams) *Factory {
	return &Factory{Base: entity.NewBase(ids, pos), FactoryParams: p, Produced: produced}
}

// Kind implements Entity.
func (f *Factory) Kind() Kind { return KindFactory }

// IsRawSource reports whether the factory produces without input.
func (f *Factory) IsRawSource() bool { return f.Input == item.Unknown }

// LostOutputFull counts cycles skipped because output storage was full.
func (f *Factory) LostOutputFull() int { return f.lostOutputFull }

// LostMissingInput counts cycles skipped for lack of input.
func (f *Factory) LostMissingInput() int { return f.lostMissingInput }

// AcceptedAmount implements inventory.Receiver: only input is accepted, up
// to InputMax.
func (f *Factory) AcceptedAmount(t item.Type, l inventory.Reader) int {
	if f.IsRawSource() || !f.Input.Matches(t) {
		return 0
	}
	return max(f.InputMax-l.Amount(f.ID(), f.Input), 0)
}

// Tick implements Ticker: it advances the production timer, runs at most one
// cycle, then announces stored output and missing input.
func (f *Factory) Tick(dt float64, w *World) error {
	l := w.Inventory()
	f.elapsed += dt
	if f.elapsed >= f.ProductionSeconds {
		f.elapsed -= f.ProductionSeconds
		if err := f.produce(l); err != nil {
			return err
		}
	}

	if stored := l.Amount(f.ID(), f.Produced); stored > 0 {
		prio := message.Low
		if stored >= f.MaxStorage {
			prio = message.High
		}
		if err := w.announce(f.ID(), message.Offer, item.NewStack(f.Produced, stored), prio); err != nil {
			return err
		}
	}

	if f.IsRawSource() {
		return nil
	}
	input := l.Amount(f.ID(), f.Input)
	if needed := f.InputMax - input; needed > 0 {
		prio := message.Low
		if input < f.InputConsumed {
			prio = message.High
		}
		if err := w.announce(f.ID(), message.Request, item.NewStack(f.Input, needed), prio); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) produce(l *inventory.Ledger) error {
	if !f.IsRawSource() && l.Amount(f.ID(), f.Input) < f.InputConsumed {
		f.lostMissingInput++
		return nil
	}
	if l.Amount(f.ID(), f.Produced)+f.ItemsPerCycle > f.MaxStorage {
		f.lostOutputFull++
		return nil
	}
	if !f.IsRawSource() {
		if err := l.Consume(f.ID(), f.Input, f.InputConsumed); err != nil {
			return fmt.Errorf("factory %s consuming input: %w", f.ID(), err)
		}
	}
	if err := l.Create(f.ID(), f.Produced, f.ItemsPerCycle); err != nil {
		return fmt.Errorf("factory %s producing output: %w", f.ID(), err)
	}
	return nil
}

func (f *Factory) String() string {
	if f.IsRawSource() {
		return fmt.Sprintf("Factory %s [-> %d %s]", f.ID(), f.ItemsPerCycle, f.Produced)
	}
	return fmt.Sprintf("Factory %s [%d %s -> %d %s]", f.ID(), f.InputConsumed, f.Input, f.ItemsPerCycle, f.Produced)
}
