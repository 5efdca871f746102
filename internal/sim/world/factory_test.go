package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/message"
)

func newTestFactory(t *testing.T, w *World, produced item.Type, p FactoryParams) *Factory {
	t.Helper()
	f := NewFactory(w.Allocator(), geom.V(0.1, 0.1), produced, p)
	require.NoError(t, w.Add(f))
	return f
}

func TestFactory_ProducesOnCycle(t *testing.T) {
	w, _, _ := newFleet(t, geom.V(0, 0))
	f := newTestFactory(t, w, item.Concrete, DefaultFactoryParams())
	require.NoError(t, w.Stock(f.ID(), item.Stone, 3))
	l := w.Inventory()

	require.NoError(t, f.Tick(1, w))
	assert.Zero(t, l.Amount(f.ID(), item.Concrete), "cycle not complete")

	require.NoError(t, f.Tick(1, w))
	assert.Equal(t, 1, l.Amount(f.ID(), item.Concrete))
	assert.Equal(t, 2, l.Amount(f.ID(), item.Stone))

	require.NoError(t, f.Tick(2, w))
	assert.Equal(t, 2, l.Amount(f.ID(), item.Concrete))
	assert.Equal(t, 1, l.Amount(f.ID(), item.Stone))
	assert.Zero(t, f.LostMissingInput())
	assert.Zero(t, f.LostOutputFull())
}

func TestFactory_CountsLostCycles(t *testing.T) {
	w, _, _ := newFleet(t, geom.V(0, 0))
	p := DefaultFactoryParams()
	p.MaxStorage = 1
	f := newTestFactory(t, w, item.Concrete, p)

	require.NoError(t, f.Tick(2, w))
	assert.Equal(t, 1, f.LostMissingInput())

	require.NoError(t, w.Stock(f.ID(), item.Stone, 2))
	require.NoError(t, w.Stock(f.ID(), item.Concrete, 1))
	require.NoError(t, f.Tick(2, w))
	assert.Equal(t, 1, f.LostOutputFull())
	assert.Equal(t, 2, w.Inventory().Amount(f.ID(), item.Stone), "a blocked cycle consumes nothing")
}

func TestFactory_RawSourceNeedsNoInput(t *testing.T) {
	w, c, _ := newFleet(t, geom.V(0, 0))
	p := DefaultFactoryParams()
	p.Input = item.Unknown
	f := newTestFactory(t, w, item.Stone, p)
	assert.True(t, f.IsRawSource())

	require.NoError(t, f.Tick(2, w))

	assert.Equal(t, 1, w.Inventory().Amount(f.ID(), item.Stone))
	assert.Empty(t, c.requests)
	require.Len(t, c.offers, 1)
	assert.Equal(t, item.NewStack(item.Stone, 1), c.offers[0].Payload)
	assert.Zero(t, f.AcceptedAmount(item.Stone, w.Inventory()))
}

func TestFactory_AnnouncementPriorities(t *testing.T) {
	cases := []struct {
		name        string
		input       int
		output      int
		wantOffer   []message.Priority
		wantRequest []item.Stack
		wantReqPrio []message.Priority
	}{
		{name: "starved", input: 0, output: 0, wantRequest: []item.Stack{item.NewStack(item.Stone, 10)}, wantReqPrio: []message.Priority{message.High}},
		{name: "running", input: 1, output: 3, wantOffer: []message.Priority{message.Low}, wantRequest: []item.Stack{item.NewStack(item.Stone, 9)}, wantReqPrio: []message.Priority{message.Low}},
		{name: "full", input: 10, output: 10, wantOffer: []message.Priority{message.High}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w, c, _ := newFleet(t, geom.V(0, 0))
			p := DefaultFactoryParams()
			p.ProductionSeconds = 100
			f := newTestFactory(t, w, item.Concrete, p)
			require.NoError(t, w.Stock(f.ID(), item.Stone, tc.input))
			require.NoError(t, w.Stock(f.ID(), item.Concrete, tc.output))

			require.NoError(t, f.Tick(1, w))

			var offers, reqPrio []message.Priority
			var reqs []item.Stack
			for _, m := range c.offers {
				assert.Equal(t, item.NewStack(item.Concrete, tc.output), m.Payload)
				offers = append(offers, m.Priority)
			}
			for _, m := range c.requests {
				reqs = append(reqs, m.Payload)
				reqPrio = append(reqPrio, m.Priority)
			}
			assert.Equal(t, tc.wantOffer, offers)
			assert.Equal(t, tc.wantRequest, reqs)
			assert.Equal(t, tc.wantReqPrio, reqPrio)
		})
	}
}

func TestFactory_AcceptedAmount(t *testing.T) {
	w, _, _ := newFleet(t, geom.V(0, 0))
	f := newTestFactory(t, w, item.Concrete, DefaultFactoryParams())
	require.NoError(t, w.Stock(f.ID(), item.Stone, 4))

	assert.Equal(t, 6, f.AcceptedAmount(item.Stone, w.Inventory()))
	assert.Zero(t, f.AcceptedAmount(item.Iron, w.Inventory()))
	assert.Zero(t, f.AcceptedAmount(item.Concrete, w.Inventory()))
}

func TestFactory_String(t *testing.T) {
	w, _, _ := newFleet(t, geom.V(0, 0))
	f := newTestFactory(t, w, item.Concrete, DefaultFactoryParams())
	assert.Equal(t, "Factory "+f.ID().String()+" [1 STONE -> 1 CONCRETE]", f.String())
}
