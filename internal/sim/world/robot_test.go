package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/rng"
)

// newFleet returns a World with one controller at the origin and one robot
// owned by it.
func newFleet(t *testing.T, robotPos geom.Vec2) (*World, *Controller, *Robot) {
	t.Helper()
	w := New(zaptest.NewLogger(t), Options{VerifyInvariants: true})
	c := NewController(w.Allocator(), geom.V(0, 0), DefaultControllerParams(), rng.NewSeededSource(1), w.Logger())
	require.NoError(t, w.Add(c))
	r := NewRobot(w.Allocator(), robotPos, DefaultRobotParams())
	require.NoError(t, w.Add(r))
	return w, c, r
}

func newTestDepot(t *testing.T, w *World, pos geom.Vec2, p DepotParams, accepts ...item.Type) *Depot {
	t.Helper()
	d := NewDepot(w.Allocator(), pos, p, accepts...)
	require.NoError(t, w.Add(d))
	return d
}

func TestRobot_AcceptedAmount(t *testing.T) {
	w, _, r := newFleet(t, geom.V(0, 0))
	l := w.Inventory()
	assert.Equal(t, 5, r.AcceptedAmount(item.Iron, l))

	require.NoError(t, w.Stock(r.ID(), item.Stone, 2))
	assert.Equal(t, 3, r.AcceptedAmount(item.Stone, l))
	assert.Zero(t, r.AcceptedAmount(item.Iron, l), "a loaded robot only tops up its cargo type")

	carried, ok := r.CarriedItem(l)
	assert.True(t, ok)
	assert.Equal(t, item.Stone, carried)
	assert.Equal(t, 2, r.CarriedAmount(l))
}

func TestRobot_CarriedItemWhenEmpty(t *testing.T) {
	w, _, r := newFleet(t, geom.V(0, 0))
	carried, ok := r.CarriedItem(w.Inventory())
	assert.False(t, ok)
	assert.Equal(t, item.Unknown, carried)
}

func TestRobot_DispatchBusyRobotIsStateConflict(t *testing.T) {
	w, c, r := newFleet(t, geom.V(0, 0))
	src := newTestDepot(t, w, geom.V(0.3, 0), DefaultDepotParams(), item.Stone)
	dst := newTestDepot(t, w, geom.V(-0.3, 0), DefaultDepotParams(), item.Stone)

	plan := TransferPlan(src, item.NewStack(item.Stone, 1), dst)
	require.NoError(t, w.dispatch(r, plan))
	assert.Equal(t, 1, c.Status().Busy)

	err := w.dispatch(r, DeliverPlan(src, item.NewStack(item.Stone, 1)))
	require.ErrorIs(t, err, ErrStateConflict)
	assert.Equal(t, plan, r.State(), "a rejected dispatch leaves the robot's task alone")
	assert.NoError(t, c.CheckPartition(w))
}

func TestRobot_MoveToNeverOvershoots(t *testing.T) {
	w, _, r := newFleet(t, geom.V(0, 0))
	d := newTestDepot(t, w, geom.V(0.45, 0), DefaultDepotParams(), item.Stone)
	require.NoError(t, w.Stock(r.ID(), item.Stone, 1))
	require.NoError(t, w.dispatch(r, DeliverPlan(d, item.NewStack(item.Stone, 1))))

	for i := 0; i < 20 && r.State().Kind == StateMoveTo; i++ {
		require.NoError(t, r.Tick(1.3, w))
		assert.LessOrEqual(t, r.Position().X, d.Position().X)
	}
	assert.Equal(t, StateDropOff, r.State().Kind)
	assert.LessOrEqual(t, r.Position().Dst2(d.Position()), r.ArrivalTolerance*r.ArrivalTolerance)
}

func TestRobot_TransferRunsToCompletion(t *testing.T) {
	w, c, r := newFleet(t, geom.V(0, 0))
	src := newTestDepot(t, w, geom.V(0.3, 0), DefaultDepotParams(), item.Stone)
	dst := newTestDepot(t, w, geom.V(-0.3, 0), DefaultDepotParams(), item.Stone)
	require.NoError(t, w.Stock(src.ID(), item.Stone, 7))
	require.NoError(t, w.dispatch(r, TransferPlan(src, item.NewStack(item.Stone, 7), dst)))

	seen := map[StateKind]bool{}
	for i := 0; i < 50 && !r.IsIdle(); i++ {
		seen[r.State().Kind] = true
		require.NoError(t, r.Tick(0.5, w))
		require.NoError(t, c.CheckPartition(w))
	}
	assert.True(t, r.IsIdle())
	assert.True(t, seen[StatePickup])
	assert.True(t, seen[StateDropOff])

	l := w.Inventory()
	assert.Equal(t, 2, l.Amount(src.ID(), item.Stone), "pickup is clipped to robot capacity")
	assert.Equal(t, 5, l.Amount(dst.ID(), item.Stone))
	assert.Zero(t, r.CarriedAmount(l))
	assert.Equal(t, 1, c.Status().IdleEmpty)
}

func TestRobot_PickupFromEmptySourceEndsIdle(t *testing.T) {
	w, c, r := newFleet(t, geom.V(0.3, 0))
	src := newTestDepot(t, w, geom.V(0.3, 0), DefaultDepotParams(), item.Stone)
	dst := newTestDepot(t, w, geom.V(-0.3, 0), DefaultDepotParams(), item.Stone)
	require.NoError(t, w.dispatch(r, TransferPlan(src, item.NewStack(item.Stone, 3), dst)))

	require.NoError(t, r.Tick(0.1, w))
	require.Equal(t, StatePickup, r.State().Kind)
	require.NoError(t, r.Tick(0.1, w))

	assert.True(t, r.IsIdle())
	assert.Equal(t, 1, c.Status().IdleEmpty)
}

func TestRobot_DropOffIntoFullReceiverKeepsCargo(t *testing.T) {
	w, c, r := newFleet(t, geom.V(0.2, 0))
	d := newTestDepot(t, w, geom.V(0.2, 0), DepotParams{Capacity: 2}, item.Stone)
	require.NoError(t, w.Stock(d.ID(), item.Stone, 1))
	require.NoError(t, w.Stock(r.ID(), item.Stone, 4))
	require.NoError(t, w.dispatch(r, DeliverPlan(d, item.NewStack(item.Stone, 4))))

	require.NoError(t, r.Tick(0.1, w))
	require.Equal(t, StateDropOff, r.State().Kind)
	require.NoError(t, r.Tick(0.1, w))

	l := w.Inventory()
	assert.True(t, r.IsIdle())
	assert.Equal(t, 2, l.Amount(d.ID(), item.Stone))
	assert.Equal(t, 3, r.CarriedAmount(l))
	assert.Equal(t, 1, c.Status().IdleCarrying)
	assert.NoError(t, c.CheckPartition(w))
}

func TestRobot_DropOffToUnknownEntityFails(t *testing.T) {
	w, _, r := newFleet(t, geom.V(0, 0))
	require.NoError(t, w.Stock(r.ID(), item.Stone, 1))
	r.state = DropOff(4242, item.NewStack(item.Stone, 1))

	err := r.Tick(0.1, w)
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "IDLE", Idle().String())
	assert.Equal(t, "DROP_OFF[STONEx2 to #3]", DropOff(3, item.NewStack(item.Stone, 2)).String())
	assert.Equal(t, "MOVE_TO[#3 (1.000, 0.000) then DROP_OFF]",
		MoveTo(geom.V(1, 0), 3, DropOff(3, item.NewStack(item.Stone, 2))).String())
}
