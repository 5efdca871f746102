package scenario_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fleetsim/internal/config"
	"github.com/cory-johannsen/fleetsim/internal/scenario"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/rng"
	"github.com/cory-johannsen/fleetsim/internal/sim/world"
)

const minimal = `
scenario:
  name: minimal
  controllers:
    - position: {x: 0, y: 0}
      broadcast_radius: 0.6
  depots:
    - position: {x: 0.3, y: 0}
      accepts: [STONE]
      capacity: 100
      min_amount: 10
  factories:
    - position: {x: 0, y: 0.2}
      produces: STONE
      stock:
        - {type: STONE, amount: 5}
  robots:
    - position: {x: 0.1, y: 0}
      count: 2
      capacity: 3
    - position: {x: 0, y: 0}
      carrying: {type: IRON, amount: 2}
`

func TestLoadFromBytes(t *testing.T) {
	s, err := scenario.LoadFromBytes([]byte(minimal))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Controllers, 1)
	require.NotNil(t, s.Controllers[0].BroadcastRadius)
	assert.Equal(t, 0.6, *s.Controllers[0].BroadcastRadius)
	require.Len(t, s.Depots, 1)
	assert.Equal(t, []item.Type{item.Stone}, s.Depots[0].Accepts)
	require.Len(t, s.Factories, 1)
	assert.Equal(t, item.Stone, s.Factories[0].Produces)
	assert.Equal(t, item.Unknown, s.Factories[0].Input, "no input means raw source")
	assert.Equal(t, 3, s.RobotCount())
}

func TestLoadFromBytes_RejectsUnknownKeys(t *testing.T) {
	_, err := scenario.LoadFromBytes([]byte("scenario:\n  name: x\n  tanks: []\n"))
	assert.Error(t, err)
}

func TestLoadFromBytes_RejectsUnknownItemType(t *testing.T) {
	data := `
scenario:
  controllers: [{position: {x: 0, y: 0}}]
  factories:
    - position: {x: 0, y: 0}
      produces: GOLD
`
	_, err := scenario.LoadFromBytes([]byte(data))
	assert.Error(t, err)
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	negative, zero := -1, 0
	s := &scenario.Scenario{
		Name:   "broken",
		Depots: []scenario.DepotSpec{{Capacity: &negative}},
		Factories: []scenario.FactorySpec{{
			Produces: item.Any,
			Stock:    []item.Stack{{Type: item.Stone, Amount: -2}},
		}},
		Robots: []scenario.RobotSpec{{Count: &zero}},
	}
	err := s.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"at least one controller",
		"depots[0].accepts",
		"depots[0].capacity",
		"factories[0].produces",
		"factories[0].stock[0].amount",
		"robots[0].count",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0644))
	s, err := scenario.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)

	_, err = scenario.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPopulate(t *testing.T) {
	s, err := scenario.LoadFromBytes([]byte(minimal))
	require.NoError(t, err)
	w := world.New(zaptest.NewLogger(t), world.Options{VerifyInvariants: true})

	require.NoError(t, s.Populate(w, scenario.BuiltinDefaults(), rng.NewSeededSource(1)))

	require.Len(t, w.Controllers(), 1)
	assert.Equal(t, 0.6, w.Controllers()[0].BroadcastRadius)
	require.Len(t, w.Depots(), 1)
	assert.Equal(t, world.DepotParams{Capacity: 100, MinAmount: 10}, w.Depots()[0].DepotParams)
	require.Len(t, w.Factories(), 1)
	assert.True(t, w.Factories()[0].IsRawSource())
	assert.Equal(t, 5, w.Inventory().Amount(w.Factories()[0].ID(), item.Stone))

	robots := w.Robots()
	require.Len(t, robots, 3)
	assert.Equal(t, 3, robots[0].Capacity)
	assert.Equal(t, world.DefaultRobotParams().Capacity, robots[2].Capacity)
	assert.Equal(t, 2, w.Inventory().Amount(robots[2].ID(), item.Iron))

	st := w.Controllers()[0].Status()
	assert.Equal(t, 2, st.IdleEmpty)
	assert.Equal(t, 1, st.IdleCarrying)
	assert.NoError(t, w.CheckInvariants())
}

func TestPopulate_RobotOutOfRange(t *testing.T) {
	s := &scenario.Scenario{
		Controllers: []scenario.ControllerSpec{{}},
		Robots:      []scenario.RobotSpec{{Position: geom.V(3, 3)}},
	}
	w := world.New(nil, world.Options{})
	err := s.Populate(w, scenario.BuiltinDefaults(), rng.NewSeededSource(1))
	assert.ErrorIs(t, err, world.ErrNoCapacityInRange)
}

func TestPopulate_CarryingOverCapacity(t *testing.T) {
	s := &scenario.Scenario{
		Controllers: []scenario.ControllerSpec{{}},
		Robots:      []scenario.RobotSpec{{Carrying: &item.Stack{Type: item.Stone, Amount: 50}}},
	}
	w := world.New(nil, world.Options{})
	assert.Error(t, s.Populate(w, scenario.BuiltinDefaults(), rng.NewSeededSource(1)))
}

func TestLoadFromBytes_RejectsZeroCount(t *testing.T) {
	data := `
scenario:
  controllers: [{position: {x: 0, y: 0}}]
  robots:
    - position: {x: 0, y: 0}
      count: 0
`
	_, err := scenario.LoadFromBytes([]byte(data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "robots[0].count must be >= 1")
}

func TestCheckParams_AppliesCrossFieldRulesAfterOverrides(t *testing.T) {
	one, two, fifty, three := 1, 2, 50, 3
	s := &scenario.Scenario{
		Name:        "overrides",
		Controllers: []scenario.ControllerSpec{{}},
		Depots: []scenario.DepotSpec{{
			Accepts:   []item.Type{item.Stone},
			Capacity:  &fifty,
			MinAmount: func() *int { n := 51; return &n }(),
		}},
		Factories: []scenario.FactorySpec{
			{Produces: item.Stone, MaxStorage: &one, ItemsPerCycle: &two},
			{Produces: item.Concrete, Input: item.Stone, InputConsumed: &three, InputMax: &two},
			{Produces: item.Iron, InputConsumed: &three, InputMax: &two},
		},
	}
	require.NoError(t, s.Validate(), "each field is valid on its own")

	err := s.CheckParams(scenario.BuiltinDefaults())
	require.Error(t, err)
	for _, want := range []string{
		"depots[0]: min_amount 51 exceeds capacity 50",
		"factories[0]: max_storage 1 is below items_per_cycle 2",
		"factories[1]: input_max 2 is below input_consumed 3",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.NotContains(t, err.Error(), "factories[2]", "raw sources ignore input limits")

	w := world.New(nil, world.Options{})
	assert.Error(t, s.Populate(w, scenario.BuiltinDefaults(), rng.NewSeededSource(1)))
	assert.Empty(t, w.Controllers(), "nothing is placed when the parameters are inconsistent")
}

func TestCheckParams_OverrideAgainstDefault(t *testing.T) {
	one := 1
	s := &scenario.Scenario{
		Controllers: []scenario.ControllerSpec{{}},
		Factories:   []scenario.FactorySpec{{Produces: item.Stone, MaxStorage: &one}},
	}
	d := scenario.BuiltinDefaults()
	assert.NoError(t, s.CheckParams(d))

	d.Factory.ItemsPerCycle = 4
	assert.ErrorContains(t, s.CheckParams(d), "max_storage 1 is below items_per_cycle 4")
}

func TestDefaultsFrom(t *testing.T) {
	cfg, err := config.LoadFromViper(config.Defaults())
	require.NoError(t, err)
	want := scenario.BuiltinDefaults()
	want.Factory.Input = item.Unknown
	assert.Equal(t, want, scenario.DefaultsFrom(cfg), "input is chosen per factory")
}

// TestDefaultScenarioRuns loads the shipped scenario and runs it with
// invariant verification on. Concrete must keep reaching the yard late in the
// run, so the fleet never ends up stranded with cargo nobody takes.
func TestDefaultScenarioRuns(t *testing.T) {
	s, err := scenario.LoadFromFile(filepath.Join("..", "..", "content", "scenarios", "default.yaml"))
	require.NoError(t, err)

	w := world.New(nil, world.Options{VerifyInvariants: true})
	require.NoError(t, s.Populate(w, scenario.BuiltinDefaults(), rng.NewSeededSource(42)))
	assert.Len(t, w.Robots(), s.RobotCount())

	var yard *world.Depot
	for _, d := range w.Depots() {
		if d.AcceptsType(item.Concrete) {
			yard = d
		}
	}
	require.NotNil(t, yard)
	l := w.Inventory()

	run := func(ticks int) {
		for i := 0; i < ticks; i++ {
			require.NoError(t, w.Tick(1.0/10))
		}
	}
	run(1500)
	early := l.Amount(yard.ID(), item.Concrete)
	assert.Positive(t, early, "concrete reaches the yard")

	run(1500)
	assert.Greater(t, l.Amount(yard.ID(), item.Concrete), early, "deliveries continue")
}
