// Package scenario loads fleet layouts from YAML and populates a World with them.
package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cory-johannsen/fleetsim/internal/config"
	"github.com/cory-johannsen/fleetsim/internal/sim/geom"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
	"github.com/cory-johannsen/fleetsim/internal/sim/rng"
	"github.com/cory-johannsen/fleetsim/internal/sim/world"
)

// Scenario is a fleet layout. Optional numeric fields override the
// configured defaults for one entry.
type Scenario struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Controllers []ControllerSpec `yaml:"controllers"`
	Depots      []DepotSpec      `yaml:"depots"`
	Factories   []FactorySpec    `yaml:"factories"`
	Robots      []RobotSpec      `yaml:"robots"`
}

// ControllerSpec places one controller.
type ControllerSpec struct {
	Position        geom.Vec2 `yaml:"position"`
	BroadcastRadius *float64  `yaml:"broadcast_radius"`
	MaxRobots       *int      `yaml:"max_robots"`
}

// DepotSpec places one depot.
type DepotSpec struct {
	Position  geom.Vec2    `yaml:"position"`
	Accepts   []item.Type  `yaml:"accepts"`
	Capacity  *int         `yaml:"capacity"`
	MinAmount *int         `yaml:"min_amount"`
	Stock     []item.Stack `yaml:"stock"`
}

// FactorySpec places one factory. An omitted input makes it a raw source.
type FactorySpec struct {
	Position          geom.Vec2    `yaml:"position"`
	Produces          item.Type    `yaml:"produces"`
	Input             item.Type    `yaml:"input"`
	InputConsumed     *int         `yaml:"input_consumed"`
	InputMax          *int         `yaml:"input_max"`
	ItemsPerCycle     *int         `yaml:"items_per_cycle"`
	MaxStorage        *int         `yaml:"max_storage"`
	ProductionSeconds *float64     `yaml:"production_seconds"`
	Stock             []item.Stack `yaml:"stock"`
}

// RobotSpec places Count robots at one position. An omitted count places one.
type RobotSpec struct {
	Position geom.Vec2   `yaml:"position"`
	Count    *int        `yaml:"count"`
	Capacity *int        `yaml:"capacity"`
	Speed    *float64    `yaml:"speed"`
	Carrying *item.Stack `yaml:"carrying"`
}

// Defaults are the per-kind parameters applied where a spec leaves a field unset.
type Defaults struct {
	Controller world.ControllerParams
	Robot      world.RobotParams
	Depot      world.DepotParams
	Factory    world.FactoryParams
}

// DefaultsFrom maps configuration onto entity parameters.
func DefaultsFrom(cfg config.Config) Defaults {
	return Defaults{
		Controller: world.ControllerParams{
			BroadcastRadius: cfg.Controller.BroadcastRadius,
			MaxRobots:       cfg.Controller.MaxRobots,
		},
		Robot: world.RobotParams{
			Capacity:         cfg.Robot.Capacity,
			Speed:            cfg.Robot.Speed,
			ArrivalTolerance: cfg.Robot.ArrivalTolerance,
		},
		Depot: world.DepotParams{
			Capacity:  cfg.Depot.Capacity,
			MinAmount: cfg.Depot.MinAmount,
		},
		Factory: world.FactoryParams{
			InputConsumed:     cfg.Factory.InputConsumed,
			InputMax:          cfg.Factory.InputMax,
			ItemsPerCycle:     cfg.Factory.ItemsPerCycle,
			MaxStorage:        cfg.Factory.MaxStorage,
			ProductionSeconds: cfg.Factory.ProductionSeconds,
		},
	}
}

// BuiltinDefaults returns the entity packages' own defaults.
func BuiltinDefaults() Defaults {
	return Defaults{
		Controller: world.DefaultControllerParams(),
		Robot:      world.DefaultRobotParams(),
		Depot:      world.DefaultDepotParams(),
		Factory:    world.DefaultFactoryParams(),
	}
}

// Validate checks every entry.
//
// Postcondition: Returns nil if the scenario is valid, or an error describing all violations.
func (s *Scenario) Validate() error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	if len(s.Controllers) == 0 {
		add("at least one controller is required")
	}
	for i, c := range s.Controllers {
		if c.BroadcastRadius != nil && *c.BroadcastRadius <= 0 {
			add("controllers[%d].broadcast_radius must be > 0", i)
		}
		if c.MaxRobots != nil && *c.MaxRobots < 1 {
			add("controllers[%d].max_robots must be >= 1", i)
		}
	}
	for i, d := range s.Depots {
		if len(d.Accepts) == 0 {
			add("depots[%d].accepts must not be empty", i)
		}
		for _, t := range d.Accepts {
			if t == item.Unknown {
				add("depots[%d].accepts must not contain UNKNOWN", i)
			}
		}
		if d.Capacity != nil && *d.Capacity < 1 {
			add("depots[%d].capacity must be >= 1", i)
		}
		if d.MinAmount != nil && *d.MinAmount < 0 {
			add("depots[%d].min_amount must be >= 0", i)
		}
		errs = append(errs, validateStock(fmt.Sprintf("depots[%d].stock", i), d.Stock)...)
	}
	for i, f := range s.Factories {
		if !f.Produces.IsConcrete() {
			add("factories[%d].produces must be a concrete item type, got %s", i, f.Produces)
		}
		if f.Input != item.Unknown && !f.Input.IsConcrete() {
			add("factories[%d].input must be a concrete item type, got %s", i, f.Input)
		}
		for name, v := range map[string]*int{
			"input_consumed":  f.InputConsumed,
			"input_max":       f.InputMax,
			"items_per_cycle": f.ItemsPerCycle,
			"max_storage":     f.MaxStorage,
		} {
			if v != nil && *v < 1 {
				add("factories[%d].%s must be >= 1", i, name)
			}
		}
		if f.ProductionSeconds != nil && *f.ProductionSeconds <= 0 {
			add("factories[%d].production_seconds must be > 0", i)
		}
		errs = append(errs, validateStock(fmt.Sprintf("factories[%d].stock", i), f.Stock)...)
	}
	for i, r := range s.Robots {
		if r.Count != nil && *r.Count < 1 {
			add("robots[%d].count must be >= 1", i)
		}
		if r.Capacity != nil && *r.Capacity < 1 {
			add("robots[%d].capacity must be >= 1", i)
		}
		if r.Speed != nil && *r.Speed <= 0 {
			add("robots[%d].speed must be > 0", i)
		}
		if r.Carrying != nil {
			errs = append(errs, validateStock(fmt.Sprintf("robots[%d].carrying", i), []item.Stack{*r.Carrying})...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("scenario %q: %s", s.Name, strings.Join(errs, "; "))
	}
	return nil
}

func validateStock(path string, stock []item.Stack) []string {
	var errs []string
	for i, st := range stock {
		if !st.Type.IsConcrete() {
			errs = append(errs, fmt.Sprintf("%s[%d].type must be a concrete item type, got %s", path, i, st.Type))
		}
		if st.Amount < 0 {
			errs = append(errs, fmt.Sprintf("%s[%d].amount must be >= 0", path, i))
		}
	}
	return errs
}

// RobotCount returns the number of robots the scenario places.
func (s *Scenario) RobotCount() int {
	n := 0
	for _, r := range s.Robots {
		n += r.robots()
	}
	return n
}

func (r RobotSpec) robots() int {
	if r.Count == nil {
		return 1
	}
	return *r.Count
}

// CheckParams resolves every entry against d and checks the constraints that
// span an override and a default.
//
// Postcondition: Returns nil if every resolved entry is consistent, or an
// error describing all violations.
func (s *Scenario) CheckParams(d Defaults) error {
	var errs []string
	add := func(format string, args ...any) { errs = append(errs, fmt.Sprintf(format, args...)) }

	for i, ds := range s.Depots {
		p := depotParams(d, ds)
		if p.MinAmount > p.Capacity {
			add("depots[%d]: min_amount %d exceeds capacity %d", i, p.MinAmount, p.Capacity)
		}
	}
	for i, fs := range s.Factories {
		p := factoryParams(d, fs)
		if p.MaxStorage < p.ItemsPerCycle {
			add("factories[%d]: max_storage %d is below items_per_cycle %d", i, p.MaxStorage, p.ItemsPerCycle)
		}
		if p.Input != item.Unknown && p.InputMax < p.InputConsumed {
			add("factories[%d]: input_max %d is below input_consumed %d", i, p.InputMax, p.InputConsumed)
		}
	}
	for i, rs := range s.Robots {
		p := robotParams(d, rs)
		if rs.Carrying != nil && rs.Carrying.Amount > p.Capacity {
			add("robots[%d]: carrying %s exceeds capacity %d", i, *rs.Carrying, p.Capacity)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("scenario %q: %s", s.Name, strings.Join(errs, "; "))
	}
	return nil
}

func depotParams(d Defaults, ds DepotSpec) world.DepotParams {
	p := d.Depot
	overrideInt(&p.Capacity, ds.Capacity)
	overrideInt(&p.MinAmount, ds.MinAmount)
	return p
}

func factoryParams(d Defaults, fs FactorySpec) world.FactoryParams {
	p := d.Factory
	p.Input = fs.Input
	overrideInt(&p.InputConsumed, fs.InputConsumed)
	overrideInt(&p.InputMax, fs.InputMax)
	overrideInt(&p.ItemsPerCycle, fs.ItemsPerCycle)
	overrideInt(&p.MaxStorage, fs.MaxStorage)
	overrideFloat(&p.ProductionSeconds, fs.ProductionSeconds)
	return p
}

func robotParams(d Defaults, rs RobotSpec) world.RobotParams {
	p := d.Robot
	overrideInt(&p.Capacity, rs.Capacity)
	overrideFloat(&p.Speed, rs.Speed)
	return p
}

// Populate adds every entity to w: controllers first so robots can be
// assigned, then depots, factories and robots, then the initial stock.
//
// Precondition: s is valid; w is empty; src non-nil.
// Postcondition: on error w may be partially populated and should be discarded.
func (s *Scenario) Populate(w *world.World, d Defaults, src rng.Source) error {
	if w == nil || src == nil {
		return errors.New("scenario.Populate: world and source must be non-nil")
	}
	if err := s.CheckParams(d); err != nil {
		return err
	}
	ids := w.Allocator()
	ctrlLogger := w.Logger().Named("controller")

	for i, cs := range s.Controllers {
		p := d.Controller
		overrideFloat(&p.BroadcastRadius, cs.BroadcastRadius)
		overrideInt(&p.MaxRobots, cs.MaxRobots)
		if err := w.Add(world.NewController(ids, cs.Position, p, src, ctrlLogger)); err != nil {
			return fmt.Errorf("controllers[%d]: %w", i, err)
		}
	}

	for i, ds := range s.Depots {
		dep := world.NewDepot(ids, ds.Position, depotParams(d, ds), ds.Accepts...)
		if err := w.Add(dep); err != nil {
			return fmt.Errorf("depots[%d]: %w", i, err)
		}
		if err := stock(w, dep, ds.Stock); err != nil {
			return fmt.Errorf("depots[%d]: %w", i, err)
		}
	}

	for i, fs := range s.Factories {
		f := world.NewFactory(ids, fs.Position, fs.Produces, factoryParams(d, fs))
		if err := w.Add(f); err != nil {
			return fmt.Errorf("factories[%d]: %w", i, err)
		}
		if err := stock(w, f, fs.Stock); err != nil {
			return fmt.Errorf("factories[%d]: %w", i, err)
		}
	}

	for i, rs := range s.Robots {
		p := robotParams(d, rs)
		for n := 0; n < rs.robots(); n++ {
			r := world.NewRobot(ids, rs.Position, p)
			if err := w.Add(r); err != nil {
				return fmt.Errorf("robots[%d] #%d: %w", i, n, err)
			}
			if rs.Carrying != nil {
				if err := stock(w, r, []item.Stack{*rs.Carrying}); err != nil {
					return fmt.Errorf("robots[%d] #%d: %w", i, n, err)
				}
			}
		}
	}
	return nil
}

func stock(w *world.World, e world.Entity, stacks []item.Stack) error {
	for _, st := range stacks {
		if err := w.Stock(e.ID(), st.Type, st.Amount); err != nil {
			return err
		}
	}
	return nil
}

func overrideInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func overrideFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}
