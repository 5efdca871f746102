// Package config provides Viper-based configuration loading for the fleet simulator.
package config

import (
	"fmt"
	"math"
	"net"
	"strings"

	"github.com/spf13/viper"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig holds the tick driver settings.
type SimulationConfig struct {
	// TickRateHz is the number of ticks per wall-clock second when running as a server.
	TickRateHz float64 `mapstructure:"tick_rate_hz"`
	// DeltaSeconds is the simulated time advanced by one tick.
	DeltaSeconds float64 `mapstructure:"delta_seconds"`
	// Seed seeds the controllers' fairness shuffle. Zero selects a
	// non-reproducible source.
	Seed uint64 `mapstructure:"seed"`
	// MaxTicks stops the runner after this many ticks. Zero runs until shutdown.
	MaxTicks uint64 `mapstructure:"max_ticks"`
	// VerifyInvariants re-checks the ledger and occupancy partitions after every tick.
	VerifyInvariants bool `mapstructure:"verify_invariants"`
}

// ControllerConfig holds the controller defaults.
type ControllerConfig struct {
	BroadcastRadius float64 `mapstructure:"broadcast_radius"`
	MaxRobots       int     `mapstructure:"max_robots"`
}

// RobotConfig holds the robot defaults.
type RobotConfig struct {
	Capacity         int     `mapstructure:"capacity"`
	Speed            float64 `mapstructure:"speed"`
	ArrivalTolerance float64 `mapstructure:"arrival_tolerance"`
}

// DepotConfig holds the depot defaults.
type DepotConfig struct {
	Capacity  int `mapstructure:"capacity"`
	MinAmount int `mapstructure:"min_amount"`
}

// FactoryConfig holds the factory defaults.
type FactoryConfig struct {
	InputConsumed     int     `mapstructure:"input_consumed"`
	InputMax          int     `mapstructure:"input_max"`
	ItemsPerCycle     int     `mapstructure:"items_per_cycle"`
	MaxStorage        int     `mapstructure:"max_storage"`
	ProductionSeconds float64 `mapstructure:"production_seconds"`
}

// ObserverConfig holds the read-only state feed settings.
type ObserverConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Host is the bind address. Only loopback addresses are accepted.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (o ObserverConfig) Addr() string {
	return net.JoinHostPort(o.Host, fmt.Sprintf("%d", o.Port))
}

// TraceConfig holds the per-tick trace settings.
type TraceConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Dir receives one compressed trace file per run.
	Dir string `mapstructure:"dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Controller ControllerConfig `mapstructure:"controller"`
	Robot      RobotConfig      `mapstructure:"robot"`
	Depot      DepotConfig      `mapstructure:"depot"`
	Factory    FactoryConfig    `mapstructure:"factory"`
	Observer   ObserverConfig   `mapstructure:"observer"`
	Trace      TraceConfig      `mapstructure:"trace"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateLogging(c.Logging),
		validateSimulation(c.Simulation),
		validateController(c.Controller),
		validateRobot(c.Robot),
		validateDepot(c.Depot),
		validateFactory(c.Factory),
		validateObserver(c.Observer),
		validateTrace(c.Trace),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func joined(errs []string) error {
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	if !(s.TickRateHz > 0) || math.IsInf(s.TickRateHz, 0) {
		errs = append(errs, fmt.Sprintf("simulation.tick_rate_hz must be > 0, got %v", s.TickRateHz))
	}
	if !(s.DeltaSeconds > 0) || math.IsInf(s.DeltaSeconds, 0) {
		errs = append(errs, fmt.Sprintf("simulation.delta_seconds must be > 0, got %v", s.DeltaSeconds))
	}
	return joined(errs)
}

func validateController(c ControllerConfig) error {
	var errs []string
	if c.BroadcastRadius <= 0 {
		errs = append(errs, fmt.Sprintf("controller.broadcast_radius must be > 0, got %v", c.BroadcastRadius))
	}
	if c.MaxRobots < 1 {
		errs = append(errs, fmt.Sprintf("controller.max_robots must be >= 1, got %d", c.MaxRobots))
	}
	return joined(errs)
}

func validateRobot(r RobotConfig) error {
	var errs []string
	if r.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("robot.capacity must be >= 1, got %d", r.Capacity))
	}
	if r.Speed <= 0 {
		errs = append(errs, fmt.Sprintf("robot.speed must be > 0, got %v", r.Speed))
	}
	if r.ArrivalTolerance <= 0 {
		errs = append(errs, fmt.Sprintf("robot.arrival_tolerance must be > 0, got %v", r.ArrivalTolerance))
	}
	return joined(errs)
}

func validateDepot(d DepotConfig) error {
	var errs []string
	if d.Capacity < 1 {
		errs = append(errs, fmt.Sprintf("depot.capacity must be >= 1, got %d", d.Capacity))
	}
	if d.MinAmount < 0 {
		errs = append(errs, fmt.Sprintf("depot.min_amount must be >= 0, got %d", d.MinAmount))
	}
	return joined(errs)
}

func validateFactory(f FactoryConfig) error {
	var errs []string
	if f.InputConsumed < 1 {
		errs = append(errs, fmt.Sprintf("factory.input_consumed must be >= 1, got %d", f.InputConsumed))
	}
	if f.InputMax < f.InputConsumed {
		errs = append(errs, "factory.input_max must not be below factory.input_consumed")
	}
	if f.ItemsPerCycle < 1 {
		errs = append(errs, fmt.Sprintf("factory.items_per_cycle must be >= 1, got %d", f.ItemsPerCycle))
	}
	if f.MaxStorage < f.ItemsPerCycle {
		errs = append(errs, "factory.max_storage must not be below factory.items_per_cycle")
	}
	if f.ProductionSeconds <= 0 {
		errs = append(errs, fmt.Sprintf("factory.production_seconds must be > 0, got %v", f.ProductionSeconds))
	}
	return joined(errs)
}

func validateObserver(o ObserverConfig) error {
	if !o.Enabled {
		return nil
	}
	var errs []string
	if o.Port < 1 || o.Port > 65535 {
		errs = append(errs, fmt.Sprintf("observer.port must be 1-65535, got %d", o.Port))
	}
	if !isLoopback(o.Host) {
		errs = append(errs, fmt.Sprintf("observer.host must be a loopback address, got %q", o.Host))
	}
	return joined(errs)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func validateTrace(t TraceConfig) error {
	if t.Enabled && t.Dir == "" {
		return fmt.Errorf("trace.dir must not be empty when trace.enabled is set")
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with FLEETSIM_ prefix
	v.SetEnvPrefix("FLEETSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the built-in defaults.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("simulation.tick_rate_hz", 30.0)
	v.SetDefault("simulation.delta_seconds", 1.0/30.0)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.max_ticks", 0)
	v.SetDefault("simulation.verify_invariants", false)

	v.SetDefault("controller.broadcast_radius", 0.5)
	v.SetDefault("controller.max_robots", 20)

	v.SetDefault("robot.capacity", 5)
	v.SetDefault("robot.speed", 0.1)
	v.SetDefault("robot.arrival_tolerance", 0.1)

	v.SetDefault("depot.capacity", 200)
	v.SetDefault("depot.min_amount", 0)

	v.SetDefault("factory.input_consumed", 1)
	v.SetDefault("factory.input_max", 10)
	v.SetDefault("factory.items_per_cycle", 1)
	v.SetDefault("factory.max_storage", 10)
	v.SetDefault("factory.production_seconds", 2.0)

	v.SetDefault("observer.enabled", false)
	v.SetDefault("observer.host", "127.0.0.1")
	v.SetDefault("observer.port", 7070)

	v.SetDefault("trace.enabled", false)
	v.SetDefault("trace.dir", "traces")
}
