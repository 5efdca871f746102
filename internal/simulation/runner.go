// Package simulation drives a World at a fixed tick rate and fans its
// snapshots out to recorders and subscribers.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/sim/world"
)

// Options tunes a Runner.
type Options struct {
	// DeltaSeconds is the simulated time advanced by one tick.
	DeltaSeconds float64
	// TickRateHz is the number of ticks per wall-clock second in Run.
	TickRateHz float64
	// MaxTicks stops Run after this many ticks. Zero means no limit.
	MaxTicks uint64
}

// Recorder receives every snapshot synchronously. A recorder error stops the run.
type Recorder interface {
	Record(s world.Snapshot) error
}

// Runner owns a World and serializes every access to it.
//
// Invariant: the World is only touched while mu is held.
type Runner struct {
	logger   *zap.Logger
	opts     Options
	interval time.Duration

	mu    sync.Mutex
	world *world.World

	subMu       sync.Mutex
	subscribers map[chan<- world.Snapshot]struct{}
	recorders   []Recorder

	quit     chan struct{}
	quitOnce sync.Once
}

// NewRunner returns a stopped Runner for w.
//
// Precondition: w non-nil; opts.DeltaSeconds and opts.TickRateHz finite and > 0.
// A nil logger disables logging.
func NewRunner(w *world.World, opts Options, logger *zap.Logger) (*Runner, error) {
	if w == nil {
		return nil, errors.New("simulation.NewRunner: world must not be nil")
	}
	if !(opts.DeltaSeconds > 0) || !(opts.TickRateHz > 0) || math.IsInf(opts.DeltaSeconds, 0) || math.IsInf(opts.TickRateHz, 0) {
		return nil, fmt.Errorf("simulation.NewRunner: delta %v and tick rate %v must be finite and > 0", opts.DeltaSeconds, opts.TickRateHz)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		logger:      logger,
		opts:        opts,
		interval:    time.Duration(float64(time.Second) / opts.TickRateHz),
		world:       w,
		subscribers: make(map[chan<- world.Snapshot]struct{}),
		quit:        make(chan struct{}),
	}, nil
}

// AddRecorder registers rec to receive every snapshot, in registration order.
func (r *Runner) AddRecorder(rec Recorder) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.recorders = append(r.recorders, rec)
}

// Subscribe registers ch to receive a snapshot after each tick.
// If ch is full, the snapshot is dropped for that subscriber (non-blocking).
//
// Precondition: ch must not be nil.
func (r *Runner) Subscribe(ch chan<- world.Snapshot) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	r.subscribers[ch] = struct{}{}
}

// Unsubscribe removes ch from the subscriber list.
func (r *Runner) Unsubscribe(ch chan<- world.Snapshot) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	delete(r.subscribers, ch)
}

// Snapshot returns the current state of the World.
func (r *Runner) Snapshot() world.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.world.Snapshot()
}

// Step advances the World by one tick, then hands the resulting snapshot to
// every recorder and subscriber.
//
// Postcondition: on a tick error nothing is published.
func (r *Runner) Step() (world.Snapshot, error) {
	r.mu.Lock()
	err := r.world.Tick(r.opts.DeltaSeconds)
	snap := r.world.Snapshot()
	r.mu.Unlock()
	if err != nil {
		return snap, err
	}

	r.subMu.Lock()
	recorders := make([]Recorder, len(r.recorders))
	copy(recorders, r.recorders)
	subs := make([]chan<- world.Snapshot, 0, len(r.subscribers))
	for ch := range r.subscribers {
		subs = append(subs, ch)
	}
	r.subMu.Unlock()

	for _, rec := range recorders {
		if err := rec.Record(snap); err != nil {
			return snap, fmt.Errorf("recording tick %d: %w", snap.Tick, err)
		}
	}
	for _, ch := range subs {
		select {
		case ch <- snap:
		default:
		}
	}
	return snap, nil
}

// RunTicks steps the World n times as fast as possible.
func (r *Runner) RunTicks(n uint64) error {
	for i := uint64(0); i < n; i++ {
		if _, err := r.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Run steps the World once per tick interval until ctx is cancelled, Stop is
// called, MaxTicks is reached, or a tick fails.
//
// Postcondition: returns nil on a clean stop and the tick error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("simulation running",
		zap.Duration("interval", r.interval),
		zap.Float64("delta_seconds", r.opts.DeltaSeconds),
		zap.Uint64("max_ticks", r.opts.MaxTicks),
	)
	var ticks uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.quit:
			return nil
		case <-ticker.C:
			snap, err := r.Step()
			if err != nil {
				r.logger.Error("simulation tick failed", zap.Uint64("tick", snap.Tick), zap.Error(err))
				return err
			}
			ticks++
			if r.opts.MaxTicks > 0 && ticks >= r.opts.MaxTicks {
				r.logger.Info("simulation reached max ticks", zap.Uint64("ticks", ticks))
				return nil
			}
		}
	}
}

// Start implements server.Service by running until Stop is called.
func (r *Runner) Start() error {
	return r.Run(context.Background())
}

// Stop implements server.Service. Calling it more than once is safe.
func (r *Runner) Stop() {
	r.quitOnce.Do(func() { close(r.quit) })
}
