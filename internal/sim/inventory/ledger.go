// Package inventory provides the item ledger: the single source of truth for
// how many units of each item type every entity holds.
package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

var (
	// ErrInvariantViolation reports an operation that would drive an entry
	// negative or leave the two indices inconsistent. It always indicates an
	// accounting bug upstream.
	ErrInvariantViolation = errors.New("inventory invariant violation")
	// ErrInvalidArgument reports a negative amount or a non-storable type.
	ErrInvalidArgument = errors.New("invalid inventory argument")
)

// Reader is the read-only view of a ledger.
type Reader interface {
	// Amount returns the units of t held by id. For item.Any it returns the
	// total stored by id.
	Amount(id entity.ID, t item.Type) int
	// StoredAmount returns the units of all types held by id.
	StoredAmount(id entity.ID) int
}

// Receiver is anything that can be the destination of a Transfer.
type Receiver interface {
	ID() entity.ID
	// AcceptedAmount returns how many units of t the receiver can take right
	// now. It must only consult r, never the ledger directly.
	AcceptedAmount(t item.Type, r Reader) int
}

// Ledger maps (entity, type) to a non-negative amount and keeps a reverse
// index (type, entity) for aggregate queries.
//
// Invariant: no entry is negative; for every type the per-entity amounts in
// both indices are identical.
//
// All methods are safe for concurrent use. Transfer holds one lock across its
// check and both mutations.
type Ledger struct {
	mu       sync.RWMutex
	logger   *zap.Logger
	byEntity map[entity.ID]map[item.Type]int
	byType   map[item.Type]map[entity.ID]int
}

// NewLedger returns an empty Ledger. A nil logger disables logging.
func NewLedger(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger:   logger,
		byEntity: make(map[entity.ID]map[item.Type]int),
		byType:   make(map[item.Type]map[entity.ID]int),
	}
}

// Create adds amount units of t to id.
//
// Precondition: amount >= 0; t is a concrete type.
// Postcondition: on success both indices grew by amount; on error the ledger
// is unchanged.
func (l *Ledger) Create(id entity.ID, t item.Type, amount int) error {
	if err := validate(t, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.applyLocked(id, t, amount); err != nil {
		return err
	}
	l.logChangeLocked("create", id, t, amount)
	return nil
}

// Consume removes amount units of t from id.
//
// Precondition: amount >= 0; t is a concrete type.
// Postcondition: returns ErrInvariantViolation and leaves the ledger unchanged
// if id holds fewer than amount units.
func (l *Ledger) Consume(id entity.ID, t item.Type, amount int) error {
	if err := validate(t, amount); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.applyLocked(id, t, -amount); err != nil {
		return err
	}
	l.logChangeLocked("consume", id, t, amount)
	return nil
}

// Transfer moves up to amount units of t from one entity to a receiver.
//
// Precondition: amount >= 0; t is a concrete type; to is non-nil.
// Postcondition: exactly min(available at from, amount, to.AcceptedAmount(t))
// units moved, or zero and no mutation. The moved amount is returned.
func (l *Ledger) Transfer(from entity.ID, t item.Type, amount int, to Receiver) (int, error) {
	if err := validate(t, amount); err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	accepted := to.AcceptedAmount(t, lockedView{l})
	available := l.amountLocked(from, t)
	moved := min(available, amount, accepted)
	if moved <= 0 {
		return 0, nil
	}
	if err := l.applyLocked(from, t, -moved); err != nil {
		return 0, fmt.Errorf("transferring %d %s from %s to %s: %w", moved, t, from, to.ID(), err)
	}
	if err := l.applyLocked(to.ID(), t, moved); err != nil {
		// Restore the source so no half-applied state survives.
		_ = l.applyLocked(from, t, moved)
		return 0, fmt.Errorf("transferring %d %s from %s to %s: %w", moved, t, from, to.ID(), err)
	}
	if ce := l.logger.Check(zap.DebugLevel, "ledger transfer"); ce != nil {
		ce.Write(
			zap.Stringer("from", from),
			zap.Stringer("to", to.ID()),
			zap.Stringer("type", t),
			zap.Int("requested", amount),
			zap.Int("moved", moved),
			zap.String("snapshot", l.stringLocked()),
		)
	}
	return moved, nil
}

// Amount implements Reader.
func (l *Ledger) Amount(id entity.ID, t item.Type) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.amountLocked(id, t)
}

// StoredAmount implements Reader.
func (l *Ledger) StoredAmount(id entity.ID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.storedLocked(id)
}

// Total returns the units of t held across all entities, read from the
// reverse index.
func (l *Ledger) Total(t item.Type) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	total := 0
	for _, n := range l.byType[t] {
		total += n
	}
	return total
}

// Amounts returns every positive stack held by id, ordered by type.
//
// Postcondition: Returns a non-nil slice; may be empty.
func (l *Ledger) Amounts(id entity.ID) []item.Stack {
	return l.AmountsMatching(id, func(item.Type, int) bool { return true })
}

// AmountsMatching returns the positive stacks held by id for which pred
// returns true, ordered by type.
//
// Precondition: pred must be non-nil.
func (l *Ledger) AmountsMatching(id entity.ID, pred func(t item.Type, amount int) bool) []item.Stack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []item.Stack{}
	for _, s := range l.stacksLocked(id) {
		if pred(s.Type, s.Amount) {
			out = append(out, s)
		}
	}
	return out
}

// Visit calls fn for every positive stack held by id, ordered by type, until
// fn returns false.
func (l *Ledger) Visit(id entity.ID, fn func(s item.Stack) bool) {
	l.mu.RLock()
	stacks := l.stacksLocked(id)
	l.mu.RUnlock()
	for _, s := range stacks {
		if !fn(s) {
			return
		}
	}
}

// CheckConsistency re-derives both indices from each other.
//
// Postcondition: Returns nil when every entry is non-negative and both
// indices agree, or an error wrapping ErrInvariantViolation.
func (l *Ledger) CheckConsistency() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for id, types := range l.byEntity {
		for t, n := range types {
			if n < 0 {
				return fmt.Errorf("%w: %s holds %d %s", ErrInvariantViolation, id, n, t)
			}
			if got := l.byType[t][id]; got != n {
				return fmt.Errorf("%w: %s %s is %d by entity but %d by type", ErrInvariantViolation, id, t, n, got)
			}
		}
	}
	for t, holders := range l.byType {
		for id, n := range holders {
			if got := l.byEntity[id][t]; got != n {
				return fmt.Errorf("%w: %s %s is %d by type but %d by entity", ErrInvariantViolation, id, t, n, got)
			}
		}
	}
	return nil
}

// String renders a snapshot of the ledger: per-type totals followed by every
// entity's holdings.
func (l *Ledger) String() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stringLocked()
}

func validate(t item.Type, amount int) error {
	if amount < 0 {
		return fmt.Errorf("%w: amount %d", ErrInvalidArgument, amount)
	}
	if !t.IsConcrete() {
		return fmt.Errorf("%w: type %s cannot be stored", ErrInvalidArgument, t)
	}
	return nil
}

// applyLocked adds delta to (id, t) in both indices. Both new values are
// checked before either index is touched.
func (l *Ledger) applyLocked(id entity.ID, t item.Type, delta int) error {
	current := l.byEntity[id][t]
	next := current + delta
	if next < 0 || l.byType[t][id]+delta < 0 {
		l.logger.Error("ledger entry would go negative",
			zap.Stringer("entity", id),
			zap.Stringer("type", t),
			zap.Int("stored", current),
			zap.Int("delta", delta),
		)
		return fmt.Errorf("%w: %s holds %d %s, cannot apply %d", ErrInvariantViolation, id, current, t, delta)
	}

	types := l.byEntity[id]
	if types == nil {
		types = make(map[item.Type]int)
		l.byEntity[id] = types
	}
	holders := l.byType[t]
	if holders == nil {
		holders = make(map[entity.ID]int)
		l.byType[t] = holders
	}
	if next == 0 {
		delete(types, t)
		delete(holders, id)
		return nil
	}
	types[t] = next
	holders[id] = next
	return nil
}

func (l *Ledger) amountLocked(id entity.ID, t item.Type) int {
	if t == item.Any {
		return l.storedLocked(id)
	}
	return l.byEntity[id][t]
}

func (l *Ledger) storedLocked(id entity.ID) int {
	total := 0
	for _, n := range l.byEntity[id] {
		total += n
	}
	return total
}

func (l *Ledger) stacksLocked(id entity.ID) []item.Stack {
	types := l.byEntity[id]
	out := make([]item.Stack, 0, len(types))
	for t, n := range types {
		if n > 0 {
			out = append(out, item.NewStack(t, n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (l *Ledger) logChangeLocked(op string, id entity.ID, t item.Type, amount int) {
	if ce := l.logger.Check(zap.DebugLevel, "ledger changed"); ce != nil {
		ce.Write(
			zap.String("op", op),
			zap.Stringer("entity", id),
			zap.Stringer("type", t),
			zap.Int("amount", amount),
			zap.String("snapshot", l.stringLocked()),
		)
	}
}

func (l *Ledger) stringLocked() string {
	var b strings.Builder
	types := make([]item.Type, 0, len(l.byType))
	for t := range l.byType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		total := 0
		for _, n := range l.byType[t] {
			total += n
		}
		fmt.Fprintf(&b, "%s x %d\n", t, total)
	}
	ids := make([]entity.ID, 0, len(l.byEntity))
	for id := range l.byEntity {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		stacks := l.stacksLocked(id)
		if len(stacks) == 0 {
			continue
		}
		fmt.Fprintf(&b, "entity %s:", id)
		for _, s := range stacks {
			fmt.Fprintf(&b, " %s", s)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// lockedView reads the ledger while the caller already holds its lock.
type lockedView struct{ l *Ledger }

func (v lockedView) Amount(id entity.ID, t item.Type) int { return v.l.amountLocked(id, t) }
func (v lockedView) StoredAmount(id entity.ID) int        { return v.l.storedLocked(id) }
