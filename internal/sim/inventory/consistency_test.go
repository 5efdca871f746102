package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/fleetsim/internal/sim/entity"
	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

func newStockedLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger(nil)
	require.NoError(t, l.Create(entity.ID(1), item.Stone, 5))
	require.NoError(t, l.Create(entity.ID(2), item.Iron, 3))
	require.NoError(t, l.CheckConsistency())
	return l
}

func TestCheckConsistency_TypeIndexDisagrees(t *testing.T) {
	l := newStockedLedger(t)
	l.byType[item.Stone][entity.ID(1)] = 4

	err := l.CheckConsistency()
	assert.ErrorIs(t, err, ErrInvariantViolation)
	assert.Contains(t, err.Error(), "5 by entity but 4 by type")
}

func TestCheckConsistency_EntryOnlyInTypeIndex(t *testing.T) {
	l := newStockedLedger(t)
	l.byType[item.Iron][entity.ID(9)] = 2

	assert.ErrorIs(t, l.CheckConsistency(), ErrInvariantViolation)
}

func TestCheckConsistency_NegativeEntry(t *testing.T) {
	l := newStockedLedger(t)
	l.byEntity[entity.ID(2)][item.Iron] = -1
	l.byType[item.Iron][entity.ID(2)] = -1

	assert.ErrorIs(t, l.CheckConsistency(), ErrInvariantViolation)
}
