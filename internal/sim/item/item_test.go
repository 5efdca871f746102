package item_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/fleetsim/internal/sim/item"
)

func TestType_Matches(t *testing.T) {
	assert.True(t, item.Stone.Matches(item.Stone))
	assert.False(t, item.Stone.Matches(item.Iron))
	assert.True(t, item.Stone.Matches(item.Any))
	assert.True(t, item.Any.Matches(item.Concrete))
	assert.True(t, item.Any.Matches(item.Any))
	assert.False(t, item.Unknown.Matches(item.Any))
}

// TestType_Matches_Property verifies Any matches every storable type in both
// directions and concrete types only match themselves.
func TestType_Matches_Property(t *testing.T) {
	types := item.ConcreteTypes()
	rapid.Check(t, func(rt *rapid.T) {
		a := rapid.SampledFrom(types).Draw(rt, "a")
		b := rapid.SampledFrom(types).Draw(rt, "b")
		assert.True(rt, item.Any.Matches(a))
		assert.True(rt, a.Matches(item.Any))
		assert.Equal(rt, a == b, a.Matches(b))
	})
}

func TestParseType(t *testing.T) {
	got, err := item.ParseType(" stone ")
	require.NoError(t, err)
	assert.Equal(t, item.Stone, got)

	_, err = item.ParseType("gold")
	assert.Error(t, err)
	_, err = item.ParseType("unknown")
	assert.Error(t, err, "Unknown is not addressable by name")
}

func TestType_YAML(t *testing.T) {
	var doc struct {
		Accepts []item.Type `yaml:"accepts"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("accepts: [STONE, iron, ANY]"), &doc))
	assert.Equal(t, []item.Type{item.Stone, item.Iron, item.Any}, doc.Accepts)

	err := yaml.Unmarshal([]byte("accepts: [WOOD]"), &doc)
	assert.Error(t, err)
}

func TestType_IsConcrete(t *testing.T) {
	assert.False(t, item.Unknown.IsConcrete())
	assert.False(t, item.Any.IsConcrete())
	for _, ty := range item.ConcreteTypes() {
		assert.True(t, ty.IsConcrete(), ty.String())
	}
}

func TestStack_Clip(t *testing.T) {
	s := item.NewStack(item.Stone, 5)
	assert.Equal(t, 3, s.Clip(3).Amount)
	assert.Equal(t, 5, s.Clip(10).Amount)
	assert.Equal(t, 0, s.Clip(-1).Amount)
	assert.Equal(t, 5, s.Amount, "Clip must not mutate the receiver")
	assert.Equal(t, "STONEx5", s.String())
}
