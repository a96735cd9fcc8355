package config

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestIntValue_Literal(t *testing.T) {
	var v IntValue
	require.NoError(t, yaml.Unmarshal([]byte("42"), &v))
	assert.False(t, v.IsRandom())
	assert.True(t, v.IsSet())
	assert.Equal(t, 42, v.Resolve(nil))
}

func TestIntValue_UniformRange(t *testing.T) {
	var v IntValue
	require.NoError(t, yaml.Unmarshal([]byte("min: 3\nmax: 5\n"), &v))
	assert.True(t, v.IsRandom())
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		got := v.Resolve(rng)
		assert.GreaterOrEqual(t, got, 3)
		assert.LessOrEqual(t, got, 5)
	}
}

func TestIntValue_NormalDistribution(t *testing.T) {
	var v IntValue
	require.NoError(t, yaml.Unmarshal([]byte("type: normal\nmean: 10\nvariance: 0\n"), &v))
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 10, v.Resolve(rng), "zero variance must always resolve to the mean")
}

func TestIntValue_List(t *testing.T) {
	var v IntValue
	require.NoError(t, yaml.Unmarshal([]byte("list: [1, 2, 3]\n"), &v))
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		got := v.Resolve(rng)
		assert.Contains(t, []int{1, 2, 3}, got)
	}
}

func TestIntValue_NilIsUnsetAndZero(t *testing.T) {
	var v *IntValue
	assert.False(t, v.IsSet())
	assert.False(t, v.IsRandom())
	assert.Equal(t, 0, v.Resolve(nil))
}

func TestStringValue_Literal(t *testing.T) {
	var v StringValue
	require.NoError(t, yaml.Unmarshal([]byte("bass"), &v))
	assert.False(t, v.IsRandom())
	assert.Equal(t, "bass", v.Resolve(nil))
}

func TestStringValue_PipeSeparatedList(t *testing.T) {
	var v StringValue
	require.NoError(t, yaml.Unmarshal([]byte("list: \"a|b|c\"\n"), &v))
	assert.True(t, v.IsRandom())
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		assert.Contains(t, []string{"a", "b", "c"}, v.Resolve(rng))
	}
}

func TestStringValue_SequenceList(t *testing.T) {
	var v StringValue
	require.NoError(t, yaml.Unmarshal([]byte("list: [x, y]\n"), &v))
	assert.True(t, v.IsRandom())
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		assert.Contains(t, []string{"x", "y"}, v.Resolve(rng))
	}
}
