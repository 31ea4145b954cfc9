package tree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrune_ScenarioFromSpec(t *testing.T) {
	// Branch([(1,Leaf(1)),(2,Branch([(2,Leaf(2)),(3,Leaf(3)),(4,Branch([]))])),(1,Branch([]))]).prune()
	// -> Branch([(1,Leaf(1)),(2,Branch([(2,Leaf(2)),(3,Leaf(3))]))])
	inner := Branch([]WeightedChild[int]{
		{Weight: 2, Child: Leaf(2)},
		{Weight: 3, Child: Leaf(3)},
		{Weight: 4, Child: Branch[int](nil)},
	})
	full := Branch([]WeightedChild[int]{
		{Weight: 1, Child: Leaf(1)},
		{Weight: 2, Child: inner},
		{Weight: 1, Child: Branch[int](nil)},
	})

	pruned := full.Prune()
	require.Len(t, pruned.children, 2)
	assert.Equal(t, uint16(1), pruned.children[0].Weight)
	assert.True(t, pruned.children[0].Child.IsLeaf())
	assert.Equal(t, uint16(2), pruned.children[1].Weight)
	require.Len(t, pruned.children[1].Child.children, 2)
}

func TestPrune_Idempotent(t *testing.T) {
	full := Branch([]WeightedChild[int]{
		{Weight: 1, Child: Leaf(1)},
		{Weight: 1, Child: Branch[int](nil)},
	})
	once := full.Prune()
	twice := once.Prune()
	assert.Equal(t, once, twice)
}

func TestPrune_AllEmptyCollapsesToEmpty(t *testing.T) {
	full := Branch([]WeightedChild[int]{
		{Weight: 1, Child: Branch[int](nil)},
		{Weight: 2, Child: Branch([]WeightedChild[int]{{Weight: 1, Child: Branch[int](nil)}})},
	})
	pruned := full.Prune()
	assert.True(t, pruned.IsEmpty())
}

func TestPick_EmptyTreeReturnsFalse(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, ok := Branch[int](nil).Pick(rng)
	assert.False(t, ok)
}

func TestPick_SingleLeafAlwaysReturnsThatLeaf(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	v, ok := Leaf(42).Pick(rng)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestPick_OnlyReturnsLeavesPresentInTree(t *testing.T) {
	present := map[int]bool{1: true, 2: true, 3: true}
	full := Branch([]WeightedChild[int]{
		{Weight: 1, Child: Leaf(1)},
		{Weight: 5, Child: Leaf(2)},
		{Weight: 2, Child: Leaf(3)},
	})

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v, ok := full.Pick(rng)
		require.True(t, ok)
		assert.True(t, present[v])
	}
}

func TestMerge_EqualWeights(t *testing.T) {
	merged := Merge([]Tree[int]{Leaf(1), Leaf(2)}, 1)
	require.Len(t, merged.children, 2)
	assert.Equal(t, uint16(1), merged.children[0].Weight)
	assert.Equal(t, uint16(1), merged.children[1].Weight)
}

func TestMap_RewritesEveryLeafPreservingShape(t *testing.T) {
	full := Branch([]WeightedChild[int]{
		{Weight: 1, Child: Leaf(1)},
		{Weight: 2, Child: Branch([]WeightedChild[int]{
			{Weight: 3, Child: Leaf(2)},
		})},
	})

	doubled := Map(full, func(v int) int { return v * 2 })

	require.Len(t, doubled.children, 2)
	v, ok := doubled.children[0].Child.Pick(nil)
	require.True(t, ok)
	assert.Equal(t, 2, v)
	require.Len(t, doubled.children[1].Child.children, 1)
	v, ok = doubled.children[1].Child.children[0].Child.Pick(nil)
	require.True(t, ok)
	assert.Equal(t, 4, v)
}
