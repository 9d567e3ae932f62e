package state

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowAccumulator_AbsorbAppends(t *testing.T) {
	acc := NewWindowAccumulator()

	acc.Absorb(Snapshot{"A": {HeartRates: []int{70, 72}}})
	acc.Absorb(Snapshot{"A": {HeartRates: []int{74}, LastDistance: intp(80)}})
	acc.Absorb(Snapshot{"A": {HeartRates: []int{}}})

	snap := acc.Snapshot()
	require.Contains(t, snap, "A")
	e := snap["A"]
	assert.Equal(t, []int{70, 72, 74}, e.HeartRates)
	assert.Equal(t, 72, *Average(e.HeartRates))
	assert.Nil(t, Average(e.BreathRates))
	assert.Equal(t, 80, *e.LastDistance)
	assert.Equal(t, 3, e.Minutes)
}

func TestWindowAccumulator_CommitClearsConsumed(t *testing.T) {
	acc := NewWindowAccumulator()
	acc.Absorb(Snapshot{"A": {HeartRates: []int{70}}, "B": {BreathRates: []int{16}}})

	consumed := acc.Snapshot()
	require.NoError(t, acc.Commit(consumed))

	assert.Empty(t, acc.Rooms())
	assert.Empty(t, acc.Snapshot())
}

func TestWindowAccumulator_CommitKeepsDataAbsorbedDuringFlush(t *testing.T) {
	acc := NewWindowAccumulator()
	acc.Absorb(Snapshot{"A": {HeartRates: []int{70, 72}, BreathRates: []int{15}}})

	consumed := acc.Snapshot()

	// 写库期间分钟周期又吸收了一分钟
	acc.Absorb(Snapshot{"A": {HeartRates: []int{90}, LastDistance: intp(50)}, "B": {HeartRates: []int{60}}})

	require.NoError(t, acc.Commit(consumed))

	left := acc.Snapshot()
	require.Contains(t, left, "A")
	assert.Equal(t, []int{90}, left["A"].HeartRates)
	assert.Empty(t, left["A"].BreathRates)
	assert.Equal(t, 50, *left["A"].LastDistance)
	assert.Equal(t, 1, left["A"].Minutes)
	assert.Equal(t, []int{60}, left["B"].HeartRates)
}

func TestWindowAccumulator_CommitDropsConsumedDistance(t *testing.T) {
	acc := NewWindowAccumulator()
	acc.Absorb(Snapshot{"A": {HeartRates: []int{70}, LastDistance: intp(100)}})

	consumed := acc.Snapshot()
	acc.Absorb(Snapshot{"A": {HeartRates: []int{80}}})
	require.NoError(t, acc.Commit(consumed))

	next := acc.Snapshot()
	require.Contains(t, next, "A")
	assert.Equal(t, []int{80}, next["A"].HeartRates)
	assert.Nil(t, next["A"].LastDistance)

	// 之后的分钟带来新距离，下一次提交后仍能正确清除
	acc.Absorb(Snapshot{"A": {LastDistance: intp(120)}})
	consumed = acc.Snapshot()
	acc.Absorb(Snapshot{"A": {HeartRates: []int{81}}})
	acc.Absorb(Snapshot{"A": {LastDistance: intp(130)}})
	require.NoError(t, acc.Commit(consumed))

	next = acc.Snapshot()
	require.NotNil(t, next["A"].LastDistance)
	assert.Equal(t, 130, *next["A"].LastDistance)
	assert.Equal(t, 2, next["A"].Minutes)
}

func TestWindowAccumulator_CommitInvariant(t *testing.T) {
	acc := NewWindowAccumulator()

	err := acc.Commit(map[string]WindowEntry{"GHOST": {Minutes: 1}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWindowInvariant))

	acc.Absorb(Snapshot{"A": {HeartRates: []int{70}}})
	err = acc.Commit(map[string]WindowEntry{"A": {HeartRates: []int{1, 2}, Minutes: 1}})
	assert.True(t, errors.Is(err, ErrWindowInvariant))
}

func intp(v int) *int { return &v }
