package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64nBounds(t *testing.T) {
	for _, n := range []uint64{1, 2, 3, 7, 37, 52, 1 << 40} {
		for i := 0; i < 200; i++ {
			v, err := Uint64n(n)
			require.NoError(t, err)
			assert.Less(t, v, n)
		}
	}
	_, err := Uint64n(0)
	assert.Error(t, err)
}

func TestSpinWheelUniform(t *testing.T) {
	const slots = 37
	const trials = 37000
	counts := make([]int, slots)
	for i := 0; i < trials; i++ {
		v, err := SpinWheel(slots)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 0)
		require.Less(t, v, slots)
		counts[v]++
	}
	// 期望每槽约 1000 次；宽松界限（约 ±5 个标准差）验证无明显偏置，
	// 特别是拒绝采样应消除的低值偏置
	expected := trials / slots
	for slot, n := range counts {
		assert.Greater(t, n, expected/2, "slot %d starved: %d", slot, n)
		assert.Less(t, n, expected*2, "slot %d inflated: %d", slot, n)
	}
	// 低半区/高半区占比接近（模偏置会使低半区系统性偏多）
	low := 0
	for slot := 0; slot < slots/2; slot++ {
		low += counts[slot]
	}
	ratio := float64(low) / float64(trials)
	assert.InDelta(t, float64(slots/2)/float64(slots), ratio, 0.02)
}

func TestSpinWheelInvalid(t *testing.T) {
	_, err := SpinWheel(0)
	assert.Error(t, err)
	_, err = SpinWheel(1)
	assert.Error(t, err)
}

func TestRollDice(t *testing.T) {
	for i := 0; i < 500; i++ {
		dice, err := RollDice(3, 6)
		require.NoError(t, err)
		require.Len(t, dice, 3)
		for _, d := range dice {
			assert.GreaterOrEqual(t, d, 1)
			assert.LessOrEqual(t, d, 6)
		}
	}

	// 每个面都应出现（独立均匀）
	seen := map[int]bool{}
	for i := 0; i < 600; i++ {
		dice, err := RollDice(1, 6)
		require.NoError(t, err)
		seen[dice[0]] = true
	}
	assert.Len(t, seen, 6)

	_, err := RollDice(0, 6)
	assert.Error(t, err)
	_, err = RollDice(3, 1)
	assert.Error(t, err)
}
