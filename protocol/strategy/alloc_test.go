// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package strategy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/protocol/errs"
)

func vec(amounts ...int64) []*big.Int {
	out := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		out[i] = big.NewInt(a)
	}
	return out
}

func TestReachTargetMixedFlow(t *testing.T) {
	got := ReachTarget(
		vec(120000, 210000, 230000, 130000, 90000),
		vec(210000, 110000, 180000, 130000, 120000),
	)
	assert.Equal(t, vec(210000, 130000, 190000, 130000, 120000), got)
}

func TestReachTargetPureOutflow(t *testing.T) {
	got := ReachTarget(vec(147000, 63000), vec(175000, 75000))
	assert.Equal(t, vec(147000, 63000), got)
}

func TestReachTargetOutflowDustSkipsSettledEntry(t *testing.T) {
	// the trailing adjustable entry already sits at its target; the
	// rounding dust must not shrink it below its locked amount
	got := ReachTarget(
		vec(93, 96, 100, 55),
		vec(100, 100, 100, 50),
	)
	assert.Equal(t, vec(97, 97, 100, 50), got)
	assert.Equal(t, sumAmounts(vec(93, 96, 100, 55)), sumAmounts(got))
}

func TestReachTargetFreshInflow(t *testing.T) {
	// nothing locked yet, every entry reaches its target
	got := ReachTarget(vec(700000, 300000), vec(0, 0))
	assert.Equal(t, vec(700000, 300000), got)
}

func TestReachTargetConservation(t *testing.T) {
	cases := []struct {
		desired, locked []*big.Int
	}{
		{vec(120000, 210000, 230000, 130000, 90000), vec(210000, 110000, 180000, 130000, 120000)},
		{vec(100, 200, 300), vec(50, 400, 100)},
		{vec(1, 1, 1), vec(0, 0, 3)},
		{vec(500000), vec(100000)},
	}
	for _, c := range cases {
		got := ReachTarget(c.desired, c.locked)
		assert.Equal(t, sumAmounts(c.desired), sumAmounts(got), "desired %v locked %v", c.desired, c.locked)
	}
}

func TestReachTargetNoFlow(t *testing.T) {
	got := ReachTarget(vec(100, 200), vec(100, 200))
	assert.Equal(t, vec(100, 200), got)
}

func TestLowestCombinationSingleCover(t *testing.T) {
	got, selected, err := LowestCombination(big.NewInt(19000), vec(65000, 26000, 19500, 11000, 6500))
	require.NoError(t, err)
	assert.Equal(t, vec(65000, 26000, 0, 11000, 6500), got)
	assert.Equal(t, []int{2}, selected)
}

func TestLowestCombinationFallsBackToLargest(t *testing.T) {
	// no single entry covers 30000: the largest is taken first, then
	// the smallest entry covering the remainder
	got, selected, err := LowestCombination(big.NewInt(30000), vec(10000, 20000, 5000))
	require.NoError(t, err)
	assert.Equal(t, vec(0, 0, 5000), got)
	assert.Equal(t, []int{1, 0}, selected)
}

func TestLowestCombinationFirstWinsTies(t *testing.T) {
	got, selected, err := LowestCombination(big.NewInt(100), vec(100, 100, 100))
	require.NoError(t, err)
	assert.Equal(t, vec(0, 100, 100), got)
	assert.Equal(t, []int{0}, selected)
}

func TestLowestCombinationExceedsLocked(t *testing.T) {
	_, _, err := LowestCombination(big.NewInt(50000), vec(10000, 20000))
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeOutflowExceedsLocked))
}
