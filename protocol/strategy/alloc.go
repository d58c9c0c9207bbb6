// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package strategy

import (
	"math/big"

	"github.com/stackingdao/core/protocol/errs"
)

// ReachTarget resolves desired allocations against currently locked
// amounts under the constraint that locked capital cannot be reduced
// before its unlock height within the flow direction of this pass.
//
// On net inflow, entries whose desired amount is below their locked
// amount are pinned at locked and the inflow is distributed over the
// remaining entries pro-rata by their distance to target. Net outflow
// is symmetric: entries wanting to grow are pinned, the outflow is
// taken pro-rata from shrinkable entries. Rounding dust lands on the
// trailing adjustable entries that still have gap left to absorb it,
// so no entry moves past its own target. Inputs and output share the
// same declared order; the output sums to the total desired amount.
func ReachTarget(desired, locked []*big.Int) []*big.Int {
	n := len(desired)
	out := make([]*big.Int, n)

	totalDesired := sumAmounts(desired)
	totalLocked := sumAmounts(locked)
	inflow := totalDesired.Cmp(totalLocked) >= 0

	gaps := make([]*big.Int, n)
	sumGaps := new(big.Int)
	for i := 0; i < n; i++ {
		var gap *big.Int
		if inflow {
			gap = new(big.Int).Sub(desired[i], locked[i])
		} else {
			gap = new(big.Int).Sub(locked[i], desired[i])
		}
		if gap.Sign() < 0 {
			// pinned: cannot move against the flow direction
			out[i] = new(big.Int).Set(locked[i])
			continue
		}
		gaps[i] = gap
		sumGaps.Add(sumGaps, gap)
	}

	flow := new(big.Int).Sub(totalDesired, totalLocked)
	flow.Abs(flow)

	distributed := new(big.Int)
	for i := 0; i < n; i++ {
		if gaps[i] == nil {
			continue
		}
		share := new(big.Int)
		if sumGaps.Sign() > 0 {
			share.Mul(flow, gaps[i])
			share.Div(share, sumGaps)
		}
		if inflow {
			out[i] = new(big.Int).Add(locked[i], share)
		} else {
			out[i] = new(big.Int).Sub(locked[i], share)
		}
		distributed.Add(distributed, share)
	}

	// the summed gaps of adjustable entries always cover the flow, so
	// walking them back to front places all of the dust
	dust := new(big.Int).Sub(flow, distributed)
	for i := n - 1; i >= 0 && dust.Sign() > 0; i-- {
		if gaps[i] == nil {
			continue
		}
		var room *big.Int
		if inflow {
			room = new(big.Int).Sub(desired[i], out[i])
		} else {
			room = new(big.Int).Sub(out[i], desired[i])
		}
		if room.Sign() <= 0 {
			continue
		}
		if room.Cmp(dust) > 0 {
			room.Set(dust)
		}
		if inflow {
			out[i].Add(out[i], room)
		} else {
			out[i].Sub(out[i], room)
		}
		dust.Sub(dust, room)
	}
	return out
}

// LowestCombination selects delegates to fully unlock so that their
// summed locked amounts cover outflow. The scan is deterministic over
// the declared order: each round picks the smallest single entry that
// covers the remainder, or the largest entry if none does, first match
// winning ties. Selected entries are zeroed in the returned vector;
// no entry is partially reduced. This minimizes the number of external
// unstake calls, not the total capital moved.
func LowestCombination(outflow *big.Int, locked []*big.Int) ([]*big.Int, []int, error) {
	total := sumAmounts(locked)
	if total.Cmp(outflow) < 0 {
		return nil, nil, errs.Newf(errs.CodeOutflowExceedsLocked,
			"outflow %v exceeds total locked %v", outflow, total)
	}

	out := make([]*big.Int, len(locked))
	for i, amt := range locked {
		out[i] = new(big.Int).Set(amt)
	}

	chosen := make(map[int]bool)
	var selected []int
	needed := new(big.Int).Set(outflow)
	for needed.Sign() > 0 {
		bestIdx := -1
		bestCovers := false
		for i, amt := range out {
			if chosen[i] || amt.Sign() == 0 {
				continue
			}
			covers := amt.Cmp(needed) >= 0
			switch {
			case bestIdx == -1:
				bestIdx, bestCovers = i, covers
			case covers && !bestCovers:
				bestIdx, bestCovers = i, true
			case covers && bestCovers && amt.Cmp(out[bestIdx]) < 0:
				bestIdx = i
			case !covers && !bestCovers && amt.Cmp(out[bestIdx]) > 0:
				bestIdx = i
			}
		}
		if bestIdx < 0 {
			break
		}
		chosen[bestIdx] = true
		selected = append(selected, bestIdx)
		needed.Sub(needed, out[bestIdx])
	}

	for _, i := range selected {
		out[i] = new(big.Int)
	}
	return out, selected, nil
}

func sumAmounts(amounts []*big.Int) *big.Int {
	sum := new(big.Int)
	for _, amt := range amounts {
		sum.Add(sum, amt)
	}
	return sum
}
