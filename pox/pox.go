// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pox abstracts the chain's native stacking primitive.
// The protocol core only sees the Stacker interface plus cycle
// arithmetic derived from the reward-cycle constants.
package pox

import (
	"math/big"

	"github.com/stackingdao/core/sdao"
)

// Params carries the reward-cycle constants of the native primitive.
type Params struct {
	FirstBurnHeight uint64 // burn height at which cycle 0 started
	CycleLength     uint64 // reward cycle length in burn blocks
	PrepareLength   uint64 // prepare phase length in burn blocks
}

// MainnetParams mirrors the production PoX constants.
var MainnetParams = Params{
	FirstBurnHeight: 666050,
	CycleLength:     2100,
	PrepareLength:   100,
}

// TestParams keeps the numbers small for tests and solo mode.
var TestParams = Params{
	FirstBurnHeight: 0,
	CycleLength:     2100,
	PrepareLength:   100,
}

// CycleOf returns the reward cycle the given burn height falls into.
func (p Params) CycleOf(burnHeight uint64) uint64 {
	if burnHeight < p.FirstBurnHeight {
		return 0
	}
	return (burnHeight - p.FirstBurnHeight) / p.CycleLength
}

// StartOf returns the first burn height of the given cycle.
func (p Params) StartOf(cycle uint64) uint64 {
	return p.FirstBurnHeight + cycle*p.CycleLength
}

// InPreparePhase reports whether the burn height is inside the prepare
// phase preceding the next cycle.
func (p Params) InPreparePhase(burnHeight uint64) bool {
	next := p.CycleOf(burnHeight) + 1
	return burnHeight+p.PrepareLength >= p.StartOf(next)
}

// Stacker is the native stacking primitive. Amounts are micro-STX.
// Burn-height gated failures are passed through with the primitive's
// own error.
type Stacker interface {
	// Delegate registers or replaces the delegation of amount to the
	// delegate sub-account, valid until untilBurnHeight.
	Delegate(delegate sdao.Address, amount *big.Int, untilBurnHeight uint64) error

	// Revoke removes the delegation; locked funds stay locked until
	// their cycle ends.
	Revoke(delegate sdao.Address) error

	// Lock commits amount behind the delegate for the given cycle and
	// returns the realized locked amount, which may differ from the
	// request because of the primitive's minimum and rounding.
	Lock(delegate sdao.Address, amount *big.Int, cycle uint64) (*big.Int, error)

	// Extend keeps the delegate's current lock in place for the cycle.
	Extend(delegate sdao.Address, cycle uint64) error

	// Unlock releases all expired locks of the delegate and returns
	// the released amount.
	Unlock(delegate sdao.Address) (*big.Int, error)

	// Account returns the delegate's locked and unlocked balances.
	// Unlocked funds in excess of the tracked principal are native
	// stacking rewards.
	Account(delegate sdao.Address) (locked, unlocked *big.Int, err error)

	// Withdraw moves amount out of the delegate's unlocked balance
	// back into the caller's custody. Fails when the unlocked balance
	// cannot cover the amount.
	Withdraw(delegate sdao.Address, amount *big.Int) error

	// MinimumAmount is the smallest lockable amount of the primitive.
	MinimumAmount() (*big.Int, error)
}
