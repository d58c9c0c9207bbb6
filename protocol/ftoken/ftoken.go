// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ftoken implements the fungible ledgers of the protocol: the
// liquid receipt token and the reward assets. Balances live in the
// component's storage; a refresh hook lets the reward distributors
// settle pending entitlement before any balance mutation takes effect.
package ftoken

import (
	"math/big"

	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

var (
	slotSupply   = sdao.BytesToBytes32([]byte("total-supply"))
	slotBalances = sdao.BytesToBytes32([]byte("balances"))
)

// RefreshFunc is called before a balance mutation becomes visible.
// holder is the affected account, newBalance the balance that will be
// in effect after the mutation. Reward attribution must always be
// computed against the balance that was in effect while rewards
// accrued, so implementations settle at the previously recorded
// balance and only then record newBalance.
type RefreshFunc func(holder sdao.Address, newBalance *big.Int) error

// Token is one fungible ledger instance.
type Token struct {
	symbol   string
	context  *store.Context
	supply   *store.Uint256
	balances *store.Mapping[sdao.Address, *big.Int]
	hook     RefreshFunc
}

// New creates a token ledger owned by the component at addr.
func New(symbol string, addr sdao.Address, st *state.State) *Token {
	context := store.NewContext(addr, st)
	return &Token{
		symbol:   symbol,
		context:  context,
		supply:   store.NewUint256(context, slotSupply),
		balances: store.NewMapping[sdao.Address, *big.Int](context, slotBalances),
	}
}

// SetRefreshHook installs the refresh hook. Only the protocol facade
// calls this during wiring.
func (t *Token) SetRefreshHook(hook RefreshFunc) {
	t.hook = hook
}

func (t *Token) Symbol() string {
	return t.symbol
}

// Address returns the ledger's owning component account.
func (t *Token) Address() sdao.Address {
	return t.context.Address()
}

// TotalSupply returns the token total supply.
func (t *Token) TotalSupply() (*big.Int, error) {
	return t.supply.Get()
}

// BalanceOf returns the balance of the holder.
func (t *Token) BalanceOf(holder sdao.Address) (*big.Int, error) {
	bal, err := t.balances.Get(holder)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return new(big.Int), nil
	}
	return bal, nil
}

func (t *Token) refresh(holder sdao.Address, newBalance *big.Int) error {
	if t.hook == nil {
		return nil
	}
	return t.hook(holder, newBalance)
}

// Mint creates amount for receiver.
func (t *Token) Mint(receiver sdao.Address, amount *big.Int) error {
	bal, err := t.BalanceOf(receiver)
	if err != nil {
		return err
	}
	newBal := new(big.Int).Add(bal, amount)
	if err := t.refresh(receiver, newBal); err != nil {
		return err
	}
	if err := t.balances.Set(receiver, newBal); err != nil {
		return err
	}
	return t.supply.Add(amount)
}

// Burn destroys amount held by holder.
func (t *Token) Burn(holder sdao.Address, amount *big.Int) error {
	bal, err := t.BalanceOf(holder)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return errs.Newf(errs.CodeInsufficientBalance, "%s: burn %v exceeds balance %v", t.symbol, amount, bal)
	}
	newBal := new(big.Int).Sub(bal, amount)
	if err := t.refresh(holder, newBal); err != nil {
		return err
	}
	if err := t.balances.Set(holder, newBal); err != nil {
		return err
	}
	return t.supply.Sub(amount)
}

// Transfer moves amount from one holder to another.
func (t *Token) Transfer(from, to sdao.Address, amount *big.Int) error {
	if from == to || amount.Sign() == 0 {
		return nil
	}
	fromBal, err := t.BalanceOf(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return errs.Newf(errs.CodeInsufficientBalance, "%s: transfer %v exceeds balance %v", t.symbol, amount, fromBal)
	}
	toBal, err := t.BalanceOf(to)
	if err != nil {
		return err
	}

	newFrom := new(big.Int).Sub(fromBal, amount)
	newTo := new(big.Int).Add(toBal, amount)
	if err := t.refresh(from, newFrom); err != nil {
		return err
	}
	if err := t.refresh(to, newTo); err != nil {
		return err
	}
	if err := t.balances.Set(from, newFrom); err != nil {
		return err
	}
	return t.balances.Set(to, newTo)
}
