// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pox

import (
	"math/big"
	"sync"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/sdao"
)

type simAccount struct {
	delegated *big.Int
	locked    *big.Int
	unlocked  *big.Int
	lockCycle uint64
}

// Simulator is an in-memory Stacker used in tests and solo mode.
type Simulator struct {
	mu       sync.Mutex
	params   Params
	minimum  *big.Int
	accounts map[sdao.Address]*simAccount
}

var _ Stacker = (*Simulator)(nil)

// NewSimulator creates a stacking simulator with the given minimum lockable amount.
func NewSimulator(params Params, minimum *big.Int) *Simulator {
	return &Simulator{
		params:   params,
		minimum:  new(big.Int).Set(minimum),
		accounts: make(map[sdao.Address]*simAccount),
	}
}

func (s *Simulator) account(delegate sdao.Address) *simAccount {
	acc, ok := s.accounts[delegate]
	if !ok {
		acc = &simAccount{
			delegated: new(big.Int),
			locked:    new(big.Int),
			unlocked:  new(big.Int),
		}
		s.accounts[delegate] = acc
	}
	return acc
}

func (s *Simulator) Delegate(delegate sdao.Address, amount *big.Int, _ uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account(delegate).delegated.Set(amount)
	return nil
}

func (s *Simulator) Revoke(delegate sdao.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account(delegate).delegated.SetInt64(0)
	return nil
}

func (s *Simulator) Lock(delegate sdao.Address, amount *big.Int, cycle uint64) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if amount.Cmp(s.minimum) < 0 {
		return nil, errors.New("pox: amount below stacking minimum")
	}
	acc := s.account(delegate)
	if amount.Cmp(acc.delegated) > 0 {
		return nil, errors.New("pox: amount exceeds delegated")
	}
	// re-locking consumes released funds still sitting on the account
	if acc.unlocked.Sign() > 0 {
		take := new(big.Int).Set(amount)
		if take.Cmp(acc.unlocked) > 0 {
			take.Set(acc.unlocked)
		}
		acc.unlocked.Sub(acc.unlocked, take)
	}
	acc.locked.Set(amount)
	acc.lockCycle = cycle
	return new(big.Int).Set(acc.locked), nil
}

func (s *Simulator) Extend(delegate sdao.Address, cycle uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(delegate)
	if acc.locked.Sign() == 0 {
		return errors.New("pox: nothing locked")
	}
	acc.lockCycle = cycle
	return nil
}

func (s *Simulator) Unlock(delegate sdao.Address) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(delegate)
	released := new(big.Int).Set(acc.locked)
	acc.unlocked.Add(acc.unlocked, released)
	acc.locked.SetInt64(0)
	return released, nil
}

func (s *Simulator) Account(delegate sdao.Address) (*big.Int, *big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(delegate)
	return new(big.Int).Set(acc.locked), new(big.Int).Set(acc.unlocked), nil
}

func (s *Simulator) MinimumAmount() (*big.Int, error) {
	return new(big.Int).Set(s.minimum), nil
}

// AddReward credits a native stacking reward to the delegate's
// unlocked balance. Test helper.
func (s *Simulator) AddReward(delegate sdao.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.account(delegate).unlocked.Add(s.account(delegate).unlocked, amount)
}

// Withdraw drains amount from the delegate's unlocked balance,
// simulating a transfer back to the reserve.
func (s *Simulator) Withdraw(delegate sdao.Address, amount *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc := s.account(delegate)
	if acc.unlocked.Cmp(amount) < 0 {
		return errors.New("pox: withdraw exceeds unlocked balance")
	}
	acc.unlocked.Sub(acc.unlocked, amount)
	return nil
}
