// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package strategy

import (
	"math/big"

	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/store"
)

var (
	slotCycleRecord = sdao.BytesToBytes32([]byte("cycle-record"))
	slotPoolRecords = sdao.BytesToBytes32([]byte("pool-records"))
)

// State is the per-cycle progress of the allocation state machine.
type State uint8

const (
	StateIdle State = iota
	StatePreparedPool
	StatePreparedDelegates
	StateExecuted
)

func (s State) String() string {
	switch s {
	case StatePreparedPool:
		return "prepared-pool"
	case StatePreparedDelegates:
		return "prepared-delegates"
	case StateExecuted:
		return "executed"
	default:
		return "idle"
	}
}

// cycleRecord is the global progress marker; a new cycle implicitly
// resets the machine to idle.
type cycleRecord struct {
	Cycle uint64
	State State
}

// poolRecord is one pool's progress within a cycle plus its prepared
// target.
type poolRecord struct {
	Cycle  uint64
	State  State
	Target *big.Int
}

func (r *poolRecord) normalize() {
	if r.Target == nil {
		r.Target = new(big.Int)
	}
}

type storage struct {
	cycle *store.Mapping[staticKey, cycleRecord]
	pools *store.Mapping[sdao.Address, poolRecord]
}

// staticKey addresses the single global record slot.
type staticKey struct{}

func (staticKey) Bytes() []byte { return []byte("global") }

func newStorage(sctx *store.Context) *storage {
	return &storage{
		cycle: store.NewMapping[staticKey, cycleRecord](sctx, slotCycleRecord),
		pools: store.NewMapping[sdao.Address, poolRecord](sctx, slotPoolRecords),
	}
}
