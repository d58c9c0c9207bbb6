// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pools

import (
	"encoding/binary"
	"math/big"

	"github.com/stackingdao/core/sdao"
)

var (
	slotPools      = sdao.BytesToBytes32([]byte("pools"))
	slotPoolCount  = sdao.BytesToBytes32([]byte("pool-count"))
	slotPoolIndex  = sdao.BytesToBytes32([]byte("pool-by-index"))
	slotDelegates  = sdao.BytesToBytes32([]byte("delegates"))
	slotCommission = sdao.BytesToBytes32([]byte("standard-commission"))
)

type indexKey uint64

func (k indexKey) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b[:]
}

// OwnerCommission routes a share of a pool's commission to the pool owner.
type OwnerCommission struct {
	Receiver sdao.Address
	ShareBps uint32
}

// Pool is a registered stacking pool with its share weight, commission
// settings and its delegates in declared order.
type Pool struct {
	ShareBps      uint32
	CommissionBps uint32
	HasCommission bool // CommissionBps overrides the standard commission
	Owner         OwnerCommission
	Delegates     []sdao.Address
}

// EffectiveCommissionBps resolves the pool's commission against the
// standard rate and caps the result.
func (p *Pool) EffectiveCommissionBps(standardBps uint32) uint32 {
	bps := standardBps
	if p.HasCommission {
		bps = p.CommissionBps
	}
	if bps > sdao.MaxCommissionBps {
		bps = sdao.MaxCommissionBps
	}
	return bps
}

// Delegate is a sub-account of a pool against which capital is locked.
// TargetLocked is the amount the current cycle's allocation wants
// locked; LastLocked and LastUnlocked record the realized outcome of
// the latest external stacking call.
type Delegate struct {
	ShareBps         uint32
	LastSelectedPool sdao.Address
	TargetLocked     *big.Int
	LastLocked       *big.Int
	LastUnlocked     *big.Int
}

func (d *Delegate) normalize() {
	if d.TargetLocked == nil {
		d.TargetLocked = new(big.Int)
	}
	if d.LastLocked == nil {
		d.LastLocked = new(big.Int)
	}
	if d.LastUnlocked == nil {
		d.LastUnlocked = new(big.Int)
	}
}
