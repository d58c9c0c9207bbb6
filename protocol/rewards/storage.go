// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rewards

import (
	"math/big"

	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/store"
)

var (
	slotCumm           = sdao.BytesToBytes32([]byte("cumm-reward-per-share"))
	slotCommission     = sdao.BytesToBytes32([]byte("total-commission"))
	slotRewardsLeft    = sdao.BytesToBytes32([]byte("total-rewards-left"))
	slotUndistributed  = sdao.BytesToBytes32([]byte("undistributed"))
	slotClaimsDisabled = sdao.BytesToBytes32([]byte("claims-disabled"))
	slotBaselines      = sdao.BytesToBytes32([]byte("baselines"))
	slotSaved          = sdao.BytesToBytes32([]byte("saved"))
	slotFreezes        = sdao.BytesToBytes32([]byte("freezes"))
)

// freeze tracks a position's view of the reward index. While frozen the
// position's effective index is pinned at Frozen; Offset accumulates
// the index growth the position sat out, so unfreezing resumes accrual
// without back-pay.
type freeze struct {
	Offset   *big.Int
	Frozen   *big.Int
	IsFrozen bool
}

func (f *freeze) normalize() {
	if f.Offset == nil {
		f.Offset = new(big.Int)
	}
	if f.Frozen == nil {
		f.Frozen = new(big.Int)
	}
}

type storage struct {
	cumm           *store.Uint256
	commission     *store.Uint256
	rewardsLeft    *store.Uint256
	undistributed  *store.Uint256
	claimsDisabled *store.Bool
	baselines      *store.Mapping[sdao.Bytes32, *big.Int]
	saved          *store.Mapping[sdao.Bytes32, *big.Int]
	freezes        *store.Mapping[sdao.Address, freeze]
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		cumm:           store.NewUint256(sctx, slotCumm),
		commission:     store.NewUint256(sctx, slotCommission),
		rewardsLeft:    store.NewUint256(sctx, slotRewardsLeft),
		undistributed:  store.NewUint256(sctx, slotUndistributed),
		claimsDisabled: store.NewBool(sctx, slotClaimsDisabled),
		baselines:      store.NewMapping[sdao.Bytes32, *big.Int](sctx, slotBaselines),
		saved:          store.NewMapping[sdao.Bytes32, *big.Int](sctx, slotSaved),
		freezes:        store.NewMapping[sdao.Address, freeze](sctx, slotFreezes),
	}
}

func (s *storage) getBaseline(key sdao.Bytes32) (*big.Int, error) {
	baseline, err := s.baselines.Get(key)
	if err != nil {
		return nil, err
	}
	if baseline == nil {
		return new(big.Int), nil
	}
	return baseline, nil
}

func (s *storage) getSaved(key sdao.Bytes32) (*big.Int, error) {
	saved, err := s.saved.Get(key)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		return new(big.Int), nil
	}
	return saved, nil
}
