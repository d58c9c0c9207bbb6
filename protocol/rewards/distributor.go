// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package rewards implements the reward distributor: bulk reward
// deposits tagged by source pool are split into commission, pool-owner
// cut and staker share, and the staker share advances a cumulative
// reward-per-share index consumed lazily per holder. The protocol runs
// one distributor instance per reward asset; instances share the share
// ledger but keep independent indices.
package rewards

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/metrics"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/protocol/ftoken"
	"github.com/stackingdao/core/protocol/ledger"
	"github.com/stackingdao/core/protocol/pools"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

var logger = log.WithContext("pkg", "rewards")

var (
	metricRewardsAdded   = metrics.LazyLoadCounterVec("rewards_added_count", []string{"asset"})
	metricRewardsClaimed = metrics.LazyLoadCounterVec("rewards_claimed_count", []string{"asset"})
	metricPendingBatch   = metrics.LazyLoadHistogram("rewards_pending_batch_size", []int64{1, 10, 50, 100, 200})
)

// Entry addresses one holder sub-ledger entry in a pending query.
type Entry struct {
	Holder   sdao.Address `json:"holder"`
	Position sdao.Address `json:"position"`
}

// Distributor distributes one reward asset. Its own account is the
// custody for received rewards until they are claimed.
type Distributor struct {
	storage *storage
	context *store.Context

	asset  *ftoken.Token // reward asset ledger
	shares *ftoken.Token // liquid token, source of total supply
	ledger *ledger.Service
	pools  *pools.Service
}

// New creates a distributor instance owned by the component at addr.
func New(
	addr sdao.Address,
	st *state.State,
	asset *ftoken.Token,
	shares *ftoken.Token,
	ldg *ledger.Service,
	pls *pools.Service,
) *Distributor {
	sctx := store.NewContext(addr, st)
	return &Distributor{
		storage: newStorage(sctx),
		context: sctx,
		asset:   asset,
		shares:  shares,
		ledger:  ldg,
		pools:   pls,
	}
}

// Asset returns the reward asset ledger this instance distributes.
func (d *Distributor) Asset() *ftoken.Token {
	return d.asset
}

// Custody returns the account holding received rewards.
func (d *Distributor) Custody() sdao.Address {
	return d.context.Address()
}

// effectiveCumm resolves the reward index as seen by the position:
// pinned while frozen, otherwise the raw index minus the growth the
// position sat out across past frozen windows.
func (d *Distributor) effectiveCumm(position sdao.Address) (*big.Int, error) {
	raw, err := d.storage.cumm.Get()
	if err != nil {
		return nil, err
	}
	f, err := d.storage.freezes.Get(position)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get position freeze")
	}
	f.normalize()
	if f.IsFrozen {
		return f.Frozen, nil
	}
	return raw.Sub(raw, f.Offset), nil
}

// AddRewards books a bulk reward deposit attributed to pool, moving
// amount of the reward asset from funder into custody. The commission
// split is applied first; the remainder advances the reward index.
// With zero liquid supply the remainder is held undistributed.
func (d *Distributor) AddRewards(funder, pool sdao.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return nil
	}
	entry, err := d.pools.Get(pool)
	if err != nil {
		return err
	}
	standard, err := d.pools.StandardCommissionBps()
	if err != nil {
		return err
	}

	if err := d.asset.Transfer(funder, d.Custody(), amount); err != nil {
		return err
	}

	bps := entry.EffectiveCommissionBps(standard)
	commission := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	commission.Div(commission, big.NewInt(sdao.BpsDenominator))

	ownerCut := new(big.Int).Mul(commission, big.NewInt(int64(entry.Owner.ShareBps)))
	ownerCut.Div(ownerCut, big.NewInt(sdao.BpsDenominator))
	if ownerCut.Sign() > 0 && !entry.Owner.Receiver.IsZero() {
		if err := d.asset.Transfer(d.Custody(), entry.Owner.Receiver, ownerCut); err != nil {
			return err
		}
	}
	if err := d.storage.commission.Add(new(big.Int).Sub(commission, ownerCut)); err != nil {
		return err
	}

	protocolAmount := new(big.Int).Sub(amount, commission)
	supply, err := d.shares.TotalSupply()
	if err != nil {
		return err
	}
	if supply.Sign() == 0 {
		// No shares to attribute to. The amount stays in custody,
		// booked separately so it is not silently lost.
		if err := d.storage.undistributed.Add(protocolAmount); err != nil {
			return err
		}
		logger.Warn("rewards added with zero supply, held undistributed",
			"asset", d.asset.Symbol(), "amount", protocolAmount)
		return nil
	}

	increment := new(big.Int).Mul(protocolAmount, sdao.RewardScale)
	increment.Div(increment, supply)
	if err := d.storage.cumm.Add(increment); err != nil {
		return err
	}
	if err := d.storage.rewardsLeft.Add(protocolAmount); err != nil {
		return err
	}

	metricRewardsAdded().AddWithLabel(protocolAmount.Int64(), map[string]string{"asset": d.asset.Symbol()})
	logger.Debug("rewards added",
		"asset", d.asset.Symbol(), "pool", pool, "amount", amount, "commission", commission)
	return nil
}

// GetPendingRewards returns the holder's unrealized entitlement in the
// position sub-ledger. Pure read.
func (d *Distributor) GetPendingRewards(holder, position sdao.Address) (*big.Int, error) {
	amount, err := d.ledger.GetAmount(position, holder)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return new(big.Int), nil
	}
	eff, err := d.effectiveCumm(position)
	if err != nil {
		return nil, err
	}
	baseline, err := d.storage.getBaseline(ledger.EntryKey(position, holder))
	if err != nil {
		return nil, err
	}
	delta := new(big.Int).Sub(eff, baseline)
	if delta.Sign() <= 0 {
		return new(big.Int), nil
	}
	pending := delta.Mul(delta, amount)
	return pending.Div(pending, sdao.RewardScale), nil
}

// GetPendingRewardsMany resolves pending entitlement for a bounded
// batch of entries.
func (d *Distributor) GetPendingRewardsMany(entries []Entry) ([]*big.Int, error) {
	if len(entries) > sdao.MaxPendingBatch {
		return nil, errs.Newf(errs.CodeBatchTooLarge,
			"batch of %d exceeds maximum %d", len(entries), sdao.MaxPendingBatch)
	}
	metricPendingBatch().Observe(int64(len(entries)))

	out := make([]*big.Int, len(entries))
	for i, e := range entries {
		pending, err := d.GetPendingRewards(e.Holder, e.Position)
		if err != nil {
			return nil, err
		}
		out[i] = pending
	}
	return out, nil
}

// settle realizes pending entitlement at the current recorded balance
// and re-baselines, so a following settle in the same state yields 0.
func (d *Distributor) settle(holder, position sdao.Address) (*big.Int, error) {
	pending, err := d.GetPendingRewards(holder, position)
	if err != nil {
		return nil, err
	}
	eff, err := d.effectiveCumm(position)
	if err != nil {
		return nil, err
	}
	if err := d.storage.baselines.Set(ledger.EntryKey(position, holder), eff); err != nil {
		return nil, errors.Wrap(err, "failed to set baseline")
	}
	if pending.Sign() > 0 {
		if err := d.storage.rewardsLeft.Sub(pending); err != nil {
			return nil, err
		}
	}
	return pending, nil
}

// SavePendingRewards realizes pending entitlement into the holder's
// saved balance without paying it out. Idempotent. This is also the
// settlement step of every balance-changing refresh: it must run
// before the share ledger records the new balance.
func (d *Distributor) SavePendingRewards(holder, position sdao.Address) (*big.Int, error) {
	pending, err := d.settle(holder, position)
	if err != nil {
		return nil, err
	}
	if pending.Sign() == 0 {
		return pending, nil
	}
	key := ledger.EntryKey(position, holder)
	saved, err := d.storage.getSaved(key)
	if err != nil {
		return nil, err
	}
	saved.Add(saved, pending)
	if err := d.storage.saved.Set(key, saved); err != nil {
		return nil, errors.Wrap(err, "failed to set saved rewards")
	}
	return pending, nil
}

// ClaimPendingRewards pays out pending plus previously saved
// entitlement to the holder. Idempotent. Fails while claims are
// disabled; entitlement is kept, only payout is blocked.
func (d *Distributor) ClaimPendingRewards(holder, position sdao.Address) (*big.Int, error) {
	enabled, err := d.ClaimsEnabled()
	if err != nil {
		return nil, err
	}
	if !enabled {
		return nil, errs.New(errs.CodeClaimsDisabled, "claims are disabled")
	}

	pending, err := d.settle(holder, position)
	if err != nil {
		return nil, err
	}
	key := ledger.EntryKey(position, holder)
	saved, err := d.storage.getSaved(key)
	if err != nil {
		return nil, err
	}
	total := pending.Add(pending, saved)
	if total.Sign() == 0 {
		return total, nil
	}
	d.storage.saved.Delete(key)

	if err := d.asset.Transfer(d.Custody(), holder, total); err != nil {
		return nil, err
	}
	metricRewardsClaimed().AddWithLabel(total.Int64(), map[string]string{"asset": d.asset.Symbol()})
	logger.Debug("rewards claimed",
		"asset", d.asset.Symbol(), "holder", holder, "position", position, "amount", total)
	return total, nil
}

// FreezePosition pins the position's effective reward index. No-op if
// already frozen.
func (d *Distributor) FreezePosition(position sdao.Address) error {
	f, err := d.storage.freezes.Get(position)
	if err != nil {
		return errors.Wrap(err, "failed to get position freeze")
	}
	f.normalize()
	if f.IsFrozen {
		return nil
	}
	eff, err := d.effectiveCumm(position)
	if err != nil {
		return err
	}
	f.Frozen = eff
	f.IsFrozen = true
	return d.storage.freezes.Set(position, f)
}

// UnfreezePosition resumes accrual from the current index forward.
// Index growth during the frozen window is never back-paid.
func (d *Distributor) UnfreezePosition(position sdao.Address) error {
	f, err := d.storage.freezes.Get(position)
	if err != nil {
		return errors.Wrap(err, "failed to get position freeze")
	}
	f.normalize()
	if !f.IsFrozen {
		return nil
	}
	raw, err := d.storage.cumm.Get()
	if err != nil {
		return err
	}
	f.Offset = raw.Sub(raw, f.Frozen)
	f.IsFrozen = false
	return d.storage.freezes.Set(position, f)
}

// WithdrawCommission pays the accrued protocol commission to sink and
// returns the amount paid.
func (d *Distributor) WithdrawCommission(sink sdao.Address) (*big.Int, error) {
	commission, err := d.storage.commission.Get()
	if err != nil {
		return nil, err
	}
	if commission.Sign() == 0 {
		return commission, nil
	}
	if err := d.asset.Transfer(d.Custody(), sink, commission); err != nil {
		return nil, err
	}
	d.storage.commission.Set(new(big.Int))
	return commission, nil
}

// SetClaimsEnabled toggles the payout circuit breaker.
func (d *Distributor) SetClaimsEnabled(enabled bool) {
	d.storage.claimsDisabled.Set(!enabled)
}

// ClaimsEnabled reports whether payouts are currently allowed.
func (d *Distributor) ClaimsEnabled() (bool, error) {
	disabled, err := d.storage.claimsDisabled.Get()
	return !disabled, err
}

// CummRewardPerShare returns the raw reward index, scaled by 1e18.
func (d *Distributor) CummRewardPerShare() (*big.Int, error) {
	return d.storage.cumm.Get()
}

// TotalRewardsLeft returns the distributed-but-unrealized total.
func (d *Distributor) TotalRewardsLeft() (*big.Int, error) {
	return d.storage.rewardsLeft.Get()
}

// TotalCommission returns the accrued, not yet withdrawn commission.
func (d *Distributor) TotalCommission() (*big.Int, error) {
	return d.storage.commission.Get()
}

// Undistributed returns rewards received while the liquid supply was
// zero. They stay in custody and never advance the index.
func (d *Distributor) Undistributed() (*big.Int, error) {
	return d.storage.undistributed.Get()
}

// SavedRewards returns the holder's realized but unclaimed balance.
func (d *Distributor) SavedRewards(holder, position sdao.Address) (*big.Int, error) {
	return d.storage.getSaved(ledger.EntryKey(position, holder))
}
