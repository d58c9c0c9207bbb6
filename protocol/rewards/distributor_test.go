// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package rewards

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/protocol/ftoken"
	"github.com/stackingdao/core/protocol/ledger"
	"github.com/stackingdao/core/protocol/pools"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

type testEnv struct {
	dist   *Distributor
	shares *ftoken.Token
	asset  *ftoken.Token
	ledger *ledger.Service
	pools  *pools.Service

	pool   sdao.Address
	funder sdao.Address
}

func newTestEnv(t *testing.T, commissionBps uint32) *testEnv {
	st := state.New(kv.NewMem())

	shares := ftoken.New("ststx", sdao.BytesToAddress([]byte("ststx-token")), st)
	asset := ftoken.New("stx", sdao.BytesToAddress([]byte("stx-rewards-asset")), st)
	ldg := ledger.New(store.NewContext(sdao.BytesToAddress([]byte("share-ledger")), st))
	pls := pools.New(store.NewContext(sdao.BytesToAddress([]byte("pool-registry")), st))

	pool := sdao.BytesToAddress([]byte("pool-1"))
	require.NoError(t, pls.SetPool(pool, pools.Pool{ShareBps: 10000}, nil))
	require.NoError(t, pls.SetStandardCommissionBps(commissionBps))

	dist := New(sdao.BytesToAddress([]byte("stx-distributor")), st, asset, shares, ldg, pls)

	funder := sdao.BytesToAddress([]byte("funder"))
	require.NoError(t, asset.Mint(funder, big.NewInt(1_000_000)))

	return &testEnv{
		dist:   dist,
		shares: shares,
		asset:  asset,
		ledger: ldg,
		pools:  pls,
		pool:   pool,
		funder: funder,
	}
}

// hold gives the holder a recorded balance in its own wallet sub-ledger
// and mints matching liquid supply.
func (e *testEnv) hold(t *testing.T, holder sdao.Address, amount int64) {
	require.NoError(t, e.shares.Mint(holder, big.NewInt(amount)))
	require.NoError(t, e.ledger.SetAmount(holder, holder, big.NewInt(amount)))
}

func TestProportionalDistribution(t *testing.T) {
	env := newTestEnv(t, 500)

	a := sdao.BytesToAddress([]byte("holder-a"))
	b := sdao.BytesToAddress([]byte("holder-b"))
	c := sdao.BytesToAddress([]byte("holder-c"))
	env.hold(t, a, 70000)
	env.hold(t, b, 20000)
	env.hold(t, c, 10000)

	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(1000)))

	commission, err := env.dist.TotalCommission()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(50), commission)

	for holder, want := range map[sdao.Address]int64{a: 665, b: 190, c: 95} {
		pending, err := env.dist.GetPendingRewards(holder, holder)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(want), pending)
	}

	left, err := env.dist.TotalRewardsLeft()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(950), left)

	// claim pays out and drains the pending bucket
	paid, err := env.dist.ClaimPendingRewards(a, a)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(665), paid)

	bal, err := env.asset.BalanceOf(a)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(665), bal)

	// idempotent: second claim yields 0
	paid, err = env.dist.ClaimPendingRewards(a, a)
	require.NoError(t, err)
	assert.Zero(t, paid.Sign())

	left, err = env.dist.TotalRewardsLeft()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(285), left)
}

func TestConservation(t *testing.T) {
	env := newTestEnv(t, 500)

	a := sdao.BytesToAddress([]byte("holder-a"))
	b := sdao.BytesToAddress([]byte("holder-b"))
	env.hold(t, a, 60000)
	env.hold(t, b, 40000)

	added := int64(0)
	for _, amount := range []int64{1000, 333, 7777} {
		require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(amount)))
		added += amount
	}
	// interleave a save so realized-but-unclaimed is exercised
	_, err := env.dist.SavePendingRewards(b, b)
	require.NoError(t, err)
	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(500)))
	added += 500

	claimedA, err := env.dist.ClaimPendingRewards(a, a)
	require.NoError(t, err)
	claimedB, err := env.dist.ClaimPendingRewards(b, b)
	require.NoError(t, err)

	commission, err := env.dist.TotalCommission()
	require.NoError(t, err)
	left, err := env.dist.TotalRewardsLeft()
	require.NoError(t, err)

	total := new(big.Int).Add(claimedA, claimedB)
	total.Add(total, left)
	total.Add(total, commission)
	// everything adds up, modulo integer division dust left in the index
	assert.True(t, total.Cmp(big.NewInt(added)) <= 0)
	diff := new(big.Int).Sub(big.NewInt(added), total)
	assert.True(t, diff.Cmp(big.NewInt(4)) <= 0, "dust too large: %v", diff)
}

func TestFreezeTogglesNeverDoublePay(t *testing.T) {
	env := newTestEnv(t, 0)

	position := sdao.BytesToAddress([]byte("position"))
	holder := sdao.BytesToAddress([]byte("holder"))
	require.NoError(t, env.shares.Mint(position, big.NewInt(50000)))
	require.NoError(t, env.ledger.SetAmount(position, holder, big.NewInt(50000)))

	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(100)))
	pending, err := env.dist.GetPendingRewards(holder, position)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), pending)

	paid, err := env.dist.ClaimPendingRewards(holder, position)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), paid)

	// rewards added while frozen are never attributed to the position
	require.NoError(t, env.dist.FreezePosition(position))
	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(200)))
	pending, err = env.dist.GetPendingRewards(holder, position)
	require.NoError(t, err)
	assert.Zero(t, pending.Sign())

	// unfreezing does not back-pay the frozen window
	require.NoError(t, env.dist.UnfreezePosition(position))
	pending, err = env.dist.GetPendingRewards(holder, position)
	require.NoError(t, err)
	assert.Zero(t, pending.Sign())

	// accrual resumes on subsequent adds
	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(300)))
	pending, err = env.dist.GetPendingRewards(holder, position)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), pending)

	// freeze and unfreeze are no-ops when already in that state
	require.NoError(t, env.dist.UnfreezePosition(position))
	require.NoError(t, env.dist.FreezePosition(position))
	require.NoError(t, env.dist.FreezePosition(position))
	require.NoError(t, env.dist.UnfreezePosition(position))
	pending, err = env.dist.GetPendingRewards(holder, position)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(300), pending)
}

func TestZeroSupplyHeldUndistributed(t *testing.T) {
	env := newTestEnv(t, 0)

	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(500)))

	undistributed, err := env.dist.Undistributed()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(500), undistributed)

	cumm, err := env.dist.CummRewardPerShare()
	require.NoError(t, err)
	assert.Zero(t, cumm.Sign())

	left, err := env.dist.TotalRewardsLeft()
	require.NoError(t, err)
	assert.Zero(t, left.Sign())
}

func TestOwnerCommissionPaidImmediately(t *testing.T) {
	env := newTestEnv(t, 500)

	owner := sdao.BytesToAddress([]byte("pool-owner"))
	pool := sdao.BytesToAddress([]byte("owned-pool"))
	require.NoError(t, env.pools.SetPool(pool, pools.Pool{
		ShareBps:      10000,
		HasCommission: true,
		CommissionBps: 3000,
		Owner:         pools.OwnerCommission{Receiver: owner, ShareBps: 2000},
	}, nil))

	holder := sdao.BytesToAddress([]byte("holder"))
	env.hold(t, holder, 100000)

	require.NoError(t, env.dist.AddRewards(env.funder, pool, big.NewInt(1000)))

	// commission 300, owner takes 20% of it up front
	bal, err := env.asset.BalanceOf(owner)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(60), bal)

	commission, err := env.dist.TotalCommission()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(240), commission)

	pending, err := env.dist.GetPendingRewards(holder, holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(700), pending)
}

func TestCommissionCap(t *testing.T) {
	env := newTestEnv(t, 500)

	pool := sdao.BytesToAddress([]byte("greedy-pool"))
	require.NoError(t, env.pools.SetPool(pool, pools.Pool{
		ShareBps:      10000,
		HasCommission: true,
		CommissionBps: 9000,
	}, nil))

	holder := sdao.BytesToAddress([]byte("holder"))
	env.hold(t, holder, 100000)

	require.NoError(t, env.dist.AddRewards(env.funder, pool, big.NewInt(1000)))

	commission, err := env.dist.TotalCommission()
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(400), commission)
}

func TestClaimsCircuitBreaker(t *testing.T) {
	env := newTestEnv(t, 0)

	holder := sdao.BytesToAddress([]byte("holder"))
	env.hold(t, holder, 10000)
	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(100)))

	env.dist.SetClaimsEnabled(false)
	_, err := env.dist.ClaimPendingRewards(holder, holder)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeClaimsDisabled))

	// entitlement is kept while disabled, only payout is blocked
	saved, err := env.dist.SavePendingRewards(holder, holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), saved)

	env.dist.SetClaimsEnabled(true)
	paid, err := env.dist.ClaimPendingRewards(holder, holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), paid)
}

func TestSaveThenClaim(t *testing.T) {
	env := newTestEnv(t, 0)

	holder := sdao.BytesToAddress([]byte("holder"))
	env.hold(t, holder, 10000)

	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(100)))

	saved, err := env.dist.SavePendingRewards(holder, holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), saved)

	// idempotent: nothing new to save
	saved, err = env.dist.SavePendingRewards(holder, holder)
	require.NoError(t, err)
	assert.Zero(t, saved.Sign())

	balance, err := env.dist.SavedRewards(holder, holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), balance)

	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(50)))

	// claim pays saved plus newly pending in one go
	paid, err := env.dist.ClaimPendingRewards(holder, holder)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(150), paid)
}

func TestPendingBatchBound(t *testing.T) {
	env := newTestEnv(t, 0)

	holder := sdao.BytesToAddress([]byte("holder"))
	env.hold(t, holder, 10000)
	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(100)))

	entries := make([]Entry, sdao.MaxPendingBatch+1)
	for i := range entries {
		entries[i] = Entry{Holder: holder, Position: holder}
	}
	_, err := env.dist.GetPendingRewardsMany(entries)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeBatchTooLarge))

	out, err := env.dist.GetPendingRewardsMany(entries[:3])
	require.NoError(t, err)
	require.Len(t, out, 3)
	for _, pending := range out {
		assert.Equal(t, big.NewInt(100), pending)
	}
}

func TestWithdrawCommission(t *testing.T) {
	env := newTestEnv(t, 1000)

	holder := sdao.BytesToAddress([]byte("holder"))
	env.hold(t, holder, 10000)
	require.NoError(t, env.dist.AddRewards(env.funder, env.pool, big.NewInt(1000)))

	sink := sdao.BytesToAddress([]byte("commission-sink"))
	paid, err := env.dist.WithdrawCommission(sink)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), paid)

	bal, err := env.asset.BalanceOf(sink)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), bal)

	// drained; a second withdraw moves nothing
	paid, err = env.dist.WithdrawCommission(sink)
	require.NoError(t, err)
	assert.Zero(t, paid.Sign())
}
