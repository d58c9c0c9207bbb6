// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pools

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

func newTestService(t *testing.T) *Service {
	db := kv.NewMem()
	st := state.New(db)
	return New(store.NewContext(sdao.BytesToAddress([]byte("pool-registry")), st))
}

func TestPoolRegistration(t *testing.T) {
	svc := newTestService(t)

	poolA := sdao.BytesToAddress([]byte("pool-a"))
	poolB := sdao.BytesToAddress([]byte("pool-b"))
	del1 := sdao.BytesToAddress([]byte("delegate-1"))
	del2 := sdao.BytesToAddress([]byte("delegate-2"))

	_, err := svc.Get(poolA)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeUnknownPool))

	require.NoError(t, svc.SetPool(poolA, Pool{
		ShareBps:  7000,
		Delegates: []sdao.Address{del1, del2},
		Owner: OwnerCommission{
			Receiver: sdao.BytesToAddress([]byte("owner-a")),
			ShareBps: 1500,
		},
	}, map[sdao.Address]uint32{del1: 6000, del2: 4000}))
	require.NoError(t, svc.SetPool(poolB, Pool{ShareBps: 3000}, nil))

	ids, err := svc.List()
	require.NoError(t, err)
	assert.Equal(t, []sdao.Address{poolA, poolB}, ids)

	pool, err := svc.Get(poolA)
	require.NoError(t, err)
	assert.Equal(t, uint32(7000), pool.ShareBps)
	assert.Equal(t, []sdao.Address{del1, del2}, pool.Delegates)

	entry, err := svc.GetDelegate(del1)
	require.NoError(t, err)
	assert.Equal(t, uint32(6000), entry.ShareBps)
	assert.Equal(t, poolA, entry.LastSelectedPool)
	assert.Zero(t, entry.TargetLocked.Sign())

	// replacing a pool keeps its declared position
	require.NoError(t, svc.SetPool(poolA, Pool{ShareBps: 6500, Delegates: []sdao.Address{del1}},
		map[sdao.Address]uint32{del1: 10000}))
	ids, err = svc.List()
	require.NoError(t, err)
	assert.Equal(t, []sdao.Address{poolA, poolB}, ids)
}

func TestDelegateExecutionRecords(t *testing.T) {
	svc := newTestService(t)

	pool := sdao.BytesToAddress([]byte("pool"))
	del := sdao.BytesToAddress([]byte("delegate"))
	require.NoError(t, svc.SetPool(pool, Pool{ShareBps: 10000, Delegates: []sdao.Address{del}},
		map[sdao.Address]uint32{del: 10000}))

	require.NoError(t, svc.SetDelegateTarget(del, big.NewInt(150000)))
	require.NoError(t, svc.RecordExecution(del, big.NewInt(149000), big.NewInt(1000)))

	entry, err := svc.GetDelegate(del)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(150000), entry.TargetLocked)
	assert.Equal(t, big.NewInt(149000), entry.LastLocked)
	assert.Equal(t, big.NewInt(1000), entry.LastUnlocked)
}

func TestCommissionResolution(t *testing.T) {
	svc := newTestService(t)

	require.NoError(t, svc.SetStandardCommissionBps(500))
	standard, err := svc.StandardCommissionBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(500), standard)

	plain := &Pool{ShareBps: 10000}
	assert.Equal(t, uint32(500), plain.EffectiveCommissionBps(standard))

	override := &Pool{ShareBps: 10000, HasCommission: true, CommissionBps: 1000}
	assert.Equal(t, uint32(1000), override.EffectiveCommissionBps(standard))

	// the cap applies to overrides and to the standard rate alike
	greedy := &Pool{ShareBps: 10000, HasCommission: true, CommissionBps: 9000}
	assert.Equal(t, uint32(sdao.MaxCommissionBps), greedy.EffectiveCommissionBps(standard))

	assert.Error(t, svc.SetStandardCommissionBps(10001))
}
