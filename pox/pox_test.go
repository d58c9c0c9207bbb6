// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package pox

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/sdao"
)

func TestCycleArithmetic(t *testing.T) {
	p := Params{FirstBurnHeight: 1000, CycleLength: 100, PrepareLength: 10}

	assert.Equal(t, uint64(0), p.CycleOf(1000))
	assert.Equal(t, uint64(0), p.CycleOf(1099))
	assert.Equal(t, uint64(1), p.CycleOf(1100))
	assert.Equal(t, uint64(5), p.CycleOf(1500))

	assert.Equal(t, uint64(1000), p.StartOf(0))
	assert.Equal(t, uint64(1300), p.StartOf(3))

	assert.False(t, p.InPreparePhase(1050))
	assert.True(t, p.InPreparePhase(1090))
	assert.True(t, p.InPreparePhase(1099))
}

func TestSimulatorLockFlow(t *testing.T) {
	sim := NewSimulator(TestParams, big.NewInt(50000))
	delegate := sdao.BytesToAddress([]byte("delegate-1"))

	_, err := sim.Lock(delegate, big.NewInt(60000), 1)
	assert.Error(t, err, "nothing delegated yet")

	require.NoError(t, sim.Delegate(delegate, big.NewInt(100000), 0))

	_, err = sim.Lock(delegate, big.NewInt(40000), 1)
	assert.Error(t, err, "below minimum")

	locked, err := sim.Lock(delegate, big.NewInt(60000), 1)
	require.NoError(t, err)
	assert.Equal(t, "60000", locked.String())

	require.NoError(t, sim.Extend(delegate, 2))

	sim.AddReward(delegate, big.NewInt(700))
	_, unlocked, err := sim.Account(delegate)
	require.NoError(t, err)
	assert.Equal(t, "700", unlocked.String())

	released, err := sim.Unlock(delegate)
	require.NoError(t, err)
	assert.Equal(t, "60000", released.String())

	locked2, unlocked, err := sim.Account(delegate)
	require.NoError(t, err)
	assert.Equal(t, "0", locked2.String())
	assert.Equal(t, "60700", unlocked.String())

	assert.Error(t, sim.Withdraw(delegate, big.NewInt(60701)), "exceeds unlocked")
	require.NoError(t, sim.Withdraw(delegate, big.NewInt(700)))

	_, unlocked, err = sim.Account(delegate)
	require.NoError(t, err)
	assert.Equal(t, "60000", unlocked.String())
}
