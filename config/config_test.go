// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package config

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
)

const sampleConfig = `
params:
  firstBurnHeight: 0
  cycleLength: 2100
  prepareLength: 100
commissionSink: "0x0000000000000000000000000000000073696e6b"
standardCommissionBps: 500
withdrawalOffset: 2
unstakeFeeBps: 25
admins:
  - "0x0000000000000000000000000061646d696e2d31"
pools:
  - id: "0x000000000000000000000000000000706f6f6c41"
    shareBps: 7000
    owner:
      receiver: "0x00000000000000000000000000006f776e657241"
      shareBps: 1000
    delegates:
      - id: "0x0000000000000000000064656c65676174652d31"
        shareBps: 6000
      - id: "0x0000000000000000000064656c65676174652d32"
        shareBps: 4000
  - id: "0x000000000000000000000000000000706f6f6c42"
    shareBps: 3000
    commissionBps: 800
    delegates:
      - id: "0x0000000000000000000064656c65676174652d33"
        shareBps: 10000
`

func TestParseSample(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, uint64(2100), cfg.Params.CycleLength)
	assert.Equal(t, uint32(500), cfg.StandardCommissionBps)
	require.Len(t, cfg.Pools, 2)
	assert.Nil(t, cfg.Pools[0].CommissionBps)
	require.NotNil(t, cfg.Pools[1].CommissionBps)
	assert.Equal(t, uint32(800), *cfg.Pools[1].CommissionBps)
	assert.Equal(t, pox.Params{CycleLength: 2100, PrepareLength: 100}, cfg.PoxParams())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("params:\n  cycleLenght: 2100\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(*Config)
		wantErr string
	}{
		{"delegate shares short", func(c *Config) {
			c.Pools[1].Delegates[0].ShareBps = 9000
		}, "delegate shares"},
		{"pool shares exceed denominator", func(c *Config) {
			c.Pools[0].ShareBps = 9000
		}, "pool shares"},
		{"duplicate pool", func(c *Config) {
			c.Pools[1].ID = c.Pools[0].ID
		}, "declared twice"},
		{"offset below minimum", func(c *Config) {
			c.WithdrawalOffset = 1
		}, "withdrawal offset"},
		{"fee out of range", func(c *Config) {
			c.UnstakeFeeBps = 10001
		}, "unstake fee"},
		{"bad address", func(c *Config) {
			c.CommissionSink = "not-an-address"
		}, "commission sink"},
		{"no delegates", func(c *Config) {
			c.Pools[0].Delegates = nil
		}, "no delegates"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(sampleConfig))
			require.NoError(t, err)
			tt.mangle(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.wantErr), err.Error())
		})
	}
}

func TestApply(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	owner := sdao.BytesToAddress([]byte("owner"))
	st := state.New(kv.NewMem())
	sim := pox.NewSimulator(cfg.PoxParams(), big.NewInt(50000))
	p, err := protocol.New(st, sim, cfg.PoxParams(), owner)
	require.NoError(t, err)

	require.NoError(t, cfg.Apply(p, owner))

	ids, err := p.Pools().List()
	require.NoError(t, err)
	require.Len(t, ids, 2)

	poolA, err := p.Pools().Get(ids[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(7000), poolA.ShareBps)
	require.Len(t, poolA.Delegates, 2)
	assert.Equal(t, uint32(1000), poolA.Owner.ShareBps)

	standard, err := p.Pools().StandardCommissionBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(500), standard)
	assert.Equal(t, uint32(500), poolA.EffectiveCommissionBps(standard))

	poolB, err := p.Pools().Get(ids[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(800), poolB.EffectiveCommissionBps(standard))

	fee, err := p.Withdrawals().UnstakeFeeBps()
	require.NoError(t, err)
	assert.Equal(t, uint32(25), fee)

	// applied admins can drive the cycle
	admin := sdao.MustParseAddress("0x0000000000000000000000000061646d696e2d31")
	assert.NoError(t, p.PreparePools(admin, 1))
}
