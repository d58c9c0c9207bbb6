// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package config loads the YAML deployment description: cycle
// parameters, pool registry and protocol settings. A loaded config is
// validated once and then applied onto a protocol instance.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/protocol/pools"
	"github.com/stackingdao/core/sdao"
)

// Config is the full deployment description.
type Config struct {
	Params                Params   `yaml:"params"`
	CommissionSink        string   `yaml:"commissionSink"`
	StandardCommissionBps uint32   `yaml:"standardCommissionBps"`
	WithdrawalOffset      uint64   `yaml:"withdrawalOffset"`
	UnstakeFeeBps         uint32   `yaml:"unstakeFeeBps"`
	Admins                []string `yaml:"admins"`
	Pools                 []Pool   `yaml:"pools"`
}

// Params are the burn chain cycle parameters.
type Params struct {
	FirstBurnHeight uint64 `yaml:"firstBurnHeight"`
	CycleLength     uint64 `yaml:"cycleLength"`
	PrepareLength   uint64 `yaml:"prepareLength"`
}

// Pool is one stacking pool entry.
type Pool struct {
	ID            string     `yaml:"id"`
	ShareBps      uint32     `yaml:"shareBps"`
	CommissionBps *uint32    `yaml:"commissionBps,omitempty"`
	Owner         *Owner     `yaml:"owner,omitempty"`
	Delegates     []Delegate `yaml:"delegates"`
}

// Owner routes a share of the pool's commission to its operator.
type Owner struct {
	Receiver string `yaml:"receiver"`
	ShareBps uint32 `yaml:"shareBps"`
}

// Delegate is one delegate sub-account of a pool.
type Delegate struct {
	ID       string `yaml:"id"`
	ShareBps uint32 `yaml:"shareBps"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse decodes and validates config bytes. Unknown fields are
// rejected.
func Parse(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// PoxParams returns the cycle parameters, defaulting to the test
// parameters when the section is absent.
func (c *Config) PoxParams() pox.Params {
	if c.Params.CycleLength == 0 {
		return pox.TestParams
	}
	return pox.Params{
		FirstBurnHeight: c.Params.FirstBurnHeight,
		CycleLength:     c.Params.CycleLength,
		PrepareLength:   c.Params.PrepareLength,
	}
}

// Validate checks internal consistency without touching protocol
// state.
func (c *Config) Validate() error {
	if c.Params.CycleLength != 0 && c.Params.PrepareLength >= c.Params.CycleLength {
		return errors.New("params: prepare length must be shorter than the cycle")
	}
	if c.StandardCommissionBps > sdao.BpsDenominator {
		return errors.Errorf("standard commission %d bps out of range", c.StandardCommissionBps)
	}
	if c.UnstakeFeeBps > sdao.BpsDenominator {
		return errors.Errorf("unstake fee %d bps out of range", c.UnstakeFeeBps)
	}
	if c.WithdrawalOffset != 0 && c.WithdrawalOffset < sdao.MinWithdrawalOffset {
		return errors.Errorf("withdrawal offset %d below minimum %d", c.WithdrawalOffset, sdao.MinWithdrawalOffset)
	}
	if c.CommissionSink != "" {
		if _, err := sdao.ParseAddress(c.CommissionSink); err != nil {
			return errors.WithMessage(err, "commission sink")
		}
	}
	for i, admin := range c.Admins {
		if _, err := sdao.ParseAddress(admin); err != nil {
			return errors.WithMessagef(err, "admin %d", i)
		}
	}

	seen := make(map[string]bool, len(c.Pools))
	var totalShare uint64
	for _, pool := range c.Pools {
		if _, err := sdao.ParseAddress(pool.ID); err != nil {
			return errors.WithMessagef(err, "pool %s", pool.ID)
		}
		if seen[pool.ID] {
			return errors.Errorf("pool %s declared twice", pool.ID)
		}
		seen[pool.ID] = true

		totalShare += uint64(pool.ShareBps)
		if pool.CommissionBps != nil && *pool.CommissionBps > sdao.BpsDenominator {
			return errors.Errorf("pool %s: commission %d bps out of range", pool.ID, *pool.CommissionBps)
		}
		if pool.Owner != nil {
			if _, err := sdao.ParseAddress(pool.Owner.Receiver); err != nil {
				return errors.WithMessagef(err, "pool %s owner", pool.ID)
			}
			if pool.Owner.ShareBps > sdao.BpsDenominator {
				return errors.Errorf("pool %s: owner share %d bps out of range", pool.ID, pool.Owner.ShareBps)
			}
		}
		if len(pool.Delegates) == 0 {
			return errors.Errorf("pool %s has no delegates", pool.ID)
		}
		var delegateShare uint64
		for _, delegate := range pool.Delegates {
			if _, err := sdao.ParseAddress(delegate.ID); err != nil {
				return errors.WithMessagef(err, "pool %s delegate", pool.ID)
			}
			delegateShare += uint64(delegate.ShareBps)
		}
		if delegateShare != sdao.BpsDenominator {
			return errors.Errorf("pool %s: delegate shares add up to %d bps, want %d", pool.ID, delegateShare, sdao.BpsDenominator)
		}
	}
	if totalShare > sdao.BpsDenominator {
		return errors.Errorf("pool shares add up to %d bps, exceeding %d", totalShare, sdao.BpsDenominator)
	}
	return nil
}

// Apply writes the config onto a protocol instance. caller must be
// the protocol owner.
func (c *Config) Apply(p *protocol.Protocol, caller sdao.Address) error {
	for _, admin := range c.Admins {
		if err := p.SetAdmin(caller, sdao.MustParseAddress(admin), true); err != nil {
			return err
		}
	}
	if c.CommissionSink != "" {
		if err := p.SetCommissionSink(caller, sdao.MustParseAddress(c.CommissionSink)); err != nil {
			return err
		}
	}
	if err := p.SetStandardCommissionBps(caller, c.StandardCommissionBps); err != nil {
		return err
	}
	if c.WithdrawalOffset != 0 {
		if err := p.SetWithdrawalOffset(caller, c.WithdrawalOffset); err != nil {
			return err
		}
	}
	if c.UnstakeFeeBps != 0 {
		if err := p.SetUnstakeFeeBps(caller, c.UnstakeFeeBps); err != nil {
			return err
		}
	}

	for _, entry := range c.Pools {
		pool := pools.Pool{ShareBps: entry.ShareBps}
		if entry.CommissionBps != nil {
			pool.CommissionBps = *entry.CommissionBps
			pool.HasCommission = true
		}
		if entry.Owner != nil {
			pool.Owner = pools.OwnerCommission{
				Receiver: sdao.MustParseAddress(entry.Owner.Receiver),
				ShareBps: entry.Owner.ShareBps,
			}
		}
		shares := make(map[sdao.Address]uint32, len(entry.Delegates))
		for _, delegate := range entry.Delegates {
			id := sdao.MustParseAddress(delegate.ID)
			pool.Delegates = append(pool.Delegates, id)
			shares[id] = delegate.ShareBps
		}
		if err := p.SetPool(caller, sdao.MustParseAddress(entry.ID), pool, shares); err != nil {
			return err
		}
	}
	return p.Commit()
}
