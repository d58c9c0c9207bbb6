// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pools keeps the registry of stacking pools and their
// delegates. Pools are enumerated in declared order, which the
// allocation strategy relies on for reproducible outputs.
package pools

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/store"
)

// Service manages pool and delegate entries.
type Service struct {
	pools      *store.Mapping[sdao.Address, Pool]
	poolCount  *store.Uint64
	poolIndex  *store.Mapping[indexKey, sdao.Address]
	delegates  *store.Mapping[sdao.Address, Delegate]
	commission *store.Uint64
}

func New(sctx *store.Context) *Service {
	return &Service{
		pools:      store.NewMapping[sdao.Address, Pool](sctx, slotPools),
		poolCount:  store.NewUint64(sctx, slotPoolCount),
		poolIndex:  store.NewMapping[indexKey, sdao.Address](sctx, slotPoolIndex),
		delegates:  store.NewMapping[sdao.Address, Delegate](sctx, slotDelegates),
		commission: store.NewUint64(sctx, slotCommission),
	}
}

// SetPool registers or replaces the pool entry and its delegate share
// weights. First-time pools are appended to the declared order.
func (s *Service) SetPool(id sdao.Address, pool Pool, delegateShares map[sdao.Address]uint32) error {
	known, err := s.pools.Has(id)
	if err != nil {
		return errors.Wrap(err, "failed to check pool")
	}
	if !known {
		count, err := s.poolCount.Get()
		if err != nil {
			return err
		}
		if err := s.poolIndex.Set(indexKey(count+1), id); err != nil {
			return err
		}
		s.poolCount.Set(count + 1)
	}
	if err := s.pools.Set(id, pool); err != nil {
		return errors.Wrap(err, "failed to set pool")
	}

	for _, delegate := range pool.Delegates {
		entry, err := s.delegates.Get(delegate)
		if err != nil {
			return errors.Wrap(err, "failed to get delegate")
		}
		entry.normalize()
		entry.ShareBps = delegateShares[delegate]
		entry.LastSelectedPool = id
		if err := s.delegates.Set(delegate, entry); err != nil {
			return errors.Wrap(err, "failed to set delegate")
		}
	}
	return nil
}

// Get returns the pool entry, or an unknown-pool error.
func (s *Service) Get(id sdao.Address) (*Pool, error) {
	known, err := s.pools.Has(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pool")
	}
	if !known {
		return nil, errs.Newf(errs.CodeUnknownPool, "unknown pool %s", id)
	}
	pool, err := s.pools.Get(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get pool")
	}
	return &pool, nil
}

// List returns all pool ids in declared order.
func (s *Service) List() ([]sdao.Address, error) {
	count, err := s.poolCount.Get()
	if err != nil {
		return nil, err
	}
	ids := make([]sdao.Address, 0, count)
	for i := uint64(1); i <= count; i++ {
		id, err := s.poolIndex.Get(indexKey(i))
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// GetDelegate returns the delegate entry, or an unknown-delegate error.
func (s *Service) GetDelegate(id sdao.Address) (*Delegate, error) {
	known, err := s.delegates.Has(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delegate")
	}
	if !known {
		return nil, errs.Newf(errs.CodeUnknownPool, "unknown delegate %s", id)
	}
	entry, err := s.delegates.Get(id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delegate")
	}
	entry.normalize()
	return &entry, nil
}

// SetDelegateTarget records the amount the current allocation wants
// locked against the delegate.
func (s *Service) SetDelegateTarget(id sdao.Address, target *big.Int) error {
	entry, err := s.GetDelegate(id)
	if err != nil {
		return err
	}
	entry.TargetLocked = new(big.Int).Set(target)
	return s.delegates.Set(id, *entry)
}

// RecordExecution stores the realized outcome of an external stacking
// call against the delegate.
func (s *Service) RecordExecution(id sdao.Address, locked, unlocked *big.Int) error {
	entry, err := s.GetDelegate(id)
	if err != nil {
		return err
	}
	entry.LastLocked = new(big.Int).Set(locked)
	entry.LastUnlocked = new(big.Int).Set(unlocked)
	return s.delegates.Set(id, *entry)
}

// SetStandardCommissionBps sets the protocol-wide commission rate used
// by pools without an override. The cap still applies at reward time.
func (s *Service) SetStandardCommissionBps(bps uint32) error {
	if bps > sdao.BpsDenominator {
		return errors.New("commission bps out of range")
	}
	s.commission.Set(uint64(bps))
	return nil
}

// StandardCommissionBps returns the protocol-wide commission rate.
func (s *Service) StandardCommissionBps() (uint32, error) {
	bps, err := s.commission.Get()
	if err != nil {
		return 0, err
	}
	return uint32(bps), nil
}
