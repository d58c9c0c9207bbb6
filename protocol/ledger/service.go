// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package ledger tracks each holder's liquid-token balance per position
// sub-ledger, plus a lazily built bidirectional holder index. The index
// serves off-chain enumeration only; no protocol operation iterates it.
package ledger

import (
	"math/big"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/store"
)

const indexCacheSize = 4096

// Service manages the share ledger.
type Service struct {
	storage *storage

	// caches holder-index lookups; safe because index entries are
	// append-only.
	indexCache *lru.Cache
}

func New(sctx *store.Context) *Service {
	cache, _ := lru.New(indexCacheSize)
	return &Service{
		storage:    newStorage(sctx),
		indexCache: cache,
	}
}

// GetAmount returns the holder's recorded balance in the position sub-ledger.
func (s *Service) GetAmount(position, holder sdao.Address) (*big.Int, error) {
	return s.storage.getAmount(position, holder)
}

// SetAmount records the holder's balance in the position sub-ledger and
// registers both identities in the holder index on first sight.
func (s *Service) SetAmount(position, holder sdao.Address, amount *big.Int) error {
	if _, err := s.Register(holder); err != nil {
		return err
	}
	if position != holder {
		if _, err := s.Register(position); err != nil {
			return err
		}
	}
	return s.storage.setAmount(position, holder, amount)
}

// Register assigns a sequential index to the address if it has none yet
// and returns the index. Indexes start at 1.
func (s *Service) Register(addr sdao.Address) (uint64, error) {
	if cached, ok := s.indexCache.Get(addr); ok {
		return cached.(uint64), nil
	}

	index, err := s.storage.indexByAddr.Get(addr)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get holder index")
	}
	if index != 0 {
		s.indexCache.Add(addr, index)
		return index, nil
	}

	count, err := s.storage.holderCount.Get()
	if err != nil {
		return 0, err
	}
	index = count + 1
	if err := s.storage.indexByAddr.Set(addr, index); err != nil {
		return 0, errors.Wrap(err, "failed to set holder index")
	}
	if err := s.storage.addrByIndex.Set(indexKey(index), addr); err != nil {
		return 0, errors.Wrap(err, "failed to set holder by index")
	}
	s.storage.holderCount.Set(index)
	s.indexCache.Add(addr, index)
	return index, nil
}

// ResetCache drops all cached index lookups. Call after reverting
// state, since cached entries may no longer be backed by storage.
func (s *Service) ResetCache() {
	s.indexCache.Purge()
}

// IndexOf returns the index of the address, or 0 if it was never seen.
func (s *Service) IndexOf(addr sdao.Address) (uint64, error) {
	if cached, ok := s.indexCache.Get(addr); ok {
		return cached.(uint64), nil
	}
	index, err := s.storage.indexByAddr.Get(addr)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get holder index")
	}
	if index != 0 {
		s.indexCache.Add(addr, index)
	}
	return index, nil
}

// HolderAt returns the address registered at the given index.
func (s *Service) HolderAt(index uint64) (sdao.Address, error) {
	addr, err := s.storage.addrByIndex.Get(indexKey(index))
	if err != nil {
		return sdao.Address{}, errors.Wrap(err, "failed to get holder by index")
	}
	return addr, nil
}

// HolderCount returns the number of registered identities.
func (s *Service) HolderCount() (uint64, error) {
	return s.storage.holderCount.Get()
}
