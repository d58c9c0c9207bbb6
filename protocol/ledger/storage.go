// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/store"
)

var (
	slotAmounts     = sdao.BytesToBytes32([]byte("amounts"))
	slotIndexByAddr = sdao.BytesToBytes32([]byte("holder-index"))
	slotAddrByIndex = sdao.BytesToBytes32([]byte("holder-by-index"))
	slotHolderCount = sdao.BytesToBytes32([]byte("holder-count"))
)

// EntryKey identifies a holder's sub-ledger entry within a position.
func EntryKey(position, holder sdao.Address) sdao.Bytes32 {
	return sdao.Blake2b(position.Bytes(), holder.Bytes())
}

type indexKey uint64

func (k indexKey) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b[:]
}

type storage struct {
	amounts     *store.Mapping[sdao.Bytes32, *big.Int]
	indexByAddr *store.Mapping[sdao.Address, uint64]
	addrByIndex *store.Mapping[indexKey, sdao.Address]
	holderCount *store.Uint64
}

func newStorage(sctx *store.Context) *storage {
	return &storage{
		amounts:     store.NewMapping[sdao.Bytes32, *big.Int](sctx, slotAmounts),
		indexByAddr: store.NewMapping[sdao.Address, uint64](sctx, slotIndexByAddr),
		addrByIndex: store.NewMapping[indexKey, sdao.Address](sctx, slotAddrByIndex),
		holderCount: store.NewUint64(sctx, slotHolderCount),
	}
}

func (s *storage) getAmount(position, holder sdao.Address) (*big.Int, error) {
	amount, err := s.amounts.Get(EntryKey(position, holder))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get holder amount")
	}
	if amount == nil {
		return new(big.Int), nil
	}
	return amount, nil
}

func (s *storage) setAmount(position, holder sdao.Address, amount *big.Int) error {
	if err := s.amounts.Set(EntryKey(position, holder), amount); err != nil {
		return errors.Wrap(err, "failed to set holder amount")
	}
	return nil
}
