// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package ledger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

func newSvc() *Service {
	st := state.New(kv.NewMem())
	return New(store.NewContext(sdao.BytesToAddress([]byte("ledger")), st))
}

func TestAmounts(t *testing.T) {
	svc := newSvc()
	position := sdao.BytesToAddress([]byte("position-1"))
	holder := sdao.BytesToAddress([]byte("holder-1"))

	amount, err := svc.GetAmount(position, holder)
	require.NoError(t, err)
	assert.Equal(t, "0", amount.String())

	require.NoError(t, svc.SetAmount(position, holder, big.NewInt(70000)))

	amount, err = svc.GetAmount(position, holder)
	require.NoError(t, err)
	assert.Equal(t, "70000", amount.String())

	// the same holder under another position has an isolated entry
	other := sdao.BytesToAddress([]byte("position-2"))
	amount, err = svc.GetAmount(other, holder)
	require.NoError(t, err)
	assert.Equal(t, "0", amount.String())
}

func TestHolderIndexLazyRegistration(t *testing.T) {
	svc := newSvc()
	position := sdao.BytesToAddress([]byte("position-1"))
	a := sdao.BytesToAddress([]byte("a"))
	b := sdao.BytesToAddress([]byte("b"))

	index, err := svc.IndexOf(a)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), index, "unseen address has no index")

	require.NoError(t, svc.SetAmount(position, a, big.NewInt(1)))
	require.NoError(t, svc.SetAmount(position, b, big.NewInt(2)))

	count, err := svc.HolderCount()
	require.NoError(t, err)
	// two holders plus the position identity
	assert.Equal(t, uint64(3), count)

	index, err = svc.IndexOf(a)
	require.NoError(t, err)
	got, err := svc.HolderAt(index)
	require.NoError(t, err)
	assert.Equal(t, a, got)

	// registration is idempotent
	again, err := svc.Register(a)
	require.NoError(t, err)
	assert.Equal(t, index, again)

	count, err = svc.HolderCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}
