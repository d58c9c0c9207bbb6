// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store_test

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

func newContext() *store.Context {
	st := state.New(kv.NewMem())
	return store.NewContext(sdao.BytesToAddress([]byte("component")), st)
}

func TestUint256(t *testing.T) {
	u := store.NewUint256(newContext(), sdao.BytesToBytes32([]byte("slot")))

	v, err := u.Get()
	require.NoError(t, err)
	assert.Equal(t, "0", v.String())

	require.NoError(t, u.Add(big.NewInt(100)))
	require.NoError(t, u.Sub(big.NewInt(40)))

	v, err = u.Get()
	require.NoError(t, err)
	assert.Equal(t, "60", v.String())

	assert.Error(t, u.Sub(big.NewInt(61)), "underflow")
}

func TestBoolAndUint64(t *testing.T) {
	ctx := newContext()
	b := store.NewBool(ctx, sdao.BytesToBytes32([]byte("flag")))
	u := store.NewUint64(ctx, sdao.BytesToBytes32([]byte("counter")))

	v, err := b.Get()
	require.NoError(t, err)
	assert.False(t, v)

	b.Set(true)
	v, err = b.Get()
	require.NoError(t, err)
	assert.True(t, v)

	u.Set(42)
	n, err := u.Get()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)
}

type entry struct {
	Amount *big.Int
	Active bool
}

func TestMapping(t *testing.T) {
	m := store.NewMapping[sdao.Address, entry](newContext(), sdao.BytesToBytes32([]byte("entries")))

	addr := sdao.BytesToAddress([]byte("holder"))

	got, err := m.Get(addr)
	require.NoError(t, err)
	assert.Nil(t, got.Amount)

	has, err := m.Has(addr)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, m.Set(addr, entry{Amount: big.NewInt(1000), Active: true}))

	got, err = m.Get(addr)
	require.NoError(t, err)
	assert.Equal(t, "1000", got.Amount.String())
	assert.True(t, got.Active)

	has, err = m.Has(addr)
	require.NoError(t, err)
	assert.True(t, has)

	m.Delete(addr)
	has, err = m.Has(addr)
	require.NoError(t, err)
	assert.False(t, has)
}
