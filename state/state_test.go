// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
)

func TestStorage(t *testing.T) {
	st := state.New(kv.NewMem())

	addr := sdao.BytesToAddress([]byte("account"))
	key := sdao.BytesToBytes32([]byte("key"))
	value := sdao.BytesToBytes32([]byte("value"))

	got, err := st.GetStorage(addr, key)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	st.SetStorage(addr, key, value)
	got, err = st.GetStorage(addr, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	st.SetStorage(addr, key, sdao.Bytes32{})
	got, err = st.GetStorage(addr, key)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestCheckpointRevert(t *testing.T) {
	st := state.New(kv.NewMem())

	addr := sdao.BytesToAddress([]byte("account"))
	key := sdao.BytesToBytes32([]byte("key"))
	v1 := sdao.BytesToBytes32([]byte("v1"))
	v2 := sdao.BytesToBytes32([]byte("v2"))

	st.SetStorage(addr, key, v1)

	cp := st.NewCheckpoint()
	st.SetStorage(addr, key, v2)

	got, err := st.GetStorage(addr, key)
	require.NoError(t, err)
	assert.Equal(t, v2, got)

	st.RevertTo(cp)
	got, err = st.GetStorage(addr, key)
	require.NoError(t, err)
	assert.Equal(t, v1, got)
}

func TestStageCommit(t *testing.T) {
	db := kv.NewMem()
	st := state.New(db)

	addr := sdao.BytesToAddress([]byte("account"))
	key := sdao.BytesToBytes32([]byte("key"))
	value := sdao.BytesToBytes32([]byte("value"))

	st.SetStorage(addr, key, value)
	require.NoError(t, st.Stage().Commit())

	// a fresh state over the same db sees the committed value
	st2 := state.New(db)
	got, err := st2.GetStorage(addr, key)
	require.NoError(t, err)
	assert.Equal(t, value, got)
}

func TestStageCommitDeletes(t *testing.T) {
	db := kv.NewMem()
	st := state.New(db)

	addr := sdao.BytesToAddress([]byte("account"))
	key := sdao.BytesToBytes32([]byte("key"))
	value := sdao.BytesToBytes32([]byte("value"))

	st.SetStorage(addr, key, value)
	require.NoError(t, st.Stage().Commit())

	st.SetStorage(addr, key, sdao.Bytes32{})
	require.NoError(t, st.Stage().Commit())

	st2 := state.New(db)
	got, err := st2.GetStorage(addr, key)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}
