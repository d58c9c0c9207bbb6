// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package kv_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
)

func TestLevelDBMem(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	assert.True(t, db.IsNotFound(err))

	require.NoError(t, db.Put([]byte("k1"), []byte("v1")))

	v, err := db.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	has, err := db.Has([]byte("k1"))
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, db.Delete([]byte("k1")))
	has, err = db.Has([]byte("k1"))
	require.NoError(t, err)
	assert.False(t, has)
}

func TestLevelDBBatch(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	batch := db.NewBatch()
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))
	assert.Equal(t, 2, batch.Len())
	require.NoError(t, batch.Write())

	v, err := db.Get([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestBucket(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	b1 := kv.Bucket("b1-").NewStore(db)
	b2 := kv.Bucket("b2-").NewStore(db)

	require.NoError(t, b1.Put([]byte("k"), []byte("v1")))
	require.NoError(t, b2.Put([]byte("k"), []byte("v2")))

	v, err := b1.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)

	v, err = b2.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	it := b1.NewIterator(kv.Range{})
	defer it.Release()

	n := 0
	for it.Next() {
		assert.Equal(t, []byte("k"), it.Key())
		assert.Equal(t, []byte("v1"), it.Value())
		n++
	}
	require.NoError(t, it.Error())
	assert.Equal(t, 1, n)
}
