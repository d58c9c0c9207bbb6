// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package stackedmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stackingdao/core/stackedmap"
)

func TestStackedMap(t *testing.T) {
	assert := assert.New(t)
	src := make(map[string]string)
	src["base"] = "base"

	sm := stackedmap.New(func(key string) (string, bool, error) {
		v, ok := src[key]
		return v, ok, nil
	})

	tests := []struct {
		f         func()
		depth     int
		putKey    string
		putValue  string
		getKey    string
		getReturn []any
	}{
		{func() { sm.Push() }, 1, "", "", "", nil},
		{nil, 1, "a", "1", "a", []any{"1", true}},
		{func() { sm.Push() }, 2, "", "", "", nil},
		{nil, 2, "a", "2", "a", []any{"2", true}},
		{nil, 2, "", "", "base", []any{"base", true}},
		{func() { sm.Pop() }, 1, "", "", "a", []any{"1", true}},
		{func() { sm.Pop() }, 0, "", "", "a", []any{"", false}},

		{func() { sm.Push(); sm.Push() }, 2, "", "", "", nil},
		{func() { sm.PopTo(0) }, 0, "", "", "", nil},
	}

	for _, test := range tests {
		if test.f != nil {
			test.f()
		}
		assert.Equal(test.depth, sm.Depth())
		if test.putKey != "" {
			sm.Put(test.putKey, test.putValue)
		}
		if test.getKey != "" {
			v, ok, err := sm.Get(test.getKey)
			assert.Nil(err)
			assert.Equal(test.getReturn, []any{v, ok})
		}
	}
}

func TestStackedMapPuts(t *testing.T) {
	assert := assert.New(t)
	sm := stackedmap.New(func(string) (string, bool, error) {
		return "", false, nil
	})

	kvs := []struct{ k, v string }{
		{"a", "1"},
		{"b", "2"},
		{"a", "3"},
		{"c", "4"},
	}

	sm.Push()
	for _, kv := range kvs {
		sm.Put(kv.k, kv.v)
	}

	i := 0
	sm.Journal(func(k, v string) bool {
		assert.Equal(kvs[i].k, k)
		assert.Equal(kvs[i].v, v)
		i++
		return true
	})
	assert.Equal(len(kvs), i, "journal should keep put order")
}
