// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"reflect"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stackingdao/core/sdao"
)

// Key is anything that can key a mapping slot.
type Key interface {
	Bytes() []byte
}

// Mapping is a key/value storage abstraction for protocol components,
// similar to a map in a smart contract. Values are RLP encoded and
// stored at positions derived from the base slot and the key.
type Mapping[K Key, V any] struct {
	context *Context
	basePos sdao.Bytes32
}

func NewMapping[K Key, V any](context *Context, pos sdao.Bytes32) *Mapping[K, V] {
	return &Mapping[K, V]{context: context, basePos: pos}
}

func (m *Mapping[K, V]) position(key K) sdao.Bytes32 {
	return sdao.Blake2b(key.Bytes(), m.basePos.Bytes())
}

// Get returns the value at key. A missing key yields the zero value.
func (m *Mapping[K, V]) Get(key K) (value V, err error) {
	err = m.context.state.DecodeStorage(m.context.address, m.position(key), func(raw []byte) error {
		if reflect.ValueOf(value).Kind() == reflect.Ptr {
			value = reflect.New(reflect.TypeOf(value).Elem()).Interface().(V)
		}
		if len(raw) == 0 {
			return nil
		}
		return rlp.DecodeBytes(raw, &value)
	})
	return
}

// Has returns whether key holds a non-empty value.
func (m *Mapping[K, V]) Has(key K) (bool, error) {
	raw, err := m.context.state.GetRawStorage(m.context.address, m.position(key))
	if err != nil {
		return false, err
	}
	return len(raw) > 0, nil
}

// Set stores the value at key.
func (m *Mapping[K, V]) Set(key K, value V) error {
	return m.context.state.EncodeStorage(m.context.address, m.position(key), func() ([]byte, error) {
		return rlp.EncodeToBytes(value)
	})
}

// Delete clears the value at key.
func (m *Mapping[K, V]) Delete(key K) {
	m.context.state.SetRawStorage(m.context.address, m.position(key), nil)
}
