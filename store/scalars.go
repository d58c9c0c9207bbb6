// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"math/big"

	"github.com/stackingdao/core/sdao"
)

// Address is a wrapper for storage and retrieval of a single address slot.
type Address struct {
	context *Context
	pos     sdao.Bytes32
}

func NewAddress(context *Context, pos sdao.Bytes32) *Address {
	return &Address{context: context, pos: pos}
}

func (a *Address) Get() (sdao.Address, error) {
	storage, err := a.context.state.GetStorage(a.context.address, a.pos)
	if err != nil {
		return sdao.Address{}, err
	}
	return sdao.BytesToAddress(storage.Bytes()), nil
}

func (a *Address) Set(addr sdao.Address) {
	a.context.state.SetStorage(a.context.address, a.pos, sdao.BytesToBytes32(addr.Bytes()))
}

// Bool is a wrapper for storage and retrieval of a boolean flag.
type Bool struct {
	context *Context
	pos     sdao.Bytes32
}

func NewBool(context *Context, pos sdao.Bytes32) *Bool {
	return &Bool{context: context, pos: pos}
}

func (b *Bool) Get() (bool, error) {
	storage, err := b.context.state.GetStorage(b.context.address, b.pos)
	if err != nil {
		return false, err
	}
	return !storage.IsZero(), nil
}

func (b *Bool) Set(value bool) {
	var storage sdao.Bytes32
	if value {
		storage[31] = 1
	}
	b.context.state.SetStorage(b.context.address, b.pos, storage)
}

// Uint64 is a wrapper for storage and retrieval of a small counter slot.
type Uint64 struct {
	context *Context
	pos     sdao.Bytes32
}

func NewUint64(context *Context, pos sdao.Bytes32) *Uint64 {
	return &Uint64{context: context, pos: pos}
}

func (u *Uint64) Get() (uint64, error) {
	storage, err := u.context.state.GetStorage(u.context.address, u.pos)
	if err != nil {
		return 0, err
	}
	return new(big.Int).SetBytes(storage.Bytes()).Uint64(), nil
}

func (u *Uint64) Set(value uint64) {
	u.context.state.SetStorage(
		u.context.address,
		u.pos,
		sdao.BytesToBytes32(new(big.Int).SetUint64(value).Bytes()),
	)
}
