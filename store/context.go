// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package store

import (
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
)

// Context binds typed storage slots to the account of a protocol component.
type Context struct {
	address sdao.Address
	state   *state.State
}

func NewContext(address sdao.Address, state *state.State) *Context {
	return &Context{
		address: address,
		state:   state,
	}
}

func (c *Context) Address() sdao.Address {
	return c.address
}

func (c *Context) State() *state.State {
	return c.state
}
