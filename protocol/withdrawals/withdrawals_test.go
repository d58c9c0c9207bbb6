// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package withdrawals

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
)

func newTestService(t *testing.T) *Service {
	st := state.New(kv.NewMem())
	return New(sdao.BytesToAddress([]byte("withdrawals")), st, pox.TestParams)
}

func TestTicketLifecycle(t *testing.T) {
	svc := newTestService(t)
	holder := sdao.BytesToAddress([]byte("holder"))

	// burn height 100 sits in cycle 0, default offset 2 targets cycle 2
	ticket, err := svc.Open(holder, big.NewInt(200), big.NewInt(200), sdao.Address{}, 100)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), ticket.ID)
	assert.Equal(t, pox.TestParams.StartOf(2), ticket.UnlockBurnHeight)

	open, err := svc.OpenCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), open)

	// before the unlock height settling fails with the timing error
	_, err = svc.Settle(ticket.ID, holder, ticket.UnlockBurnHeight-1)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeUnlockNotReached))
	code, _ := errs.CodeOf(err)
	assert.True(t, code.Kind().Retryable())

	settled, err := svc.Settle(ticket.ID, holder, ticket.UnlockBurnHeight)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), settled.StxAmount)

	// the ticket is gone; a second settle is a state conflict
	_, err = svc.Settle(ticket.ID, holder, ticket.UnlockBurnHeight)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeUnknownTicket))

	open, err = svc.OpenCount()
	require.NoError(t, err)
	assert.Zero(t, open)
}

func TestCancelOnlyBeforeUnlock(t *testing.T) {
	svc := newTestService(t)
	holder := sdao.BytesToAddress([]byte("holder"))

	ticket, err := svc.Open(holder, big.NewInt(500), big.NewInt(480), sdao.Address{}, 0)
	require.NoError(t, err)

	_, err = svc.Cancel(ticket.ID, holder, ticket.UnlockBurnHeight)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodePastUnlock))

	cancelled, err := svc.Cancel(ticket.ID, holder, ticket.UnlockBurnHeight-1)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(480), cancelled.ReceiptAmount)

	_, err = svc.Get(ticket.ID)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeUnknownTicket))
}

func TestOnlyHolderMaySettle(t *testing.T) {
	svc := newTestService(t)
	holder := sdao.BytesToAddress([]byte("holder"))
	thief := sdao.BytesToAddress([]byte("thief"))
	buyer := sdao.BytesToAddress([]byte("buyer"))

	ticket, err := svc.Open(holder, big.NewInt(100), big.NewInt(100), sdao.Address{}, 0)
	require.NoError(t, err)

	_, err = svc.Settle(ticket.ID, thief, ticket.UnlockBurnHeight)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeNotTicketHolder))

	err = svc.Transfer(ticket.ID, thief, buyer)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeNotTicketHolder))

	// tickets are transferable until settled
	require.NoError(t, svc.Transfer(ticket.ID, holder, buyer))

	_, err = svc.Settle(ticket.ID, holder, ticket.UnlockBurnHeight)
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeNotTicketHolder))

	settled, err := svc.Settle(ticket.ID, buyer, ticket.UnlockBurnHeight)
	require.NoError(t, err)
	assert.Equal(t, buyer, settled.Holder)
}

func TestOffsetAndFeeSettings(t *testing.T) {
	svc := newTestService(t)

	// offset below the minimum is rejected
	require.Error(t, svc.SetOffset(1))
	require.NoError(t, svc.SetOffset(4))

	ticket, err := svc.Open(sdao.BytesToAddress([]byte("holder")),
		big.NewInt(100), big.NewInt(100), sdao.Address{}, 0)
	require.NoError(t, err)
	assert.Equal(t, pox.TestParams.StartOf(4), ticket.UnlockBurnHeight)

	require.Error(t, svc.SetUnstakeFeeBps(10001))
	require.NoError(t, svc.SetUnstakeFeeBps(25))

	fee, err := svc.FeeOf(big.NewInt(40000))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100), fee)
}

func TestTicketIDsNeverReused(t *testing.T) {
	svc := newTestService(t)
	holder := sdao.BytesToAddress([]byte("holder"))

	first, err := svc.Open(holder, big.NewInt(10), big.NewInt(10), sdao.Address{}, 0)
	require.NoError(t, err)
	_, err = svc.Cancel(first.ID, holder, 1)
	require.NoError(t, err)

	second, err := svc.Open(holder, big.NewInt(10), big.NewInt(10), sdao.Address{}, 0)
	require.NoError(t, err)
	assert.Equal(t, first.ID+1, second.ID)
}
