// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package withdrawals manages the withdrawal ticket queue. A ticket is
// the claim-check for an init-withdraw: it exists exactly while funds
// are reserved and not yet paid out, and is redeemable once its unlock
// burn height is reached. Tickets are transferable until settled.
package withdrawals

import (
	"encoding/binary"
	"math/big"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/metrics"
	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

var logger = log.WithContext("pkg", "withdrawals")

var metricOpenTickets = metrics.LazyLoadGauge("withdrawals_open_tickets")

var (
	slotTickets = sdao.BytesToBytes32([]byte("tickets"))
	slotNextID  = sdao.BytesToBytes32([]byte("next-ticket-id"))
	slotOffset  = sdao.BytesToBytes32([]byte("cycle-offset"))
	slotFeeBps  = sdao.BytesToBytes32([]byte("unstake-fee-bps"))
	slotOpen    = sdao.BytesToBytes32([]byte("open-tickets"))
)

type ticketKey uint64

func (k ticketKey) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b[:]
}

// Ticket reserves a pending withdrawal until its unlock height.
type Ticket struct {
	ID               uint64
	Holder           sdao.Address
	StxAmount        *big.Int
	ReceiptAmount    *big.Int
	UnlockBurnHeight uint64
	Pool             sdao.Address // direct-stacking attribution, zero if none
}

func (t *Ticket) normalize() {
	if t.StxAmount == nil {
		t.StxAmount = new(big.Int)
	}
	if t.ReceiptAmount == nil {
		t.ReceiptAmount = new(big.Int)
	}
}

// Service manages the ticket queue.
type Service struct {
	params pox.Params

	tickets *store.Mapping[ticketKey, Ticket]
	nextID  *store.Uint64
	offset  *store.Uint64
	feeBps  *store.Uint64
	open    *store.Uint64
}

func New(addr sdao.Address, st *state.State, params pox.Params) *Service {
	sctx := store.NewContext(addr, st)
	return &Service{
		params:  params,
		tickets: store.NewMapping[ticketKey, Ticket](sctx, slotTickets),
		nextID:  store.NewUint64(sctx, slotNextID),
		offset:  store.NewUint64(sctx, slotOffset),
		feeBps:  store.NewUint64(sctx, slotFeeBps),
		open:    store.NewUint64(sctx, slotOpen),
	}
}

// Offset returns the configured cycle offset between an init-withdraw
// and its unlock height.
func (s *Service) Offset() (uint64, error) {
	offset, err := s.offset.Get()
	if err != nil {
		return 0, err
	}
	if offset == 0 {
		return sdao.MinWithdrawalOffset, nil
	}
	return offset, nil
}

// SetOffset configures the cycle offset. The current and next cycle can
// never be targeted because committed capital cannot be recalled early.
func (s *Service) SetOffset(offset uint64) error {
	if offset < sdao.MinWithdrawalOffset {
		return errors.Errorf("offset %d below minimum %d", offset, sdao.MinWithdrawalOffset)
	}
	s.offset.Set(offset)
	return nil
}

// UnstakeFeeBps returns the fee charged on withdrawal payout.
func (s *Service) UnstakeFeeBps() (uint32, error) {
	bps, err := s.feeBps.Get()
	return uint32(bps), err
}

// SetUnstakeFeeBps configures the withdrawal payout fee.
func (s *Service) SetUnstakeFeeBps(bps uint32) error {
	if bps > sdao.BpsDenominator {
		return errors.New("fee bps out of range")
	}
	s.feeBps.Set(uint64(bps))
	return nil
}

// FeeOf returns the unstake fee due on a payout amount.
func (s *Service) FeeOf(amount *big.Int) (*big.Int, error) {
	bps, err := s.UnstakeFeeBps()
	if err != nil {
		return nil, err
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(sdao.BpsDenominator)), nil
}

// UnlockHeightAt computes the unlock burn height a ticket opened at
// burnHeight gets: the start of the cycle offset cycles ahead.
func (s *Service) UnlockHeightAt(burnHeight uint64) (uint64, error) {
	offset, err := s.Offset()
	if err != nil {
		return 0, err
	}
	return s.params.StartOf(s.params.CycleOf(burnHeight) + offset), nil
}

// Open creates a ticket reserving stxAmount against receiptAmount of
// escrowed liquid tokens. The caller is responsible for the escrow and
// reserve bookkeeping.
func (s *Service) Open(holder sdao.Address, stxAmount, receiptAmount *big.Int, pool sdao.Address, burnHeight uint64) (*Ticket, error) {
	unlock, err := s.UnlockHeightAt(burnHeight)
	if err != nil {
		return nil, err
	}
	next, err := s.nextID.Get()
	if err != nil {
		return nil, err
	}
	next++

	ticket := Ticket{
		ID:               next,
		Holder:           holder,
		StxAmount:        new(big.Int).Set(stxAmount),
		ReceiptAmount:    new(big.Int).Set(receiptAmount),
		UnlockBurnHeight: unlock,
		Pool:             pool,
	}
	if err := s.tickets.Set(ticketKey(next), ticket); err != nil {
		return nil, errors.Wrap(err, "failed to set ticket")
	}
	s.nextID.Set(next)
	if err := s.bumpOpen(1); err != nil {
		return nil, err
	}

	logger.Info("withdrawal ticket opened",
		"id", next, "holder", holder, "stx", stxAmount, "unlockHeight", unlock)
	return &ticket, nil
}

// Get returns the ticket, or an unknown-ticket error if it does not
// exist or was already settled.
func (s *Service) Get(id uint64) (*Ticket, error) {
	known, err := s.tickets.Has(ticketKey(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get ticket")
	}
	if !known {
		return nil, errs.Newf(errs.CodeUnknownTicket, "ticket %d does not exist", id)
	}
	ticket, err := s.tickets.Get(ticketKey(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to get ticket")
	}
	ticket.normalize()
	return &ticket, nil
}

// Transfer moves the ticket to a new holder. Only the current holder
// may transfer.
func (s *Service) Transfer(id uint64, from, to sdao.Address) error {
	ticket, err := s.Get(id)
	if err != nil {
		return err
	}
	if ticket.Holder != from {
		return errs.Newf(errs.CodeNotTicketHolder, "ticket %d is not held by %s", id, from)
	}
	ticket.Holder = to
	return s.tickets.Set(ticketKey(id), *ticket)
}

// Cancel deletes the ticket before its unlock height and returns it so
// the caller can reverse the escrow. Only the holder may cancel.
func (s *Service) Cancel(id uint64, caller sdao.Address, burnHeight uint64) (*Ticket, error) {
	ticket, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if ticket.Holder != caller {
		return nil, errs.Newf(errs.CodeNotTicketHolder, "ticket %d is not held by %s", id, caller)
	}
	if burnHeight >= ticket.UnlockBurnHeight {
		return nil, errs.Newf(errs.CodePastUnlock,
			"ticket %d already unlocked at height %d", id, ticket.UnlockBurnHeight)
	}

	s.tickets.Delete(ticketKey(id))
	if err := s.bumpOpen(-1); err != nil {
		return nil, err
	}
	logger.Info("withdrawal ticket cancelled", "id", id, "holder", caller)
	return ticket, nil
}

// Settle deletes the ticket at or after its unlock height and returns
// it so the caller can pay out. Only the holder may settle; a second
// settle of the same id fails with an unknown-ticket error.
func (s *Service) Settle(id uint64, caller sdao.Address, burnHeight uint64) (*Ticket, error) {
	ticket, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if ticket.Holder != caller {
		return nil, errs.Newf(errs.CodeNotTicketHolder, "ticket %d is not held by %s", id, caller)
	}
	if burnHeight < ticket.UnlockBurnHeight {
		return nil, errs.Newf(errs.CodeUnlockNotReached,
			"ticket %d unlocks at height %d, current %d", id, ticket.UnlockBurnHeight, burnHeight)
	}

	s.tickets.Delete(ticketKey(id))
	if err := s.bumpOpen(-1); err != nil {
		return nil, err
	}
	logger.Info("withdrawal ticket settled", "id", id, "holder", caller, "stx", ticket.StxAmount)
	return ticket, nil
}

// OpenCount returns the number of outstanding tickets.
func (s *Service) OpenCount() (uint64, error) {
	return s.open.Get()
}

// NextID returns the highest ticket id ever issued.
func (s *Service) NextID() (uint64, error) {
	return s.nextID.Get()
}

func (s *Service) bumpOpen(delta int64) error {
	open, err := s.open.Get()
	if err != nil {
		return err
	}
	open = uint64(int64(open) + delta)
	s.open.Set(open)
	metricOpenTickets().Set(int64(open))
	return nil
}
