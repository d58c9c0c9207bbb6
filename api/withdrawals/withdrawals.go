// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package withdrawals exposes open withdrawal tickets and the
// settings that govern new ones.
package withdrawals

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stackingdao/core/api/restutil"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/sdao"
)

type Withdrawals struct {
	proto      *protocol.Protocol
	burnHeight func() uint64
}

func New(proto *protocol.Protocol, burnHeight func() uint64) *Withdrawals {
	return &Withdrawals{proto: proto, burnHeight: burnHeight}
}

func (wd *Withdrawals) handleGetSummary(w http.ResponseWriter, _ *http.Request) error {
	open, err := wd.proto.Withdrawals().OpenCount()
	if err != nil {
		return err
	}
	issued, err := wd.proto.Withdrawals().NextID()
	if err != nil {
		return err
	}
	offset, err := wd.proto.Withdrawals().Offset()
	if err != nil {
		return err
	}
	feeBps, err := wd.proto.Withdrawals().UnstakeFeeBps()
	if err != nil {
		return err
	}
	unlockHeight, err := wd.proto.Withdrawals().UnlockHeightAt(wd.burnHeight())
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Summary{
		Open:             open,
		Issued:           issued,
		CycleOffset:      offset,
		UnstakeFeeBps:    feeBps,
		NextUnlockHeight: unlockHeight,
	})
}

func (wd *Withdrawals) handleGetTicket(w http.ResponseWriter, req *http.Request) error {
	id, err := strconv.ParseUint(mux.Vars(req)["id"], 10, 64)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "id"))
	}
	ticket, err := wd.proto.Withdrawals().Get(id)
	if err != nil {
		return restutil.CodedError(err)
	}
	out := &Ticket{
		ID:               ticket.ID,
		Holder:           ticket.Holder,
		StxAmount:        ticket.StxAmount.String(),
		ReceiptAmount:    ticket.ReceiptAmount.String(),
		UnlockBurnHeight: ticket.UnlockBurnHeight,
		Settleable:       wd.burnHeight() >= ticket.UnlockBurnHeight,
	}
	if !ticket.Pool.IsZero() {
		pool := ticket.Pool
		out.Pool = &pool
	}
	return restutil.WriteJSON(w, out)
}

func (wd *Withdrawals) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(wd.handleGetSummary))
	sub.Path("/{id}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(wd.handleGetTicket))
}

// Summary is the withdrawal queue overview. NextUnlockHeight is the
// unlock a ticket opened right now would get.
type Summary struct {
	Open             uint64 `json:"open"`
	Issued           uint64 `json:"issued"`
	CycleOffset      uint64 `json:"cycleOffset"`
	UnstakeFeeBps    uint32 `json:"unstakeFeeBps"`
	NextUnlockHeight uint64 `json:"nextUnlockHeight"`
}

// Ticket is one open withdrawal ticket.
type Ticket struct {
	ID               uint64        `json:"id"`
	Holder           sdao.Address  `json:"holder"`
	StxAmount        string        `json:"stxAmount"`
	ReceiptAmount    string        `json:"receiptAmount"`
	UnlockBurnHeight uint64        `json:"unlockBurnHeight"`
	Settleable       bool          `json:"settleable"`
	Pool             *sdao.Address `json:"pool,omitempty"`
}
