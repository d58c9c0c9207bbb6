// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package holders exposes liquid token holder state: balances, ledger
// attribution and pending rewards, including a batched pending query.
package holders

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stackingdao/core/api/restutil"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/protocol/rewards"
	"github.com/stackingdao/core/sdao"
)

type Holders struct {
	proto        *protocol.Protocol
	pendingLimit int
}

func New(proto *protocol.Protocol, pendingLimit int) *Holders {
	if pendingLimit <= 0 || pendingLimit > sdao.MaxPendingBatch {
		pendingLimit = sdao.MaxPendingBatch
	}
	return &Holders{proto: proto, pendingLimit: pendingLimit}
}

func (h *Holders) handleGetCount(w http.ResponseWriter, _ *http.Request) error {
	count, err := h.proto.Ledger().HolderCount()
	if err != nil {
		return err
	}
	supply, err := h.proto.StStx().TotalSupply()
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Summary{
		Count:       count,
		TotalSupply: supply.String(),
	})
}

func (h *Holders) handleGetHolder(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(req, "address")
	if err != nil {
		return err
	}
	balance, err := h.proto.StStx().BalanceOf(*addr)
	if err != nil {
		return err
	}
	index, err := h.proto.Ledger().IndexOf(*addr)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &Holder{
		Address:     *addr,
		Balance:     balance.String(),
		LedgerIndex: index,
	})
}

func (h *Holders) handleGetPending(w http.ResponseWriter, req *http.Request) error {
	addr, err := parseAddress(req, "address")
	if err != nil {
		return err
	}
	// Rewards accrue per (position, holder) pair. A plain wallet is
	// tracked under its own identity, so the position defaults to the
	// holder address.
	position := *addr
	if q := req.URL.Query().Get("position"); q != "" {
		parsed, err := sdao.ParseAddress(q)
		if err != nil {
			return restutil.BadRequest(errors.WithMessage(err, "position"))
		}
		position = *parsed
	}
	pending := make(map[string]string, 2)
	for _, asset := range []string{protocol.AssetSTX, protocol.AssetSBTC} {
		dist, err := h.proto.Distributor(asset)
		if err != nil {
			return err
		}
		amount, err := dist.GetPendingRewards(*addr, position)
		if err != nil {
			return restutil.CodedError(err)
		}
		saved, err := dist.SavedRewards(*addr, position)
		if err != nil {
			return err
		}
		pending[asset] = saved.Add(saved, amount).String()
	}
	return restutil.WriteJSON(w, pending)
}

func (h *Holders) handlePostPendingBatch(w http.ResponseWriter, req *http.Request) error {
	var batch PendingBatch
	if err := restutil.ParseJSON(req.Body, &batch); err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "body"))
	}
	if len(batch.Entries) > h.pendingLimit {
		return restutil.BadRequest(errors.Errorf("at most %d entries per query", h.pendingLimit))
	}
	dist, err := h.proto.Distributor(batch.Asset)
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "asset"))
	}
	amounts, err := dist.GetPendingRewardsMany(batch.Entries)
	if err != nil {
		return restutil.CodedError(err)
	}
	out := make([]string, len(amounts))
	for i, a := range amounts {
		out[i] = a.String()
	}
	return restutil.WriteJSON(w, &PendingAmounts{Amounts: out})
}

func parseAddress(req *http.Request, name string) (*sdao.Address, error) {
	addr, err := sdao.ParseAddress(mux.Vars(req)[name])
	if err != nil {
		return nil, restutil.BadRequest(errors.WithMessage(err, name))
	}
	return addr, nil
}

func (h *Holders) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(h.handleGetCount))
	sub.Path("/pending").
		Methods(http.MethodPost).
		HandlerFunc(restutil.WrapHandlerFunc(h.handlePostPendingBatch))
	sub.Path("/{address}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(h.handleGetHolder))
	sub.Path("/{address}/pending").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(h.handleGetPending))
}

// Summary is the holders collection response.
type Summary struct {
	Count       uint64 `json:"count"`
	TotalSupply string `json:"totalSupply"`
}

// Holder is a single holder response.
type Holder struct {
	Address     sdao.Address `json:"address"`
	Balance     string       `json:"balance"`
	LedgerIndex uint64       `json:"ledgerIndex"`
}

// PendingBatch is a batched pending-rewards query.
type PendingBatch struct {
	Asset   string          `json:"asset"`
	Entries []rewards.Entry `json:"entries"`
}

// PendingAmounts is the batched pending-rewards response, in entry order.
type PendingAmounts struct {
	Amounts []string `json:"amounts"`
}
