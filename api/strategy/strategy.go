// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package strategy exposes the capital allocation state machine: the
// global cycle progress and per-pool prepared targets.
package strategy

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stackingdao/core/api/restutil"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/sdao"
)

type Strategy struct {
	proto      *protocol.Protocol
	burnHeight func() uint64
}

func New(proto *protocol.Protocol, burnHeight func() uint64) *Strategy {
	return &Strategy{proto: proto, burnHeight: burnHeight}
}

func (s *Strategy) handleGetStatus(w http.ResponseWriter, _ *http.Request) error {
	cycle, state, err := s.proto.Strategy().CycleState()
	if err != nil {
		return err
	}
	capital, err := s.proto.TotalCapital()
	if err != nil {
		return err
	}
	rate, err := s.proto.StxPerStstx()
	if err != nil {
		return err
	}
	height := s.burnHeight()
	params := s.proto.Params()
	return restutil.WriteJSON(w, &Status{
		BurnHeight:   height,
		CurrentCycle: params.CycleOf(height),
		PreparePhase: params.InPreparePhase(height),
		Cycle:        cycle,
		State:        state.String(),
		TotalCapital: capital.String(),
		StxPerStstx:  rate.String(),
	})
}

func (s *Strategy) handleGetPool(w http.ResponseWriter, req *http.Request) error {
	id, err := sdao.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "address"))
	}
	if _, err := s.proto.Pools().Get(*id); err != nil {
		return restutil.CodedError(err)
	}
	cycle, state, target, err := s.proto.Strategy().PoolState(*id)
	if err != nil {
		return err
	}
	return restutil.WriteJSON(w, &PoolStatus{
		Address: *id,
		Cycle:   cycle,
		State:   state.String(),
		Target:  target.String(),
	})
}

func (s *Strategy) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(s.handleGetStatus))
	sub.Path("/pools/{address}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(s.handleGetPool))
}

// Status is the global allocation status.
type Status struct {
	BurnHeight   uint64 `json:"burnHeight"`
	CurrentCycle uint64 `json:"currentCycle"`
	PreparePhase bool   `json:"preparePhase"`
	Cycle        uint64 `json:"cycle"`
	State        string `json:"state"`
	TotalCapital string `json:"totalCapital"`
	StxPerStstx  string `json:"stxPerStstx"`
}

// PoolStatus is one pool's allocation progress within its cycle.
type PoolStatus struct {
	Address sdao.Address `json:"address"`
	Cycle   uint64       `json:"cycle"`
	State   string       `json:"state"`
	Target  string       `json:"target"`
}
