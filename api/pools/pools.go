// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package pools exposes the stacking pool registry: share weights,
// commission settings and per-delegate lock records.
package pools

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"

	"github.com/stackingdao/core/api/restutil"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/sdao"
)

type Pools struct {
	proto *protocol.Protocol
}

func New(proto *protocol.Protocol) *Pools {
	return &Pools{proto: proto}
}

func (p *Pools) handleGetList(w http.ResponseWriter, _ *http.Request) error {
	ids, err := p.proto.Pools().List()
	if err != nil {
		return err
	}
	standardBps, err := p.proto.Pools().StandardCommissionBps()
	if err != nil {
		return err
	}
	out := make([]*Pool, 0, len(ids))
	for _, id := range ids {
		pool, err := p.buildPool(id, standardBps)
		if err != nil {
			return err
		}
		out = append(out, pool)
	}
	return restutil.WriteJSON(w, out)
}

func (p *Pools) handleGetPool(w http.ResponseWriter, req *http.Request) error {
	id, err := sdao.ParseAddress(mux.Vars(req)["address"])
	if err != nil {
		return restutil.BadRequest(errors.WithMessage(err, "address"))
	}
	standardBps, err := p.proto.Pools().StandardCommissionBps()
	if err != nil {
		return err
	}
	pool, err := p.buildPool(*id, standardBps)
	if err != nil {
		return restutil.CodedError(err)
	}
	return restutil.WriteJSON(w, pool)
}

func (p *Pools) buildPool(id sdao.Address, standardBps uint32) (*Pool, error) {
	pool, err := p.proto.Pools().Get(id)
	if err != nil {
		return nil, err
	}
	delegates := make([]*Delegate, 0, len(pool.Delegates))
	for _, did := range pool.Delegates {
		delegate, err := p.proto.Pools().GetDelegate(did)
		if err != nil {
			return nil, err
		}
		delegates = append(delegates, &Delegate{
			Address:      did,
			ShareBps:     delegate.ShareBps,
			TargetLocked: delegate.TargetLocked.String(),
			LastLocked:   delegate.LastLocked.String(),
			LastUnlocked: delegate.LastUnlocked.String(),
		})
	}
	out := &Pool{
		Address:       id,
		ShareBps:      pool.ShareBps,
		CommissionBps: pool.EffectiveCommissionBps(standardBps),
		Delegates:     delegates,
	}
	if !pool.Owner.Receiver.IsZero() {
		out.Owner = &OwnerCommission{
			Receiver: pool.Owner.Receiver,
			ShareBps: pool.Owner.ShareBps,
		}
	}
	return out, nil
}

func (p *Pools) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(p.handleGetList))
	sub.Path("/{address}").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(p.handleGetPool))
}

// Pool is a registered pool with its resolved commission rate.
type Pool struct {
	Address       sdao.Address     `json:"address"`
	ShareBps      uint32           `json:"shareBps"`
	CommissionBps uint32           `json:"commissionBps"`
	Owner         *OwnerCommission `json:"owner,omitempty"`
	Delegates     []*Delegate      `json:"delegates"`
}

// OwnerCommission is the pool owner's cut of the commission.
type OwnerCommission struct {
	Receiver sdao.Address `json:"receiver"`
	ShareBps uint32       `json:"shareBps"`
}

// Delegate is one delegate sub-account with its latest lock record.
type Delegate struct {
	Address      sdao.Address `json:"address"`
	ShareBps     uint32       `json:"shareBps"`
	TargetLocked string       `json:"targetLocked"`
	LastLocked   string       `json:"lastLocked"`
	LastUnlocked string       `json:"lastUnlocked"`
}
