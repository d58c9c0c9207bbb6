// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package health

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/stackingdao/core/api/restutil"
	"github.com/stackingdao/core/protocol"
)

type Health struct {
	proto      *protocol.Protocol
	burnHeight func() uint64
}

func New(proto *protocol.Protocol, burnHeight func() uint64) *Health {
	return &Health{proto: proto, burnHeight: burnHeight}
}

func (h *Health) handleGetHealth(w http.ResponseWriter, _ *http.Request) error {
	// A readable capital figure proves the state backend answers.
	_, err := h.proto.TotalCapital()
	healthy := err == nil

	height := h.burnHeight()
	status := &Status{
		Healthy:    healthy,
		BurnHeight: height,
		Cycle:      h.proto.Params().CycleOf(height),
	}
	w.Header().Set("Content-Type", restutil.JSONContentType)
	if !healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	return restutil.WriteJSON(w, status)
}

func (h *Health) Mount(root *mux.Router, pathPrefix string) {
	sub := root.PathPrefix(pathPrefix).Subrouter()

	sub.Path("").
		Methods(http.MethodGet).
		HandlerFunc(restutil.WrapHandlerFunc(h.handleGetHealth))
}

// Status reports liveness of the query surface.
type Status struct {
	Healthy    bool   `json:"healthy"`
	BurnHeight uint64 `json:"burnHeight"`
	Cycle      uint64 `json:"cycle"`
}
