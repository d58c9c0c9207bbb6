// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"net/http"
	"net/http/pprof"
	"strings"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/stackingdao/core/api/health"
	"github.com/stackingdao/core/api/holders"
	"github.com/stackingdao/core/api/pools"
	"github.com/stackingdao/core/api/strategy"
	"github.com/stackingdao/core/api/withdrawals"
	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/protocol"
)

var logger = log.WithContext("pkg", "api")

type Options struct {
	AllowedOrigins  string
	PprofOn         bool
	EnableReqLogger bool
	EnableMetrics   bool
	PendingLimit    int
}

// New returns the read-only api router over a protocol instance.
// burnHeight reports the current burn chain height and drives the
// timing fields of the health and strategy endpoints.
func New(p *protocol.Protocol, burnHeight func() uint64, opts Options) http.HandlerFunc {
	origins := strings.Split(strings.TrimSpace(opts.AllowedOrigins), ",")
	for i, o := range origins {
		origins[i] = strings.ToLower(strings.TrimSpace(o))
	}

	router := mux.NewRouter()

	holders.New(p, opts.PendingLimit).
		Mount(router, "/holders")
	pools.New(p).
		Mount(router, "/pools")
	strategy.New(p, burnHeight).
		Mount(router, "/strategy")
	withdrawals.New(p, burnHeight).
		Mount(router, "/withdrawals")
	health.New(p, burnHeight).
		Mount(router, "/health")

	if opts.PprofOn {
		router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		router.HandleFunc("/debug/pprof/profile", pprof.Profile)
		router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		router.HandleFunc("/debug/pprof/trace", pprof.Trace)
		router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
	}

	if opts.EnableMetrics {
		router.Use(metricsMiddleware)
	}

	handler := handlers.CompressHandler(router)
	handler = handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedHeaders([]string{"content-type"}),
	)(handler)

	if opts.EnableReqLogger {
		handler = RequestLoggerHandler(handler, logger)
	}

	return handler.ServeHTTP
}
