// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"
	"math/big"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/stackingdao/core/api"
	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/metrics"
	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
)

const defaultBlockTime = 500 * time.Millisecond

// soloConfig is the built-in deployment for solo mode: short cycles so
// the allocation machine visibly turns over.
const soloConfig = `
params:
  firstBurnHeight: 0
  cycleLength: 20
  prepareLength: 5
commissionSink: "0x0000000000000000000000736f6c6f2d73696e6b"
standardCommissionBps: 500
withdrawalOffset: 2
unstakeFeeBps: 25
pools:
  - id: "0x000000000000000000736f6c6f2d706f6f6c2d31"
    shareBps: 7000
    delegates:
      - id: "0x000000000000000000736f6c6f2d64656c2d3161"
        shareBps: 6000
      - id: "0x000000000000000000736f6c6f2d64656c2d3162"
        shareBps: 4000
  - id: "0x000000000000000000736f6c6f2d706f6f6c2d32"
    shareBps: 3000
    delegates:
      - id: "0x000000000000000000736f6c6f2d64656c2d3261"
        shareBps: 10000
`

var (
	soloOwner = sdao.MustParseAddress("0x00000000000000000000736f6c6f2d6f776e6572")

	soloAccounts = []sdao.Address{
		sdao.MustParseAddress("0x00000000000000000000736f6c6f2d6163632d31"),
		sdao.MustParseAddress("0x00000000000000000000736f6c6f2d6163632d32"),
		sdao.MustParseAddress("0x00000000000000000000736f6c6f2d6163632d33"),
	}

	soloBalance = new(big.Int).Mul(big.NewInt(1_000_000), sdao.MicroStx)
	soloMinimum = new(big.Int).Mul(big.NewInt(50_000), sdao.MicroStx)
)

func soloAction(ctx *cli.Context) error {
	initLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		fatal(err)
	}
	db, err := openState(ctx)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	params := cfg.PoxParams()
	sim := pox.NewSimulator(params, soloMinimum)
	p, err := protocol.New(state.New(db), sim, params, soloOwner)
	if err != nil {
		fatal(err)
	}
	if err := cfg.Apply(p, soloOwner); err != nil {
		fatal(err)
	}
	if err := seedAccounts(p); err != nil {
		fatal(err)
	}

	if ctx.Bool(enableMetricsFlag.Name) {
		metrics.InitializePrometheusMetrics()
	}

	s := &solo{
		p:      p,
		sim:    sim,
		params: params,
	}
	s.height.Store(params.FirstBurnHeight)
	s.settled = params.CycleOf(params.FirstBurnHeight)
	s.prepared = s.settled

	handler := api.New(p, s.height.Load, api.Options{
		AllowedOrigins:  ctx.String(apiCorsFlag.Name),
		PprofOn:         ctx.Bool(pprofFlag.Name),
		EnableReqLogger: ctx.Bool(enableAPILogsFlag.Name),
		EnableMetrics:   ctx.Bool(enableMetricsFlag.Name),
	})

	printSoloStartupMessage(ctx, params)

	group, groupCtx := errgroup.WithContext(handleExitSignal())
	group.Go(func() error {
		return serveHTTP(groupCtx, "api", ctx.String(apiAddrFlag.Name), handler)
	})
	if ctx.Bool(enableMetricsFlag.Name) {
		group.Go(func() error {
			return serveHTTP(groupCtx, "metrics", ctx.String(metricsAddrFlag.Name), metrics.HTTPHandler())
		})
	}
	group.Go(func() error {
		return s.loop(groupCtx, ctx.Duration(blockTimeFlag.Name))
	})
	return group.Wait()
}

// seedAccounts funds the well-known solo accounts and makes an initial
// deposit so there is capital to allocate. Safe to call on a persisted
// state, funded accounts are left alone.
func seedAccounts(p *protocol.Protocol) error {
	for _, account := range soloAccounts {
		balance, err := p.Stx().BalanceOf(account)
		if err != nil {
			return err
		}
		if balance.Sign() != 0 {
			continue
		}
		if err := p.Stx().Mint(account, soloBalance); err != nil {
			return err
		}
		deposit := new(big.Int).Rsh(soloBalance, 1)
		if _, err := p.Deposit(account, deposit, sdao.Address{}); err != nil {
			return err
		}
		log.Info("solo account funded", "account", account, "balance", soloBalance, "deposited", deposit)
	}
	return p.Commit()
}

func serveHTTP(ctx context.Context, name, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info(name+" server started", "addr", "http://"+addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("stopping " + name + " server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// solo drives the protocol against the pox simulator: one burn block
// per tick, the allocation machine in each prepare phase and reward
// settlement at each cycle rollover.
type solo struct {
	p      *protocol.Protocol
	sim    *pox.Simulator
	params pox.Params

	height   atomic.Uint64
	prepared uint64 // last cycle the allocation ran for
	settled  uint64 // last cycle rewards were reconciled for
}

func (s *solo) loop(ctx context.Context, blockTime time.Duration) error {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		height := s.height.Add(1)
		cycle := s.params.CycleOf(height)

		if next := cycle + 1; s.params.InPreparePhase(height) && s.prepared < next {
			if err := s.prepareCycle(next); err != nil {
				log.Error("cycle preparation failed", "cycle", next, "err", err)
			} else {
				s.prepared = next
			}
		}
		if cycle > s.settled {
			if err := s.settleCycle(cycle); err != nil {
				log.Error("cycle settlement failed", "cycle", cycle, "err", err)
			} else {
				s.settled = cycle
			}
		}
	}
}

func (s *solo) prepareCycle(cycle uint64) error {
	if err := s.p.PreparePools(soloOwner, cycle); err != nil {
		return err
	}
	poolIDs, err := s.p.Pools().List()
	if err != nil {
		return err
	}
	for _, id := range poolIDs {
		if err := s.p.PrepareDelegates(soloOwner, id, cycle); err != nil {
			return err
		}
		pool, err := s.p.Pools().Get(id)
		if err != nil {
			return err
		}
		if err := s.p.ExecutePool(soloOwner, id, pool.Delegates, cycle); err != nil {
			return err
		}
	}
	if err := s.p.Commit(); err != nil {
		return err
	}

	capital, err := s.p.TotalCapital()
	if err != nil {
		return err
	}
	log.Info("cycle prepared", "cycle", cycle, "capital", capital)
	return nil
}

// settleCycle simulates native stacking yield of roughly 0.1% of each
// delegate's locked amount, then reconciles rewards and excess.
func (s *solo) settleCycle(cycle uint64) error {
	poolIDs, err := s.p.Pools().List()
	if err != nil {
		return err
	}
	total := new(big.Int)
	for _, id := range poolIDs {
		pool, err := s.p.Pools().Get(id)
		if err != nil {
			return err
		}
		for _, delegate := range pool.Delegates {
			locked, _, err := s.sim.Account(delegate)
			if err != nil {
				return err
			}
			if reward := new(big.Int).Div(locked, big.NewInt(1000)); reward.Sign() > 0 {
				s.sim.AddReward(delegate, reward)
			}
			swept, err := s.p.HandleRewards(soloOwner, id, delegate)
			if err != nil {
				return err
			}
			total.Add(total, swept)
			if _, err := s.p.HandleExcess(soloOwner, delegate); err != nil {
				return err
			}
		}
	}
	if err := s.p.Commit(); err != nil {
		return err
	}

	rate, err := s.p.StxPerStstx()
	if err != nil {
		return err
	}
	log.Info("cycle settled", "cycle", cycle, "rewards", total, "stxPerStstx", rate)
	return nil
}

func printSoloStartupMessage(ctx *cli.Context, params pox.Params) {
	log.Info("starting solo mode",
		"cycleLength", params.CycleLength,
		"prepareLength", params.PrepareLength,
		"blockTime", ctx.Duration(blockTimeFlag.Name),
		"persist", ctx.Bool(persistFlag.Name),
	)
	for _, account := range soloAccounts {
		log.Info("solo account", "address", account)
	}
}
