// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package protocol is the facade of the liquid stacking core. It owns
// the component wiring, the admin role set, the reserve and exchange
// rate accounting, and runs every mutating operation under a state
// checkpoint so failures never partially apply.
package protocol

import (
	"math/big"

	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/metrics"
	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/protocol/ftoken"
	"github.com/stackingdao/core/protocol/ledger"
	"github.com/stackingdao/core/protocol/pools"
	"github.com/stackingdao/core/protocol/positions"
	"github.com/stackingdao/core/protocol/rewards"
	"github.com/stackingdao/core/protocol/strategy"
	"github.com/stackingdao/core/protocol/withdrawals"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

var logger = log.WithContext("pkg", "protocol")

var (
	metricIdleCapital   = metrics.LazyLoadGauge("protocol_idle_capital")
	metricTotalDeposits = metrics.LazyLoadCounter("protocol_deposits_count")
)

// Reward asset identifiers.
const (
	AssetSTX  = "stx"
	AssetSBTC = "sbtc"
)

// Component accounts. Every component owns its storage slots and, for
// token ledgers and distributors, its custody balances under one of
// these addresses.
var (
	AddrProtocol    = sdao.BytesToAddress([]byte("core.protocol"))
	AddrReserve     = sdao.BytesToAddress([]byte("core.reserve"))
	AddrStStxToken  = sdao.BytesToAddress([]byte("core.token.ststx"))
	AddrStxToken    = sdao.BytesToAddress([]byte("core.token.stx"))
	AddrSbtcToken   = sdao.BytesToAddress([]byte("core.token.sbtc"))
	AddrLedger      = sdao.BytesToAddress([]byte("core.ledger"))
	AddrPositions   = sdao.BytesToAddress([]byte("core.positions"))
	AddrPools       = sdao.BytesToAddress([]byte("core.pools"))
	AddrStxRewards  = sdao.BytesToAddress([]byte("core.rewards.stx"))
	AddrSbtcRewards = sdao.BytesToAddress([]byte("core.rewards.sbtc"))
	AddrStrategy    = sdao.BytesToAddress([]byte("core.strategy"))
	AddrWithdrawals = sdao.BytesToAddress([]byte("core.withdrawals"))

	// addrNativeFunder briefly holds native stacking rewards on their
	// way into the distributor.
	addrNativeFunder = sdao.BytesToAddress([]byte("core.native-funder"))
)

var (
	slotOwner            = sdao.BytesToBytes32([]byte("owner"))
	slotAdmins           = sdao.BytesToBytes32([]byte("admins"))
	slotDepositsShutdown = sdao.BytesToBytes32([]byte("deposits-shutdown"))
	slotReserved         = sdao.BytesToBytes32([]byte("reserved"))
	slotCommissionSink   = sdao.BytesToBytes32([]byte("commission-sink"))
	slotDirectPool       = sdao.BytesToBytes32([]byte("direct-pool"))
)

// Protocol wires the components together and exposes the protocol
// operations.
type Protocol struct {
	state   *state.State
	params  pox.Params
	stacker pox.Stacker

	stx   *ftoken.Token
	ststx *ftoken.Token
	sbtc  *ftoken.Token

	ledger      *ledger.Service
	positions   *positions.Service
	pools       *pools.Service
	stxRewards  *rewards.Distributor
	sbtcRewards *rewards.Distributor
	strategy    *strategy.Service
	withdrawals *withdrawals.Service

	owner            *store.Address
	admins           *store.Mapping[sdao.Address, bool]
	depositsShutdown *store.Bool
	reserved         *store.Uint256
	commissionSink   *store.Address
	directPool       *store.Mapping[sdao.Address, sdao.Address]
}

// New wires a protocol instance over the given state and native
// stacking primitive. owner becomes the protocol owner if none is set
// yet.
func New(st *state.State, stacker pox.Stacker, params pox.Params, owner sdao.Address) (*Protocol, error) {
	sctx := store.NewContext(AddrProtocol, st)

	p := &Protocol{
		state:   st,
		params:  params,
		stacker: stacker,

		stx:   ftoken.New("stx", AddrStxToken, st),
		ststx: ftoken.New("ststx", AddrStStxToken, st),
		sbtc:  ftoken.New("sbtc", AddrSbtcToken, st),

		ledger:    ledger.New(store.NewContext(AddrLedger, st)),
		positions: positions.New(store.NewContext(AddrPositions, st)),
		pools:     pools.New(store.NewContext(AddrPools, st)),

		owner:            store.NewAddress(sctx, slotOwner),
		admins:           store.NewMapping[sdao.Address, bool](sctx, slotAdmins),
		depositsShutdown: store.NewBool(sctx, slotDepositsShutdown),
		reserved:         store.NewUint256(sctx, slotReserved),
		commissionSink:   store.NewAddress(sctx, slotCommissionSink),
		directPool:       store.NewMapping[sdao.Address, sdao.Address](sctx, slotDirectPool),
	}

	p.stxRewards = rewards.New(AddrStxRewards, st, p.stx, p.ststx, p.ledger, p.pools)
	p.sbtcRewards = rewards.New(AddrSbtcRewards, st, p.sbtc, p.ststx, p.ledger, p.pools)
	p.strategy = strategy.New(AddrStrategy, st, p.pools, stacker, params,
		&reserveAdapter{p}, &sinkAdapter{p})
	p.withdrawals = withdrawals.New(AddrWithdrawals, st, params)

	// settle reward entitlement before any liquid-token balance
	// mutation becomes visible
	p.ststx.SetRefreshHook(p.refreshWallet)

	current, err := p.owner.Get()
	if err != nil {
		return nil, err
	}
	if current.IsZero() {
		p.owner.Set(owner)
	}
	return p, nil
}

func (p *Protocol) distributors() []*rewards.Distributor {
	return []*rewards.Distributor{p.stxRewards, p.sbtcRewards}
}

// Distributor returns the reward distributor for the asset.
func (p *Protocol) Distributor(asset string) (*rewards.Distributor, error) {
	switch asset {
	case AssetSTX:
		return p.stxRewards, nil
	case AssetSBTC:
		return p.sbtcRewards, nil
	default:
		return nil, errs.Newf(errs.CodeUnknownPool, "unknown reward asset %q", asset)
	}
}

// refreshWallet is the liquid token's refresh hook: pending rewards of
// the wallet identity are realized at the old balance before the new
// balance is recorded.
func (p *Protocol) refreshWallet(holder sdao.Address, newBalance *big.Int) error {
	for _, d := range p.distributors() {
		if _, err := d.SavePendingRewards(holder, holder); err != nil {
			return err
		}
	}
	entry, err := p.positions.Get(holder)
	if err != nil {
		return err
	}
	if entry.IsActive() {
		// an active position's balance aggregates its holders' funds;
		// attribution happens in the sub-ledger, never in parallel
		// under the wallet identity
		return p.ledger.SetAmount(holder, holder, new(big.Int))
	}
	return p.ledger.SetAmount(holder, holder, newBalance)
}

// run executes fn under a checkpoint and rolls every change back if it
// fails.
func (p *Protocol) run(fn func() error) error {
	checkpoint := p.state.NewCheckpoint()
	if err := fn(); err != nil {
		p.state.RevertTo(checkpoint)
		p.ledger.ResetCache()
		return err
	}
	return nil
}

// Commit writes all journaled changes to the backing store atomically.
func (p *Protocol) Commit() error {
	return p.state.Stage().Commit()
}

func (p *Protocol) requireAdmin(caller sdao.Address) error {
	owner, err := p.owner.Get()
	if err != nil {
		return err
	}
	if caller == owner {
		return nil
	}
	isAdmin, err := p.admins.Get(caller)
	if err != nil {
		return err
	}
	if !isAdmin {
		return errs.Newf(errs.CodeUnauthorized, "%s is not a protocol admin", caller)
	}
	return nil
}

func (p *Protocol) requireOwner(caller sdao.Address) error {
	owner, err := p.owner.Get()
	if err != nil {
		return err
	}
	if caller != owner {
		return errs.Newf(errs.CodeUnauthorized, "%s is not the protocol owner", caller)
	}
	return nil
}

// SetAdmin grants or revokes the admin role. Owner only.
func (p *Protocol) SetAdmin(caller, admin sdao.Address, grant bool) error {
	return p.run(func() error {
		if err := p.requireOwner(caller); err != nil {
			return err
		}
		if !grant {
			p.admins.Delete(admin)
			return nil
		}
		return p.admins.Set(admin, true)
	})
}

// TotalCapital returns the stackable capital: the reserve balance
// minus the amount reserved for open withdrawal tickets. Locked
// capital stays on the reserve ledger account, the lock itself lives
// in the native primitive.
func (p *Protocol) TotalCapital() (*big.Int, error) {
	balance, err := p.stx.BalanceOf(AddrReserve)
	if err != nil {
		return nil, err
	}
	reserved, err := p.reserved.Get()
	if err != nil {
		return nil, err
	}
	capital := new(big.Int).Sub(balance, reserved)
	if capital.Sign() < 0 {
		capital.SetInt64(0)
	}
	return capital, nil
}

// StxPerStstx returns the exchange rate in micro-STX per whole stSTX
// unit times 1e6, 1:1 while no liquid supply exists.
func (p *Protocol) StxPerStstx() (*big.Int, error) {
	supply, err := p.ststx.TotalSupply()
	if err != nil {
		return nil, err
	}
	if supply.Sign() == 0 {
		return new(big.Int).Set(sdao.MicroStx), nil
	}
	capital, err := p.TotalCapital()
	if err != nil {
		return nil, err
	}
	rate := new(big.Int).Mul(capital, sdao.MicroStx)
	return rate.Div(rate, supply), nil
}

// Deposit moves amount STX from the caller into the reserve and mints
// stSTX at the current exchange rate. A non-zero pool tags the deposit
// for direct stacking attribution.
func (p *Protocol) Deposit(caller sdao.Address, amount *big.Int, pool sdao.Address) (*big.Int, error) {
	var minted *big.Int
	err := p.run(func() error {
		shutdown, err := p.depositsShutdown.Get()
		if err != nil {
			return err
		}
		if shutdown {
			return errs.New(errs.CodeDepositsShutdown, "deposits are shut down")
		}

		supply, err := p.ststx.TotalSupply()
		if err != nil {
			return err
		}
		capital, err := p.TotalCapital()
		if err != nil {
			return err
		}

		if err := p.stx.Transfer(caller, AddrReserve, amount); err != nil {
			return err
		}

		minted = new(big.Int).Set(amount)
		if supply.Sign() > 0 && capital.Sign() > 0 {
			minted.Mul(amount, supply)
			minted.Div(minted, capital)
		}
		if err := p.ststx.Mint(caller, minted); err != nil {
			return err
		}

		if !pool.IsZero() {
			if _, err := p.pools.Get(pool); err != nil {
				return err
			}
			if err := p.directPool.Set(caller, pool); err != nil {
				return err
			}
		}

		metricTotalDeposits().Add(1)
		logger.Info("deposit", "holder", caller, "stx", amount, "ststx", minted)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

// InitWithdraw burns receiptAmount of the caller's stSTX, reserves the
// matching STX at the current exchange rate and opens a withdrawal
// ticket unlocking a configured number of cycles ahead.
func (p *Protocol) InitWithdraw(caller sdao.Address, receiptAmount *big.Int, burnHeight uint64) (*withdrawals.Ticket, error) {
	var ticket *withdrawals.Ticket
	err := p.run(func() error {
		supply, err := p.ststx.TotalSupply()
		if err != nil {
			return err
		}
		capital, err := p.TotalCapital()
		if err != nil {
			return err
		}

		// burn settles pending rewards through the refresh hook first
		if err := p.ststx.Burn(caller, receiptAmount); err != nil {
			return err
		}

		stxAmount := new(big.Int).Set(receiptAmount)
		if supply.Sign() > 0 {
			stxAmount.Mul(receiptAmount, capital)
			stxAmount.Div(stxAmount, supply)
		}
		if err := p.reserved.Add(stxAmount); err != nil {
			return err
		}

		pool, err := p.directPool.Get(caller)
		if err != nil {
			return err
		}
		p.directPool.Delete(caller)

		ticket, err = p.withdrawals.Open(caller, stxAmount, receiptAmount, pool, burnHeight)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// CancelWithdraw reverses an init-withdraw before its unlock height:
// the ticket is deleted, the stSTX re-minted and the reservation and
// direct stacking attribution restored.
func (p *Protocol) CancelWithdraw(caller sdao.Address, ticketID uint64, burnHeight uint64) error {
	return p.run(func() error {
		ticket, err := p.withdrawals.Cancel(ticketID, caller, burnHeight)
		if err != nil {
			return err
		}
		if err := p.reserved.Sub(ticket.StxAmount); err != nil {
			return err
		}
		if err := p.ststx.Mint(caller, ticket.ReceiptAmount); err != nil {
			return err
		}
		if !ticket.Pool.IsZero() {
			return p.directPool.Set(caller, ticket.Pool)
		}
		return nil
	})
}

// Withdraw settles the ticket at or after its unlock height, paying
// out the reserved STX minus the unstake fee, which goes to the
// commission sink.
func (p *Protocol) Withdraw(caller sdao.Address, ticketID uint64, burnHeight uint64) (*big.Int, error) {
	var paid *big.Int
	err := p.run(func() error {
		ticket, err := p.withdrawals.Settle(ticketID, caller, burnHeight)
		if err != nil {
			return err
		}
		if err := p.reserved.Sub(ticket.StxAmount); err != nil {
			return err
		}

		fee, err := p.withdrawals.FeeOf(ticket.StxAmount)
		if err != nil {
			return err
		}
		if fee.Sign() > 0 {
			sink, err := p.commissionSink.Get()
			if err != nil {
				return err
			}
			if err := p.stx.Transfer(AddrReserve, sink, fee); err != nil {
				return err
			}
		}

		paid = new(big.Int).Sub(ticket.StxAmount, fee)
		return p.stx.Transfer(AddrReserve, caller, paid)
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// AddRewards books a bulk reward deposit in the given asset, funded by
// the caller.
func (p *Protocol) AddRewards(caller, pool sdao.Address, asset string, amount *big.Int) error {
	dist, err := p.Distributor(asset)
	if err != nil {
		return err
	}
	return p.run(func() error {
		return dist.AddRewards(caller, pool, amount)
	})
}

// ClaimPendingRewards pays out the caller's entitlement under the
// position in the given asset.
func (p *Protocol) ClaimPendingRewards(caller, position sdao.Address, asset string) (*big.Int, error) {
	dist, err := p.Distributor(asset)
	if err != nil {
		return nil, err
	}
	var paid *big.Int
	err = p.run(func() error {
		paid, err = dist.ClaimPendingRewards(caller, position)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// ActivatePosition whitelists or reactivates a position. Any pending
// reward tracked under the position's own wallet identity is settled
// before the switch, so toggling activity can never create or destroy
// value.
func (p *Protocol) ActivatePosition(caller, position, reserve sdao.Address) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		changed, err := p.positions.Activate(position, reserve)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		for _, d := range p.distributors() {
			if _, err := d.SavePendingRewards(position, position); err != nil {
				return err
			}
			if err := d.UnfreezePosition(position); err != nil {
				return err
			}
		}
		// from now on the position's balance is attributed through its
		// sub-ledger, not the wallet identity
		return p.ledger.SetAmount(position, position, new(big.Int))
	})
}

// DeactivatePosition freezes the position's reward entitlement. The
// second deactivation retires the position for good.
func (p *Protocol) DeactivatePosition(caller, position sdao.Address) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		if err := p.positions.Deactivate(position); err != nil {
			return err
		}
		for _, d := range p.distributors() {
			if err := d.FreezePosition(position); err != nil {
				return err
			}
		}
		return nil
	})
}

// RefreshPosition records a holder's new balance inside a position
// sub-ledger, settling pending rewards at the old balance first. Only
// the position's reserve account or an admin may report.
func (p *Protocol) RefreshPosition(caller, holder, position sdao.Address, newBalance *big.Int) error {
	return p.run(func() error {
		entry, err := p.positions.Get(position)
		if err != nil {
			return err
		}
		if entry == nil {
			return errs.Newf(errs.CodeUnknownPosition, "position %s is not whitelisted", position)
		}
		if !entry.IsActive() {
			return errs.Newf(errs.CodePositionInactive, "position %s is not active", position)
		}
		if caller != entry.Reserve {
			if err := p.requireAdmin(caller); err != nil {
				return err
			}
		}

		for _, d := range p.distributors() {
			if _, err := d.SavePendingRewards(holder, position); err != nil {
				return err
			}
		}
		return p.ledger.SetAmount(position, holder, newBalance)
	})
}

// PreparePools runs the pool-level allocation for the cycle. Admin only.
func (p *Protocol) PreparePools(caller sdao.Address, cycle uint64) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		if err := p.strategy.PreparePools(cycle); err != nil {
			return err
		}
		capital, err := p.TotalCapital()
		if err != nil {
			return err
		}
		metricIdleCapital().Set(capital.Int64())
		return nil
	})
}

// PrepareDelegates runs the delegate-level allocation. Admin only.
func (p *Protocol) PrepareDelegates(caller, pool sdao.Address, cycle uint64) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		return p.strategy.PrepareDelegates(pool, cycle)
	})
}

// ExecutePool issues the external stacking calls for the pool's
// prepared targets. Admin only.
func (p *Protocol) ExecutePool(caller, pool sdao.Address, delegates []sdao.Address, cycle uint64) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		return p.strategy.Execute(pool, delegates, cycle)
	})
}

// HandleExcess returns a delegate's over-provisioned capital to the
// reserve. Admin only.
func (p *Protocol) HandleExcess(caller, delegate sdao.Address) (*big.Int, error) {
	var excess *big.Int
	err := p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		var err error
		excess, err = p.strategy.HandleExcess(delegate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return excess, nil
}

// HandleRewards sweeps a delegate's native stacking rewards into the
// STX distributor. Admin only.
func (p *Protocol) HandleRewards(caller, pool, delegate sdao.Address) (*big.Int, error) {
	var swept *big.Int
	err := p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		var err error
		swept, err = p.strategy.HandleRewards(pool, delegate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// SetPool registers or replaces a pool. Admin only.
func (p *Protocol) SetPool(caller, id sdao.Address, pool pools.Pool, delegateShares map[sdao.Address]uint32) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		return p.pools.SetPool(id, pool, delegateShares)
	})
}

// SetStandardCommissionBps sets the protocol-wide commission. Admin only.
func (p *Protocol) SetStandardCommissionBps(caller sdao.Address, bps uint32) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		return p.pools.SetStandardCommissionBps(bps)
	})
}

// SetCommissionSink sets the receiver of withdrawn commission and
// unstake fees. Admin only.
func (p *Protocol) SetCommissionSink(caller, sink sdao.Address) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		p.commissionSink.Set(sink)
		return nil
	})
}

// WithdrawCommission pays the accrued commission of the asset to the
// configured sink. Admin only.
func (p *Protocol) WithdrawCommission(caller sdao.Address, asset string) (*big.Int, error) {
	dist, err := p.Distributor(asset)
	if err != nil {
		return nil, err
	}
	var paid *big.Int
	err = p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		sink, err := p.commissionSink.Get()
		if err != nil {
			return err
		}
		paid, err = dist.WithdrawCommission(sink)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// SetClaimsEnabled toggles reward payouts for the asset. Admin only.
func (p *Protocol) SetClaimsEnabled(caller sdao.Address, asset string, enabled bool) error {
	dist, err := p.Distributor(asset)
	if err != nil {
		return err
	}
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		dist.SetClaimsEnabled(enabled)
		return nil
	})
}

// SetDepositsShutdown toggles the deposit circuit breaker. Admin only.
func (p *Protocol) SetDepositsShutdown(caller sdao.Address, shutdown bool) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		p.depositsShutdown.Set(shutdown)
		return nil
	})
}

// SetWithdrawalOffset configures the unlock cycle offset. Admin only.
func (p *Protocol) SetWithdrawalOffset(caller sdao.Address, offset uint64) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		return p.withdrawals.SetOffset(offset)
	})
}

// SetUnstakeFeeBps configures the withdrawal fee. Admin only.
func (p *Protocol) SetUnstakeFeeBps(caller sdao.Address, bps uint32) error {
	return p.run(func() error {
		if err := p.requireAdmin(caller); err != nil {
			return err
		}
		return p.withdrawals.SetUnstakeFeeBps(bps)
	})
}

// Component accessors for read-side consumers.

func (p *Protocol) Stx() *ftoken.Token                { return p.stx }
func (p *Protocol) StStx() *ftoken.Token              { return p.ststx }
func (p *Protocol) Sbtc() *ftoken.Token               { return p.sbtc }
func (p *Protocol) Ledger() *ledger.Service           { return p.ledger }
func (p *Protocol) Positions() *positions.Service     { return p.positions }
func (p *Protocol) Pools() *pools.Service             { return p.pools }
func (p *Protocol) Strategy() *strategy.Service       { return p.strategy }
func (p *Protocol) Withdrawals() *withdrawals.Service { return p.withdrawals }
func (p *Protocol) Params() pox.Params                { return p.params }

// reserveAdapter exposes the facade's capital accounting to the
// strategy.
type reserveAdapter struct{ p *Protocol }

func (r *reserveAdapter) TotalCapital() (*big.Int, error) {
	return r.p.TotalCapital()
}

// ReturnExcess is bookkeeping only: locked capital never leaves the
// reserve ledger account, the lock lives in the native primitive.
func (r *reserveAdapter) ReturnExcess(delegate sdao.Address, amount *big.Int) error {
	logger.Debug("excess capital released", "delegate", delegate, "amount", amount)
	return nil
}

// sinkAdapter feeds native stacking rewards into the STX distributor.
// The rewards are created by the chain, so they enter the STX ledger
// through a mint to the funder account.
type sinkAdapter struct{ p *Protocol }

func (s *sinkAdapter) AddRewards(pool, delegate sdao.Address, amount *big.Int) error {
	if err := s.p.stx.Mint(addrNativeFunder, amount); err != nil {
		return err
	}
	return s.p.stxRewards.AddRewards(addrNativeFunder, pool, amount)
}
