// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package strategy computes the per-cycle capital allocation: target
// locked amounts per pool from share weights and available capital,
// then per delegate within each pool, and executes the targets against
// the native stacking primitive. The per-cycle state machine
// Idle -> PreparedPool -> PreparedDelegates -> Executed makes every
// transition idempotent within a cycle and forbids skipping.
package strategy

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/metrics"
	"github.com/stackingdao/core/pox"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/protocol/pools"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/state"
	"github.com/stackingdao/core/store"
)

var logger = log.WithContext("pkg", "strategy")

var (
	metricTargetLocked = metrics.LazyLoadGaugeVec("strategy_target_locked", []string{"pool"})
	metricExecutions   = metrics.LazyLoadCounter("strategy_executions_count")
)

// Reserve provides the capital the strategy allocates and takes back
// over-provisioned funds.
type Reserve interface {
	// TotalCapital returns idle plus locked capital, in micro-STX.
	TotalCapital() (*big.Int, error)

	// ReturnExcess credits over-provisioned capital back to the idle
	// reserve, taking custody of the amount at the delegate account.
	ReturnExcess(delegate sdao.Address, amount *big.Int) error
}

// RewardSink receives native stacking rewards swept off delegates,
// taking custody of the amount at the delegate account.
type RewardSink interface {
	AddRewards(pool, delegate sdao.Address, amount *big.Int) error
}

// Service drives the allocation state machine.
type Service struct {
	storage *storage

	pools   *pools.Service
	stacker pox.Stacker
	params  pox.Params
	reserve Reserve
	rewards RewardSink
}

func New(
	addr sdao.Address,
	st *state.State,
	pls *pools.Service,
	stacker pox.Stacker,
	params pox.Params,
	reserve Reserve,
	rewards RewardSink,
) *Service {
	return &Service{
		storage: newStorage(store.NewContext(addr, st)),
		pools:   pls,
		stacker: stacker,
		params:  params,
		reserve: reserve,
		rewards: rewards,
	}
}

// CycleState returns the global state machine position.
func (s *Service) CycleState() (uint64, State, error) {
	rec, err := s.storage.cycle.Get(staticKey{})
	if err != nil {
		return 0, StateIdle, errors.Wrap(err, "failed to get cycle record")
	}
	return rec.Cycle, rec.State, nil
}

// PoolState returns one pool's state machine position and its prepared
// target for the cycle.
func (s *Service) PoolState(pool sdao.Address) (uint64, State, *big.Int, error) {
	rec, err := s.storage.pools.Get(pool)
	if err != nil {
		return 0, StateIdle, nil, errors.Wrap(err, "failed to get pool record")
	}
	rec.normalize()
	return rec.Cycle, rec.State, rec.Target, nil
}

// lockedOf sums the last recorded locked amounts of the pool's delegates.
func (s *Service) lockedOf(pool *pools.Pool) (*big.Int, error) {
	sum := new(big.Int)
	for _, id := range pool.Delegates {
		entry, err := s.pools.GetDelegate(id)
		if err != nil {
			return nil, err
		}
		sum.Add(sum, entry.LastLocked)
	}
	return sum, nil
}

// PreparePools computes the target locked amount per pool for the
// cycle. Idempotent within a cycle; a past cycle fails.
func (s *Service) PreparePools(cycle uint64) error {
	rec, err := s.storage.cycle.Get(staticKey{})
	if err != nil {
		return errors.Wrap(err, "failed to get cycle record")
	}
	if rec.Cycle == cycle && rec.State >= StatePreparedPool {
		return nil
	}
	if rec.Cycle > cycle {
		return errs.Newf(errs.CodeCycleAlreadyProcessed,
			"cycle %d already processed, at %d", cycle, rec.Cycle)
	}

	total, err := s.reserve.TotalCapital()
	if err != nil {
		return err
	}
	ids, err := s.pools.List()
	if err != nil {
		return err
	}

	desired := make([]*big.Int, len(ids))
	locked := make([]*big.Int, len(ids))
	for i, id := range ids {
		pool, err := s.pools.Get(id)
		if err != nil {
			return err
		}
		want := new(big.Int).Mul(total, big.NewInt(int64(pool.ShareBps)))
		desired[i] = want.Div(want, big.NewInt(sdao.BpsDenominator))
		if locked[i], err = s.lockedOf(pool); err != nil {
			return err
		}
	}

	targets := ReachTarget(desired, locked)
	for i, id := range ids {
		if err := s.storage.pools.Set(id, poolRecord{
			Cycle:  cycle,
			State:  StatePreparedPool,
			Target: targets[i],
		}); err != nil {
			return errors.Wrap(err, "failed to set pool record")
		}
		metricTargetLocked().SetWithLabel(targets[i].Int64(), map[string]string{"pool": id.String()})
	}

	if err := s.storage.cycle.Set(staticKey{}, cycleRecord{Cycle: cycle, State: StatePreparedPool}); err != nil {
		return errors.Wrap(err, "failed to set cycle record")
	}
	logger.Info("pools prepared", "cycle", cycle, "totalCapital", total)
	return nil
}

// PrepareDelegates distributes the pool's prepared target over its
// delegates by share weight. On net inflow the new capital is spread
// by ReachTarget; on net outflow delegates are released all-or-nothing
// via LowestCombination, fully unlocking the fewest delegates covering
// the outflow and pinning the rest at their locked amounts. Requires
// PreparePools for the same cycle; idempotent within a cycle.
func (s *Service) PrepareDelegates(pool sdao.Address, cycle uint64) error {
	gcycle, gstate, err := s.CycleState()
	if err != nil {
		return err
	}
	if gcycle != cycle || gstate < StatePreparedPool {
		return errs.Newf(errs.CodeWrongCycleState,
			"pools not prepared for cycle %d", cycle)
	}

	rec, err := s.storage.pools.Get(pool)
	if err != nil {
		return errors.Wrap(err, "failed to get pool record")
	}
	rec.normalize()
	if rec.Cycle != cycle || rec.State < StatePreparedPool {
		return errs.Newf(errs.CodeWrongCycleState,
			"pool %s not prepared for cycle %d", pool, cycle)
	}
	if rec.State >= StatePreparedDelegates {
		return nil
	}

	entry, err := s.pools.Get(pool)
	if err != nil {
		return err
	}
	if len(entry.Delegates) == 0 {
		return errs.Newf(errs.CodeUnknownPool, "pool %s has no delegates", pool)
	}

	desired := make([]*big.Int, len(entry.Delegates))
	locked := make([]*big.Int, len(entry.Delegates))
	assigned := new(big.Int)
	for i, id := range entry.Delegates {
		delegate, err := s.pools.GetDelegate(id)
		if err != nil {
			return err
		}
		want := new(big.Int).Mul(rec.Target, big.NewInt(int64(delegate.ShareBps)))
		desired[i] = want.Div(want, big.NewInt(sdao.BpsDenominator))
		assigned.Add(assigned, desired[i])
		locked[i] = delegate.LastLocked
	}
	// share rounding dust goes to the last delegate so the pool
	// target is met exactly
	dust := new(big.Int).Sub(rec.Target, assigned)
	if dust.Sign() > 0 {
		last := len(desired) - 1
		desired[last].Add(desired[last], dust)
	}

	var targets []*big.Int
	if totalLocked := sumAmounts(locked); totalLocked.Cmp(rec.Target) > 0 {
		// freed capital leaves delegates all-or-nothing: every partial
		// shrink would cost a full unlock and re-lock externally
		outflow := new(big.Int).Sub(totalLocked, rec.Target)
		targets, _, err = LowestCombination(outflow, locked)
		if err != nil {
			return err
		}
	} else {
		targets = ReachTarget(desired, locked)
	}
	for i, id := range entry.Delegates {
		if err := s.pools.SetDelegateTarget(id, targets[i]); err != nil {
			return err
		}
	}

	rec.State = StatePreparedDelegates
	if err := s.storage.pools.Set(pool, rec); err != nil {
		return errors.Wrap(err, "failed to set pool record")
	}
	logger.Info("delegates prepared", "pool", pool, "cycle", cycle, "target", rec.Target)
	return nil
}

// Execute issues the external stacking calls matching each delegate's
// prepared target and records the realized outcome. delegates must
// exactly match the pool's registered delegate list, order included.
// Idempotent within a cycle; cannot run before PrepareDelegates.
func (s *Service) Execute(pool sdao.Address, delegates []sdao.Address, cycle uint64) error {
	rec, err := s.storage.pools.Get(pool)
	if err != nil {
		return errors.Wrap(err, "failed to get pool record")
	}
	rec.normalize()
	if rec.Cycle == cycle && rec.State == StateExecuted {
		return nil
	}
	if rec.Cycle != cycle || rec.State != StatePreparedDelegates {
		return errs.Newf(errs.CodeWrongCycleState,
			"pool %s delegates not prepared for cycle %d", pool, cycle)
	}

	entry, err := s.pools.Get(pool)
	if err != nil {
		return err
	}
	if !sameDelegates(entry.Delegates, delegates) {
		return errs.Newf(errs.CodeDelegateMismatch,
			"delegate list does not match pool %s", pool)
	}

	minimum, err := s.stacker.MinimumAmount()
	if err != nil {
		return err
	}
	untilHeight := s.params.StartOf(cycle + 1)

	for _, id := range delegates {
		delegate, err := s.pools.GetDelegate(id)
		if err != nil {
			return err
		}
		target := delegate.TargetLocked
		current, _, err := s.stacker.Account(id)
		if err != nil {
			return err
		}

		switch {
		case target.Sign() == 0 || target.Cmp(minimum) < 0:
			// below the primitive's minimum there is nothing to keep
			if err := s.stacker.Revoke(id); err != nil {
				return err
			}
			unlocked, err := s.stacker.Unlock(id)
			if err != nil {
				return err
			}
			if err := s.pools.RecordExecution(id, new(big.Int), unlocked); err != nil {
				return err
			}

		case target.Cmp(current) == 0:
			// nothing moves, keep the lock in place for this cycle
			if err := s.stacker.Extend(id, cycle); err != nil {
				return err
			}
			if err := s.pools.RecordExecution(id, current, new(big.Int)); err != nil {
				return err
			}

		case target.Cmp(current) > 0:
			if err := s.stacker.Delegate(id, target, untilHeight); err != nil {
				return err
			}
			realized, err := s.stacker.Lock(id, target, cycle)
			if err != nil {
				return err
			}
			if err := s.pools.RecordExecution(id, realized, new(big.Int)); err != nil {
				return err
			}

		default:
			// shrinking a delegate is all-or-nothing: release the
			// full lock, then re-lock the target
			if err := s.stacker.Revoke(id); err != nil {
				return err
			}
			unlocked, err := s.stacker.Unlock(id)
			if err != nil {
				return err
			}
			if err := s.stacker.Delegate(id, target, untilHeight); err != nil {
				return err
			}
			realized, err := s.stacker.Lock(id, target, cycle)
			if err != nil {
				return err
			}
			unlocked.Sub(unlocked, realized)
			if err := s.pools.RecordExecution(id, realized, unlocked); err != nil {
				return err
			}
		}
	}

	rec.State = StateExecuted
	if err := s.storage.pools.Set(pool, rec); err != nil {
		return errors.Wrap(err, "failed to set pool record")
	}
	metricExecutions().Add(1)
	logger.Info("pool executed", "pool", pool, "cycle", cycle)
	return nil
}

// HandleExcess returns over-provisioned capital of the delegate to the
// reserve. The excess is the unlocked amount not needed to cover the
// gap between the delegate's target and its realized lock. The amount
// is withdrawn from the delegate account and removed from the tracked
// unlocked principal, so a repeated call returns nothing further and a
// later HandleRewards cannot mistake the principal for a reward.
func (s *Service) HandleExcess(id sdao.Address) (*big.Int, error) {
	delegate, err := s.pools.GetDelegate(id)
	if err != nil {
		return nil, err
	}
	shortfall := new(big.Int).Sub(delegate.TargetLocked, delegate.LastLocked)
	if shortfall.Sign() < 0 {
		shortfall.SetInt64(0)
	}
	excess := new(big.Int).Sub(delegate.LastUnlocked, shortfall)
	if excess.Sign() <= 0 {
		return new(big.Int), nil
	}

	if err := s.stacker.Withdraw(id, excess); err != nil {
		return nil, err
	}
	if err := s.reserve.ReturnExcess(id, excess); err != nil {
		return nil, err
	}
	remaining := new(big.Int).Sub(delegate.LastUnlocked, excess)
	if err := s.pools.RecordExecution(id, delegate.LastLocked, remaining); err != nil {
		return nil, err
	}
	logger.Debug("excess returned", "delegate", id, "amount", excess)
	return excess, nil
}

// HandleRewards sweeps native stacking rewards that accrued on the
// delegate beyond its tracked principal into the reward distributor.
// The reward is withdrawn from the delegate account as it is swept, so
// the account holds exactly the tracked principal afterwards and a
// repeated call sweeps nothing.
func (s *Service) HandleRewards(pool, id sdao.Address) (*big.Int, error) {
	delegate, err := s.pools.GetDelegate(id)
	if err != nil {
		return nil, err
	}
	_, unlocked, err := s.stacker.Account(id)
	if err != nil {
		return nil, err
	}
	reward := new(big.Int).Sub(unlocked, delegate.LastUnlocked)
	if reward.Sign() <= 0 {
		return new(big.Int), nil
	}

	if err := s.stacker.Withdraw(id, reward); err != nil {
		return nil, err
	}
	if err := s.rewards.AddRewards(pool, id, reward); err != nil {
		return nil, err
	}
	logger.Debug("native rewards swept", "pool", pool, "delegate", id, "amount", reward)
	return reward, nil
}

func sameDelegates(registered, given []sdao.Address) bool {
	if len(registered) != len(given) {
		return false
	}
	for i := range registered {
		if registered[i] != given[i] {
			return false
		}
	}
	return true
}
