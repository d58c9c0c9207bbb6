// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package positions manages the whitelist of position accounts.
// A position is an aggregating sub-account of another protocol with an
// isolated sub-ledger. Its lifecycle allows exactly one reactivation:
//
//	(not whitelisted) -> Active -> Deactivated -> Active -> Retired
//
// A retired position can never become active again; this closes the
// reward-window gaming door.
package positions

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/stackingdao/core/log"
	"github.com/stackingdao/core/protocol/errs"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/store"
)

var logger = log.WithContext("pkg", "positions")

// Status is the lifecycle state of a whitelisted position.
type Status uint8

const (
	StatusUnknown     Status = 0 // never whitelisted
	StatusActive      Status = 1
	StatusDeactivated Status = 2
	StatusRetired     Status = 3 // deactivated for the second time
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusDeactivated:
		return "deactivated"
	case StatusRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// Position is a whitelisted sub-account entry.
type Position struct {
	Status      Status
	Reserve     sdao.Address // account holding the position's external balance
	Reactivated bool         // the single allowed reactivation was consumed
}

// IsActive returns whether holders under this position currently accrue rewards.
func (p *Position) IsActive() bool {
	return p != nil && p.Status == StatusActive
}

var (
	slotPositions = sdao.BytesToBytes32([]byte("positions"))
	slotCount     = sdao.BytesToBytes32([]byte("position-count"))
	slotByIndex   = sdao.BytesToBytes32([]byte("position-by-index"))
)

type indexKey uint64

func (k indexKey) Bytes() []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k))
	return b[:]
}

// Service manages the position whitelist.
type Service struct {
	positions *store.Mapping[sdao.Address, Position]
	count     *store.Uint64
	byIndex   *store.Mapping[indexKey, sdao.Address]
}

func New(sctx *store.Context) *Service {
	return &Service{
		positions: store.NewMapping[sdao.Address, Position](sctx, slotPositions),
		count:     store.NewUint64(sctx, slotCount),
		byIndex:   store.NewMapping[indexKey, sdao.Address](sctx, slotByIndex),
	}
}

// Get returns the position entry, or nil if the address was never whitelisted.
func (s *Service) Get(position sdao.Address) (*Position, error) {
	has, err := s.positions.Has(position)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get position")
	}
	if !has {
		return nil, nil
	}
	entry, err := s.positions.Get(position)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get position")
	}
	return &entry, nil
}

// Activate whitelists the position or reactivates a deactivated one.
// It returns true when the call changed the position to active.
// Activating an already active position is a no-op.
func (s *Service) Activate(position, reserve sdao.Address) (bool, error) {
	entry, err := s.Get(position)
	if err != nil {
		return false, err
	}

	if entry == nil {
		count, err := s.count.Get()
		if err != nil {
			return false, err
		}
		if err := s.byIndex.Set(indexKey(count+1), position); err != nil {
			return false, err
		}
		s.count.Set(count + 1)

		if err := s.positions.Set(position, Position{
			Status:  StatusActive,
			Reserve: reserve,
		}); err != nil {
			return false, err
		}
		logger.Info("position whitelisted", "position", position)
		return true, nil
	}

	switch entry.Status {
	case StatusActive:
		return false, nil
	case StatusDeactivated:
		entry.Status = StatusActive
		entry.Reactivated = true
		if !reserve.IsZero() {
			entry.Reserve = reserve
		}
		if err := s.positions.Set(position, *entry); err != nil {
			return false, err
		}
		logger.Info("position reactivated", "position", position)
		return true, nil
	default:
		return false, errs.Newf(errs.CodeReactivationForbidden,
			"position %s is retired and cannot be reactivated", position)
	}
}

// Deactivate freezes the position's reward entitlement.
// The second deactivation retires the position for good.
func (s *Service) Deactivate(position sdao.Address) error {
	entry, err := s.Get(position)
	if err != nil {
		return err
	}
	if entry == nil {
		return errs.Newf(errs.CodeUnknownPosition, "position %s is not whitelisted", position)
	}
	if entry.Status != StatusActive {
		return nil
	}

	if entry.Reactivated {
		entry.Status = StatusRetired
	} else {
		entry.Status = StatusDeactivated
	}
	if err := s.positions.Set(position, *entry); err != nil {
		return err
	}
	logger.Info("position deactivated", "position", position, "status", entry.Status)
	return nil
}

// Count returns the number of ever-whitelisted positions.
func (s *Service) Count() (uint64, error) {
	return s.count.Get()
}

// At returns the position address at the given 1-based index.
func (s *Service) At(index uint64) (sdao.Address, error) {
	return s.byIndex.Get(indexKey(index))
}
