// Copyright (c) 2024 The StackingDAO developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package state

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/stackingdao/core/kv"
	"github.com/stackingdao/core/sdao"
	"github.com/stackingdao/core/stackedmap"
)

var storageBucket = kv.Bucket("st-")

// Error is the error caused by accessing the backing store.
type Error struct {
	cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("state: %v", e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

type storageKey struct {
	addr sdao.Address
	key  sdao.Bytes32
}

// State manages contract-style storage slots of protocol accounts.
// All mutations are journaled in memory; Stage().Commit() writes them
// to the backing store in a single atomic batch. Checkpoints allow an
// operation to be rolled back wholly, which gives every protocol
// operation all-or-nothing semantics.
type State struct {
	db kv.GetPutter
	sm *stackedmap.StackedMap[storageKey, rlp.RawValue]
}

// New creates a state object backed by db.
func New(db kv.GetPutter) *State {
	store := storageBucket.NewStore(db)
	state := &State{
		db: db,
		sm: stackedmap.New(func(k storageKey) (rlp.RawValue, bool, error) {
			raw, err := store.Get(append(k.addr.Bytes(), k.key.Bytes()...))
			if err != nil {
				if store.IsNotFound(err) {
					return nil, false, nil
				}
				return nil, false, &Error{err}
			}
			return raw, true, nil
		}),
	}
	// the base layer, never popped
	state.sm.Push()
	return state
}

// NewCheckpoint makes a checkpoint of the current state.
// It returns the checkpoint, which can be passed to RevertTo.
func (s *State) NewCheckpoint() int {
	return s.sm.Push()
}

// RevertTo reverts the state to the given checkpoint.
// Checkpoints taken after it become invalid.
func (s *State) RevertTo(checkpoint int) {
	s.sm.PopTo(checkpoint)
}

// GetRawStorage returns the raw RLP value stored at (addr, key).
func (s *State) GetRawStorage(addr sdao.Address, key sdao.Bytes32) (rlp.RawValue, error) {
	raw, _, err := s.sm.Get(storageKey{addr, key})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// SetRawStorage sets the raw RLP value at (addr, key).
// An empty raw clears the slot.
func (s *State) SetRawStorage(addr sdao.Address, key sdao.Bytes32, raw rlp.RawValue) {
	s.sm.Put(storageKey{addr, key}, raw)
}

// GetStorage returns the word stored at (addr, key).
func (s *State) GetStorage(addr sdao.Address, key sdao.Bytes32) (sdao.Bytes32, error) {
	var value sdao.Bytes32
	err := s.DecodeStorage(addr, key, func(raw []byte) error {
		if len(raw) == 0 {
			return nil
		}
		_, content, _, err := rlp.Split(raw)
		if err != nil {
			return err
		}
		value = sdao.BytesToBytes32(content)
		return nil
	})
	return value, err
}

// SetStorage stores a word at (addr, key). Zero value clears the slot.
func (s *State) SetStorage(addr sdao.Address, key, value sdao.Bytes32) {
	if value.IsZero() {
		s.SetRawStorage(addr, key, nil)
		return
	}
	trimmed, _ := rlp.EncodeToBytes(bytes.TrimLeft(value[:], "\x00"))
	s.SetRawStorage(addr, key, trimmed)
}

// EncodeStorage sets the storage value encoded by the given enc function.
// An empty encoded value clears the slot.
func (s *State) EncodeStorage(addr sdao.Address, key sdao.Bytes32, enc func() ([]byte, error)) error {
	raw, err := enc()
	if err != nil {
		return err
	}
	s.SetRawStorage(addr, key, raw)
	return nil
}

// DecodeStorage gets the storage value and decodes it via the given dec function.
func (s *State) DecodeStorage(addr sdao.Address, key sdao.Bytes32, dec func([]byte) error) error {
	raw, err := s.GetRawStorage(addr, key)
	if err != nil {
		return err
	}
	return dec(raw)
}

// Stage collects all journaled changes into a commitable stage.
func (s *State) Stage() *Stage {
	store := storageBucket.NewPutter(s.db)
	batch := store.NewBatch()

	// later writes of the same key shadow earlier ones; the batch
	// applies them in order so the last value wins.
	var err error
	s.sm.Journal(func(k storageKey, v rlp.RawValue) bool {
		slot := append(k.addr.Bytes(), k.key.Bytes()...)
		if len(v) == 0 {
			err = batch.Delete(slot)
		} else {
			err = batch.Put(slot, v)
		}
		return err == nil
	})
	return &Stage{batch, err}
}

// Stage is a set of journaled changes ready to be committed.
type Stage struct {
	batch kv.Batch
	err   error
}

// Commit writes the staged changes to the backing store atomically.
func (st *Stage) Commit() error {
	if st.err != nil {
		return &Error{st.err}
	}
	if err := st.batch.Write(); err != nil {
		return &Error{err}
	}
	return nil
}
