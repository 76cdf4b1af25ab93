// Copyright © 2018 One Concern

package replica

import (
	"context"
	"fmt"
	"strconv"

	"github.com/oneconcern/datasync/pkg/errors"
	"github.com/oneconcern/datasync/pkg/model"
	"github.com/oneconcern/datasync/pkg/replica/status"
	"github.com/oneconcern/datasync/pkg/store"
	"go.uber.org/zap"
)

const (
	varEpoch       = "image"
	varDataVersion = "dataver"
)

func readEpoch(txn store.Txn) (uint64, bool, error) {
	raw, err := txn.Get(store.Vars, varEpoch)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	epoch, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupted epoch %q: %w", string(raw), err)
	}
	return epoch, true, nil
}

func writeEpoch(txn store.Txn, epoch uint64) error {
	return txn.Set(store.Vars, varEpoch, []byte(strconv.FormatUint(epoch, 10)))
}

func readDataVersion(txn store.Txn) (model.RevisionCode, bool, error) {
	raw, err := txn.Get(store.Vars, varDataVersion)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return model.RevisionCode(raw), true, nil
}

// begin runs the initial transaction, exactly once per session.
//
// It records the epoch of the session, and tells whether the local store must be rebuilt:
//   - an empty store starts at epoch 1
//   - a store without a data version was left incomplete: the epoch moves on
//   - a store with a data version at least as recent as the remote index is current
//   - otherwise the data version is withdrawn and the epoch moves on
//
// If another session commits its own initial transaction concurrently, this session
// gets no epoch: any further transaction finds it stale.
func (s *Session) begin(ctx context.Context) (bool, error) {
	conn := s.connection()
	if conn == nil {
		return true, status.ErrStoreUnavailable
	}
	version := s.remote.Manifest.Version()

	var (
		epoch  uint64
		reload bool
	)
	s.setState(StateReadEpoch)
	err := conn.Update(ctx, func(txn store.Txn) error {
		current, found, err := readEpoch(txn)
		if err != nil {
			return err
		}
		if !found {
			epoch, reload = 1, true
			if err = writeEpoch(txn, epoch); err != nil {
				return err
			}
			return txn.Delete(store.Vars, varDataVersion)
		}

		s.setState(StateReadDataVersionOrManifest)
		dataVersion, found, err := readDataVersion(txn)
		if err != nil {
			return err
		}
		switch {
		case !found:
			epoch, reload = current+1, true
			return writeEpoch(txn, epoch)
		case !version.Newer(dataVersion):
			epoch, reload = current, false
			return nil
		default:
			epoch, reload = current+1, true
			if err = writeEpoch(txn, epoch); err != nil {
				return err
			}
			return txn.Delete(store.Vars, varDataVersion)
		}
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.l.Info("another instance initialized the local store concurrently", zap.Error(err))
			return true, nil
		}
		return true, status.ErrStoreUnavailable.Wrap(err)
	}

	s.mx.Lock()
	s.localEpoch = epoch
	s.mx.Unlock()
	s.l.Debug("local store epoch",
		zap.Uint64("epoch", epoch),
		zap.Bool("reload", reload),
	)
	return reload, nil
}

// checkEpoch is the prefix of every transaction following the initial one
func (s *Session) checkEpoch(txn store.Txn) error {
	current, found, err := readEpoch(txn)
	if err != nil {
		return err
	}
	local := s.Epoch()
	if !found {
		return status.ErrStaleInstance.Wrap(fmt.Errorf("local store was reset (session epoch %d)", local))
	}
	if current != local {
		return status.ErrStaleInstance.Wrap(fmt.Errorf("store epoch %d, session epoch %d", current, local))
	}
	return nil
}
