// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package engine

import (
	"errors"
	"fmt"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
)

// ErrDisposed is returned by ProcessEvents, SetState, CurrentReduction
// and their *Locked forms once the engine has been disposed (§4.4.5).
var ErrDisposed = errors.New("engine: disposed")

// ErrRecordDecode means a stored byte sequence did not parse as a
// composition record.
var ErrRecordDecode = errors.New("engine: record decode error")

// ErrStoreIO wraps a failure the underlying store.Store reported.
var ErrStoreIO = errors.New("engine: store io error")

// ErrProcess wraps a failure the opaque process reported while
// applying an event or a state override.
var ErrProcess = errors.New("engine: process error")

// ChainIncompleteError means reverse iteration of the store was
// exhausted while walking back from head without finding either a
// usable reduction or the empty-init genesis (§7, §8 S5).
type ChainIncompleteError struct {
	// Head is the tentative chain head hash rehydration started from.
	Head common.Hash
	// RecordsWalked is how many composition records were visited
	// before the iterator was exhausted, included for operator
	// diagnostics (SPEC_FULL supplement).
	RecordsWalked int
}

func (e *ChainIncompleteError) Error() string {
	return fmt.Sprintf("engine: chain incomplete at head %s after walking %d record(s)", e.Head, e.RecordsWalked)
}
