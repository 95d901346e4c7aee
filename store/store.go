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

// Package store defines the split reverse-chronological log of
// composition records plus the keyed side-table of reductions (§4.2).
// Two concrete backends live in the boltstore and filestore
// subpackages; both satisfy Store.
package store

import (
	"errors"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
	"github.com/erigontech/persistentprocess/record"
)

// ErrIO wraps any underlying storage failure on append, read or
// enumerate. The engine treats it as terminal for the call in
// progress; see engine.ErrStoreIO for the caller-facing equivalent.
var ErrIO = errors.New("store: io error")

// Writer is the append-only write side of Store.
type Writer interface {
	// AppendSerializedCompositionRecord durably appends one record's
	// canonical bytes. On success, a subsequent reverse enumeration on
	// any reader over the same backing storage yields this record
	// first (the durability contract of §4.2).
	AppendSerializedCompositionRecord(b []byte) error

	// StoreReduction writes or overwrites the reduction keyed by its
	// ReducedCompositionHash.
	StoreReduction(r record.ReductionRecord) error
}

// RecordIterator yields composition record bytes newest-first. It is a
// single-pass, non-restartable cursor: call Reader.EnumerateReverse
// again for a fresh pass.
type RecordIterator interface {
	// Next advances to the next record and reports whether one was
	// available. Next must be called once before the first Bytes/Err.
	Next() bool
	// Bytes returns the canonical bytes of the current record.
	Bytes() []byte
	// Err returns the first error encountered, if any, after Next
	// returns false.
	Err() error
	// Close releases any resources (e.g. an open read transaction) held
	// by the iterator. Callers must call Close even when Next was
	// abandoned before exhaustion — rehydration stops as soon as it
	// finds a usable reduction or genesis, which is the common case.
	// Close is idempotent.
	Close() error
}

// Reader is the read side of Store.
type Reader interface {
	// EnumerateReverse returns a finite, newest-first iterator over
	// every appended composition record.
	EnumerateReverse() (RecordIterator, error)

	// GetReduction looks up the reduction keyed by h. ok is false when
	// no reduction is stored for h; that is never an error (§4.2,
	// reductions are best-effort).
	GetReduction(h common.Hash) (r record.ReductionRecord, ok bool, err error)
}

// Store is the full read/write surface the engine and its
// store-binding wrapper consume.
type Store interface {
	Writer
	Reader
	// Close releases any resources (file handles, db handles) held by
	// the backend.
	Close() error
}
