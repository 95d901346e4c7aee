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

// Package boltstore implements store.Store as a single append-only log
// plus a side index, backed by a single bbolt file — the second Store
// layout sanctioned by the core spec's §6 ("a single append-only log
// with a side index"), playing the role erigon's mdbx-backed kv
// package (erigon-lib/kv/tables.go) plays for chain data: one embedded
// KV file, one bucket per concern.
package boltstore

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	bolt "go.etcd.io/bbolt"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
	"github.com/erigontech/persistentprocess/record"
	"github.com/erigontech/persistentprocess/store"
)

var (
	compositionBucket = []byte("CompositionLog")
	reductionBucket   = []byte("Reductions")
)

// Store is a bbolt-backed store.Store. The composition log is keyed by
// an auto-incrementing sequence number so that insertion order and key
// order coincide, which is what makes bbolt's cursor-based reverse
// iteration equivalent to reverse-chronological order.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt file at path and ensures both
// buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open bolt db %q: %v", store.ErrIO, path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(compositionBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(reductionBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: init bolt buckets: %v", store.ErrIO, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AppendSerializedCompositionRecord(b []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(compositionBucket)
		seq, err := bkt.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bkt.Put(key, b)
	})
	if err != nil {
		return fmt.Errorf("%w: append composition record: %v", store.ErrIO, err)
	}
	return nil
}

func (s *Store) StoreReduction(r record.ReductionRecord) error {
	b, err := r.Encode()
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(reductionBucket).Put(r.ReducedCompositionHash.Bytes(), snappy.Encode(nil, b))
	})
	if err != nil {
		return fmt.Errorf("%w: store reduction: %v", store.ErrIO, err)
	}
	return nil
}

func (s *Store) GetReduction(h common.Hash) (record.ReductionRecord, bool, error) {
	var out record.ReductionRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(reductionBucket).Get(h.Bytes())
		if v == nil {
			return nil
		}
		raw, err := snappy.Decode(nil, v)
		if err != nil {
			return fmt.Errorf("decompress reduction: %w", err)
		}
		decoded, err := record.DecodeReductionRecord(raw)
		if err != nil {
			return err
		}
		out, found = decoded, true
		return nil
	})
	if err != nil {
		return record.ReductionRecord{}, false, fmt.Errorf("%w: get reduction: %v", store.ErrIO, err)
	}
	return out, found, nil
}

// reverseIterator walks a bbolt cursor from Last() to First(), holding
// its own read-only transaction open for the lifetime of the pass.
// Close must be called whether or not the pass ran to exhaustion, or
// the underlying bolt.Tx leaks for the life of the *bolt.DB.
type reverseIterator struct {
	tx     *bolt.Tx
	cursor *bolt.Cursor
	value  []byte
	err    error
	began  bool
	closed bool
}

func (it *reverseIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	var k, v []byte
	if !it.began {
		it.began = true
		k, v = it.cursor.Last()
	} else {
		k, v = it.cursor.Prev()
	}
	if k == nil {
		_ = it.closeTx()
		return false
	}
	// bbolt reuses the backing array across cursor moves; copy out.
	it.value = append([]byte(nil), v...)
	return true
}

func (it *reverseIterator) Bytes() []byte { return it.value }
func (it *reverseIterator) Err() error     { return it.err }

func (it *reverseIterator) closeTx() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.tx.Rollback()
}

// Close rolls back the iterator's read-only transaction if Next
// hasn't already done so by running the cursor to exhaustion.
func (it *reverseIterator) Close() error { return it.closeTx() }

func (s *Store) EnumerateReverse() (store.RecordIterator, error) {
	tx, err := s.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("%w: begin reverse enumeration: %v", store.ErrIO, err)
	}
	cursor := tx.Bucket(compositionBucket).Cursor()
	return &reverseIterator{tx: tx, cursor: cursor}, nil
}
