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

// Package filestore implements store.Store as one file per composition
// record and one file per reduction — the first Store layout the core
// spec sanctions in §6. It is backed by afero.Fs so the same code path
// runs against a real directory (afero.OsFs) or an in-memory
// filesystem (afero.MemMapFs) in tests, and guards cross-process
// append ordering with a gofrs/flock advisory lock.
package filestore

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
	"github.com/erigontech/persistentprocess/record"
	"github.com/erigontech/persistentprocess/store"
)

const (
	compositionDir  = "composition"
	reductionDir    = "reductions"
	lockFileName    = ".append.lock"
	recordExtension = ".rec"
)

// Store is an afero-backed store.Store. It is safe for one writer and
// any number of concurrent readers per the directory it's rooted at.
type Store struct {
	fs   afero.Fs
	root string
	lock *flock.Flock // nil when fs is not a real OS filesystem

	mu   sync.Mutex // serializes sequence allocation within this process
	next uint64
}

// Open roots a Store at dir, creating the composition/ and reductions/
// subdirectories if absent, and resuming the append sequence counter
// from the highest-numbered record already on disk.
func Open(fs afero.Fs, dir string) (*Store, error) {
	for _, sub := range []string{compositionDir, reductionDir} {
		if err := fs.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("%w: mkdir %s: %v", store.ErrIO, sub, err)
		}
	}
	s := &Store{fs: fs, root: dir}

	if _, ok := fs.(*afero.OsFs); ok {
		s.lock = flock.New(filepath.Join(dir, lockFileName))
	}

	entries, err := afero.ReadDir(fs, filepath.Join(dir, compositionDir))
	if err != nil {
		return nil, fmt.Errorf("%w: list composition dir: %v", store.ErrIO, err)
	}
	for _, e := range entries {
		seq, ok := parseSeq(e.Name())
		if ok && seq+1 > s.next {
			s.next = seq + 1
		}
	}
	return s, nil
}

func (s *Store) Close() error { return nil }

func parseSeq(name string) (uint64, bool) {
	base := strings.TrimSuffix(name, recordExtension)
	idx := strings.IndexByte(base, '-')
	if idx < 0 {
		return 0, false
	}
	seq, err := strconv.ParseUint(base[:idx], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func recordFileName(seq uint64, h common.Hash) string {
	return fmt.Sprintf("%020d-%s%s", seq, h.String(), recordExtension)
}

func (s *Store) AppendSerializedCompositionRecord(b []byte) error {
	rec, err := record.DecodeCompositionRecord(b)
	if err != nil {
		return err
	}
	h, err := rec.Hash()
	if err != nil {
		return err
	}

	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return fmt.Errorf("%w: acquire append lock: %v", store.ErrIO, err)
		}
		defer s.lock.Unlock() //nolint:errcheck
	}

	s.mu.Lock()
	seq := s.next
	s.next++
	s.mu.Unlock()

	final := filepath.Join(s.root, compositionDir, recordFileName(seq, h))
	tmp := final + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: write temp record: %v", store.ErrIO, err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		return fmt.Errorf("%w: rename record into place: %v", store.ErrIO, err)
	}
	return nil
}

func (s *Store) StoreReduction(r record.ReductionRecord) error {
	b, err := r.Encode()
	if err != nil {
		return err
	}
	final := filepath.Join(s.root, reductionDir, r.ReducedCompositionHash.String()+recordExtension)
	tmp := final + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, b, 0o644); err != nil {
		return fmt.Errorf("%w: write temp reduction: %v", store.ErrIO, err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		return fmt.Errorf("%w: rename reduction into place: %v", store.ErrIO, err)
	}
	return nil
}

func (s *Store) GetReduction(h common.Hash) (record.ReductionRecord, bool, error) {
	path := filepath.Join(s.root, reductionDir, h.String()+recordExtension)
	b, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if afero.Exists(s.fs, path) {
			return record.ReductionRecord{}, false, fmt.Errorf("%w: read reduction: %v", store.ErrIO, err)
		}
		return record.ReductionRecord{}, false, nil
	}
	r, err := record.DecodeReductionRecord(b)
	if err != nil {
		return record.ReductionRecord{}, false, err
	}
	return r, true, nil
}

// sliceIterator replays a pre-sorted, pre-read batch of record bytes;
// the whole directory listing is small relative to typical chain
// lengths between reductions, so unlike boltstore's live cursor this
// backend reads the listing eagerly and iterates the slice.
type sliceIterator struct {
	items [][]byte
	pos   int
	err   error
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.items) {
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Bytes() []byte { return it.items[it.pos-1] }
func (it *sliceIterator) Err() error     { return it.err }

// Close is a no-op: the whole listing was already read eagerly into
// items, so there is no open handle to release.
func (it *sliceIterator) Close() error { return nil }

func (s *Store) EnumerateReverse() (store.RecordIterator, error) {
	dir := filepath.Join(s.root, compositionDir)
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list composition dir: %v", store.ErrIO, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), recordExtension) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names) // zero-padded sequence prefix sorts lexically == numerically

	items := make([][]byte, len(names))
	for i, name := range names {
		b, err := afero.ReadFile(s.fs, filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", store.ErrIO, name, err)
		}
		items[len(names)-1-i] = b // reverse while copying
	}
	return &sliceIterator{items: items}, nil
}
