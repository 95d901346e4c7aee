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

// Package engine implements the persistent process core's engine
// (spec.md §4.4): construction/rehydration, process_events, set_state
// and current_reduction, all serialized behind one exclusive lock.
package engine

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
	"github.com/erigontech/persistentprocess/erigon-lib/common/math"
	"github.com/erigontech/persistentprocess/metrics"
	"github.com/erigontech/persistentprocess/process"
	"github.com/erigontech/persistentprocess/record"
	"github.com/erigontech/persistentprocess/store"
)

type lifecycleState int

const (
	stateRehydrating lifecycleState = iota
	stateReady
	stateDisposed
)

// recordCacheSize bounds the rehydration pool: the set of decoded
// ancestor records discovered during the reverse walk that have not
// yet been matched to a child (engine.go's drain). On the strictly
// linear chains this engine produces, the pool never needs more than a
// handful of entries; the bound exists so a corrupted or forked store
// cannot grow it without limit during rehydration.
const recordCacheSize = 4096

// Engine is the persistent process core's engine (§4.4). It owns
// exactly one process.Process and serializes every public operation
// behind a single mutex: adapter calls and the wrapper's store I/O are
// the dominant cost and inherently serial (spec.md §9 "Shared-mutable
// engine").
type Engine struct {
	mu sync.Mutex

	proc   process.Process
	logger *zap.Logger
	stats  *metrics.Collector

	state         lifecycleState
	lastStateHash common.Hash

	// recordCache is the bounded pool of not-yet-placed ancestor records
	// used while rehydrating (see rehydrate/drain); it is empty once the
	// engine reaches stateReady.
	recordCache *lru.Cache[common.Hash, record.CompositionRecord]
}

// Option configures New.
type Option func(*Engine)

// WithLogger attaches a structured logger; a no-op logger is used when omitted.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches a metrics collector; nil (the default) disables instrumentation.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.stats = c }
}

// New constructs an Engine by rehydrating proc's state from reader,
// per spec.md §4.4.1. It returns a *ChainIncompleteError if
// the chain cannot be completed, and otherwise leaves the engine in
// the Ready state with proc holding the exact state that existed
// before the store was last closed.
func New(proc process.Process, reader store.Reader, opts ...Option) (*Engine, error) {
	e := &Engine{proc: proc, logger: zap.NewNop(), state: stateRehydrating}
	for _, opt := range opts {
		opt(e)
	}
	cache, err := lru.New[common.Hash, record.CompositionRecord](recordCacheSize)
	if err != nil {
		return nil, fmt.Errorf("engine: build record cache: %w", err)
	}
	e.recordCache = cache

	start := time.Now()
	walked, err := e.rehydrate(reader)
	if err != nil {
		e.logger.Error("rehydration failed", zap.Error(err), zap.Int("records_walked", walked))
		return nil, err
	}
	e.stats.Rehydrated(time.Since(start).Seconds(), walked)
	e.state = stateReady
	// cacheMultiples > 1 means the walk crossed more ground than a
	// single pool generation covers before resolving — a signal that
	// reductions are either absent or too far apart for this deployment.
	// strandedAncestors should be 0 on a well-formed chain: anything left
	// in the pool after rehydrate returns was never matched to a child,
	// which only happens on a forked or corrupted store.
	cacheMultiples := math.CeilDiv(walked, recordCacheSize)
	strandedAncestors := math.AbsoluteDifference(uint64(e.recordCache.Len()), 0)
	e.logger.Info("rehydrated",
		zap.String("last_state_hash", e.lastStateHash.String()),
		zap.Int("records_walked", walked),
		zap.Int("cache_generations_walked", cacheMultiples),
		zap.Uint64("stranded_pool_entries", strandedAncestors),
		zap.Duration("elapsed", time.Since(start)))
	return e, nil
}

// chainEntry is one composition record discovered during rehydration,
// paired with its own hash.
type chainEntry struct {
	hash common.Hash
	rec  record.CompositionRecord
}

// rehydrate implements §4.4.1: walk the store newest-first, using a
// pool of not-yet-confirmed ancestors and a path stack (newest at
// index 0, oldest discovered at the end) to find the nearest usable
// reduction or the genesis record, then replay forward from there.
//
// Clarification versus the spec's prose (recorded in DESIGN.md): the
// genesis record's own appended_events/set_state are applied as part
// of the forward replay, not discarded, since spec.md's S3 scenario
// requires a from-genesis rehydration to replay every event that was
// ever submitted.
func (e *Engine) rehydrate(reader store.Reader) (int, error) {
	iter, err := reader.EnumerateReverse()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	defer func() {
		if closeErr := iter.Close(); closeErr != nil {
			e.logger.Warn("close reverse iterator", zap.Error(closeErr))
		}
	}()

	var path []chainEntry // index 0 = head (newest); last = oldest discovered so far
	walked := 0

	for iter.Next() {
		walked++
		rec, decErr := e.decode(iter.Bytes())
		if decErr != nil {
			return walked, fmt.Errorf("%w: %v", ErrRecordDecode, decErr)
		}
		h, hashErr := rec.Hash()
		if hashErr != nil {
			return walked, fmt.Errorf("%w: hash record: %v", ErrRecordDecode, hashErr)
		}

		if len(path) == 0 {
			path = append(path, chainEntry{h, rec})
		} else {
			e.recordCache.Add(h, rec)
		}

		done, drainErr := e.drain(reader, &path)
		if drainErr != nil {
			return walked, drainErr
		}
		if done {
			if iterErr := iter.Err(); iterErr != nil {
				return walked, fmt.Errorf("%w: %v", ErrStoreIO, iterErr)
			}
			return walked, nil
		}
	}
	if err := iter.Err(); err != nil {
		return walked, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	if len(path) == 0 {
		// Store was empty: default state, sentinel head (§4.4.1 step 3).
		e.lastStateHash = common.EmptyInitHash
		return walked, nil
	}
	return walked, &ChainIncompleteError{Head: path[0].hash, RecordsWalked: walked}
}

// drain repeatedly inspects the oldest-discovered entry (the end of
// path) for a reduction or genesis, and otherwise tries to extend path
// one ancestor further using e.recordCache, the bounded rehydration
// pool. It returns done=true once rehydration has fully resolved the
// state (reduction applied or genesis replayed).
func (e *Engine) drain(reader store.Reader, path *[]chainEntry) (bool, error) {
	for {
		top := (*path)[len(*path)-1]

		red, ok, err := reader.GetReduction(top.hash)
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
		if ok {
			*path = (*path)[:len(*path)-1]
			if err := e.proc.SetSerializedState(red.ReducedValue); err != nil {
				return false, fmt.Errorf("%w: restore reduction: %v", ErrProcess, err)
			}
			e.lastStateHash = top.hash
			if err := e.replayForward(*path); err != nil {
				return false, err
			}
			return true, nil
		}

		if top.rec.IsGenesis() {
			*path = (*path)[:len(*path)-1]
			// Default empty state, then apply genesis's own step before
			// the rest of the (newer) path.
			if err := e.applyStep(top.rec); err != nil {
				return false, err
			}
			e.lastStateHash = top.hash
			if err := e.replayForward(*path); err != nil {
				return false, err
			}
			return true, nil
		}

		parentRec, found := e.recordCache.Get(top.rec.ParentHash)
		if !found {
			return false, nil // need more records from the iterator
		}
		e.recordCache.Remove(top.rec.ParentHash)
		*path = append(*path, chainEntry{top.rec.ParentHash, parentRec})
	}
}

// replayForward applies path's entries from oldest (end of slice) to
// newest (index 0), updating lastStateHash as it goes.
func (e *Engine) replayForward(path []chainEntry) error {
	for i := len(path) - 1; i >= 0; i-- {
		if err := e.applyStep(path[i].rec); err != nil {
			return err
		}
		e.lastStateHash = path[i].hash
	}
	return nil
}

func (e *Engine) applyStep(rec record.CompositionRecord) error {
	if rec.SetState != nil {
		if err := e.proc.SetSerializedState(*rec.SetState); err != nil {
			return fmt.Errorf("%w: replay set_state: %v", ErrProcess, err)
		}
	}
	for _, ev := range rec.AppendedEvents {
		if _, err := e.proc.ProcessEvent(ev); err != nil {
			return fmt.Errorf("%w: replay event: %v", ErrProcess, err)
		}
	}
	return nil
}

func (e *Engine) decode(b []byte) (record.CompositionRecord, error) {
	return record.DecodeCompositionRecord(b)
}

// MutationResult is the materialized-but-not-yet-persisted outcome of
// a successful ProcessEvents or SetState call.
type MutationResult struct {
	RecordBytes []byte
	RecordHash  common.Hash
}

// Lock acquires the engine's single exclusive mutation lock without
// performing any operation. The store-binding wrapper (spec.md §5)
// holds it across an entire compute-record, append, compute-reduction,
// store-reduction sequence via the *Locked methods below, so that two
// concurrent wrapper calls can never interleave their store I/O the
// way they could if each Engine method only held the lock internally.
// Callers that use Lock must always pair it with Unlock, typically via
// defer, and must use the *Locked methods rather than the self-locking
// ones while holding it.
func (e *Engine) Lock() { e.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (e *Engine) Unlock() { e.mu.Unlock() }

// ProcessEvents applies events, in order, to the adapter, then builds
// and hashes the resulting composition record (§4.4.2). On a
// process.Process error partway through the batch, nothing is
// persisted (the caller never sees a MutationResult), but the
// adapter's in-memory state may already be advanced through the
// events preceding the failure — see SPEC_FULL.md's note on
// per-event atomicity.
func (e *Engine) ProcessEvents(events []string) ([]string, MutationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ProcessEventsLocked(events)
}

// ProcessEventsLocked is ProcessEvents for a caller that already holds
// the lock via Lock (the store-binding wrapper's mutation path).
func (e *Engine) ProcessEventsLocked(events []string) ([]string, MutationResult, error) {
	if e.state == stateDisposed {
		return nil, MutationResult{}, ErrDisposed
	}

	responses := make([]string, 0, len(events))
	for _, ev := range events {
		resp, err := e.proc.ProcessEvent(ev)
		if err != nil {
			e.stats.MutationError("process")
			return nil, MutationResult{}, fmt.Errorf("%w: %v", ErrProcess, err)
		}
		responses = append(responses, resp)
	}

	rec := record.NewEventsRecord(e.lastStateHash, events)
	b, h, err := e.finalize(rec)
	if err != nil {
		return nil, MutationResult{}, err
	}
	return responses, MutationResult{RecordBytes: b, RecordHash: h}, nil
}

// SetState overrides the adapter's entire state (§4.4.3).
func (e *Engine) SetState(state string) (MutationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.SetStateLocked(state)
}

// SetStateLocked is SetState for a caller that already holds the lock via Lock.
func (e *Engine) SetStateLocked(state string) (MutationResult, error) {
	if e.state == stateDisposed {
		return MutationResult{}, ErrDisposed
	}

	if err := e.proc.SetSerializedState(state); err != nil {
		e.stats.MutationError("process")
		return MutationResult{}, fmt.Errorf("%w: %v", ErrProcess, err)
	}

	rec := record.NewSetStateRecord(e.lastStateHash, state)
	b, h, err := e.finalize(rec)
	if err != nil {
		return MutationResult{}, err
	}
	return MutationResult{RecordBytes: b, RecordHash: h}, nil
}

// finalize serializes rec, hashes it and advances lastStateHash. Must
// be called with mu held.
func (e *Engine) finalize(rec record.CompositionRecord) ([]byte, common.Hash, error) {
	b, err := rec.Encode()
	if err != nil {
		e.stats.MutationError("record_decode")
		return nil, common.Hash{}, fmt.Errorf("%w: %v", ErrRecordDecode, err)
	}
	h, err := rec.Hash()
	if err != nil {
		e.stats.MutationError("record_decode")
		return nil, common.Hash{}, fmt.Errorf("%w: %v", ErrRecordDecode, err)
	}
	e.lastStateHash = h
	return b, h, nil
}

// CurrentReduction returns the reduction snapshot for the engine's
// current head (§4.4.4).
func (e *Engine) CurrentReduction() (record.ReductionRecord, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.CurrentReductionLocked()
}

// CurrentReductionLocked is CurrentReduction for a caller that already
// holds the lock via Lock. The store-binding wrapper uses this, not
// CurrentReduction, so its read of the post-mutation state can never
// interleave with another caller's mutation between append and
// reduction write.
func (e *Engine) CurrentReductionLocked() (record.ReductionRecord, error) {
	if e.state == stateDisposed {
		return record.ReductionRecord{}, ErrDisposed
	}
	value, err := e.proc.GetSerializedState()
	if err != nil {
		return record.ReductionRecord{}, fmt.Errorf("%w: %v", ErrProcess, err)
	}
	return record.ReductionRecord{ReducedCompositionHash: e.lastStateHash, ReducedValue: value}, nil
}

// LastStateHash returns the current chain head without touching the adapter.
func (e *Engine) LastStateHash() common.Hash {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastStateHash
}

// Dispose transitions the engine to its terminal state and releases
// the adapter. Afterwards ProcessEvents, SetState, CurrentReduction and
// their *Locked forms fail with ErrDisposed (§4.4.5); LastStateHash
// still returns the last head, and a repeated Dispose is a no-op.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateDisposed {
		return
	}
	e.proc.Dispose()
	e.state = stateDisposed
	e.logger.Info("engine disposed", zap.String("last_state_hash", e.lastStateHash.String()))
}
