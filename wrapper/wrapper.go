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

// Package wrapper implements the store-binding wrapper (spec.md §4.5):
// for every mutation it delegates to the engine, then durably appends
// the resulting composition record before writing a fresh reduction,
// in that mandatory order. The whole sequence runs under the engine's
// exclusive lock (held via engine.Engine.Lock, not just the engine's
// own self-locking methods), so the store I/O of two concurrent
// wrapper calls never interleaves.
package wrapper

import (
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/erigontech/persistentprocess/engine"
	"github.com/erigontech/persistentprocess/metrics"
	"github.com/erigontech/persistentprocess/store"
)

// Wrapper presents the same three-method shape as process.Process
// (ProcessEvent / GetSerializedState / SetSerializedState) over an
// *engine.Engine plus a store.Writer, so it can sit anywhere a
// Process could — a web host or admin surface depends only on this
// shape, never on the engine or store directly.
type Wrapper struct {
	eng    *engine.Engine
	writer store.Writer
	logger *zap.Logger
	stats  *metrics.Collector
	retry  backoff.BackOff
}

// Option configures New.
type Option func(*Wrapper)

func WithLogger(l *zap.Logger) Option         { return func(w *Wrapper) { w.logger = l } }
func WithMetrics(c *metrics.Collector) Option { return func(w *Wrapper) { w.stats = c } }

// WithRetry overrides the default bounded exponential backoff used
// around store writes. Pass &backoff.StopBackOff{} to disable retries.
func WithRetry(b backoff.BackOff) Option { return func(w *Wrapper) { w.retry = b } }

// New wraps eng and writer. The defaults are a no-op logger, no
// metrics, and up to 4 retries of exponential backoff (matching the
// bounded-retry shape Erigon applies around flaky network/disk calls)
// around the durability-critical store writes.
func New(eng *engine.Engine, writer store.Writer, opts ...Option) *Wrapper {
	w := &Wrapper{
		eng:    eng,
		writer: writer,
		logger: zap.NewNop(),
		retry:  backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// persistLocked durably writes the composition record and then a
// fresh reduction, in that order (§4.5, §9 "Open question: reduction
// for set_state" — resolved by writing a reduction after every
// mutation, not only after process_events). The caller must already
// hold w.eng's lock (via Lock) and keep holding it until this returns,
// so that no other caller's mutation can land between this record's
// append and this record's reduction read (spec.md §5's "at-most-one
// in-flight mutation": the critical section covers the adapter call,
// the append, and the reduction read/write together, not each alone).
func (w *Wrapper) persistLocked(res engine.MutationResult) error {
	correlation := uuid.NewString()

	appendOnce := func() error { return w.writer.AppendSerializedCompositionRecord(res.RecordBytes) }
	if err := backoff.Retry(appendOnce, w.retry); err != nil {
		w.stats.MutationError("store_io")
		w.logger.Error("append composition record failed", zap.String("correlation_id", correlation), zap.Error(err))
		return fmt.Errorf("%w: append composition record: %v", engine.ErrStoreIO, err)
	}
	w.stats.RecordAppendedEvent()

	reduction, err := w.eng.CurrentReductionLocked()
	if err != nil {
		// The composition record is already durable; a missing
		// reduction only costs a future replay, so this is logged,
		// not propagated as a mutation failure.
		w.logger.Warn("skipping reduction after persisted record",
			zap.String("correlation_id", correlation), zap.Error(err))
		return nil
	}

	storeOnce := func() error { return w.writer.StoreReduction(reduction) }
	if err := backoff.Retry(storeOnce, w.retry); err != nil {
		w.logger.Warn("store reduction failed, falling back to replay on next rehydration",
			zap.String("correlation_id", correlation), zap.Error(err))
		return nil
	}
	w.stats.ReductionWrittenEvent()
	return nil
}

// ProcessEvent applies one event and durably records the step.
func (w *Wrapper) ProcessEvent(event string) (string, error) {
	responses, err := w.ProcessEvents([]string{event})
	if err != nil {
		return "", err
	}
	return responses[0], nil
}

// ProcessEvents applies a batch of events as a single composition
// record. SPEC_FULL.md documents the per-event atomicity caveat this
// inherits from engine.ProcessEvents: on failure partway through the
// batch, nothing is persisted, but the adapter may already have
// applied the events preceding the failure. The whole sequence —
// applying the batch, appending the record, and reading back the
// reduction — runs under one held lock so a concurrent caller's
// mutation can never land in between.
func (w *Wrapper) ProcessEvents(events []string) ([]string, error) {
	w.eng.Lock()
	defer w.eng.Unlock()

	responses, res, err := w.eng.ProcessEventsLocked(events)
	if err != nil {
		return nil, err
	}
	if err := w.persistLocked(res); err != nil {
		return nil, err
	}
	return responses, nil
}

// GetSerializedState returns the current state without touching the store.
func (w *Wrapper) GetSerializedState() (string, error) {
	r, err := w.eng.CurrentReduction()
	if err != nil {
		return "", err
	}
	return r.ReducedValue, nil
}

// SetSerializedState overrides the process's state and durably records
// the step, under the same held-lock sequence as ProcessEvents.
func (w *Wrapper) SetSerializedState(state string) error {
	w.eng.Lock()
	defer w.eng.Unlock()

	res, err := w.eng.SetStateLocked(state)
	if err != nil {
		return err
	}
	return w.persistLocked(res)
}

// Dispose releases the underlying engine.
func (w *Wrapper) Dispose() { w.eng.Dispose() }
