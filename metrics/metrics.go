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

// Package metrics exposes the persistent process core's observability
// surface. This is not the excluded admin HTTP interface (spec.md §1
// Non-goals never name metrics); it is the same kind of ambient
// instrumentation Erigon wires through prometheus/client_golang
// throughout its own codebase.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Collector groups the counters/histograms the engine and wrapper
// update. A nil *Collector is valid and every method on it is a no-op,
// so instrumentation is entirely optional for callers that construct
// an Engine directly without a registry.
type Collector struct {
	RecordsAppended   prometheus.Counter
	ReductionsWritten prometheus.Counter
	RehydrationSecs   prometheus.Histogram
	RehydrationDepth  prometheus.Histogram
	ChainLength       prometheus.Gauge
	MutationErrors    *prometheus.CounterVec
}

// NewCollector builds a Collector and registers it with reg. Pass a
// fresh prometheus.NewRegistry() per engine instance in tests to avoid
// duplicate-registration panics.
func NewCollector(reg prometheus.Registerer, namespace string) *Collector {
	c := &Collector{
		RecordsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "composition_records_appended_total",
			Help: "Composition records durably appended to the store.",
		}),
		ReductionsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reductions_written_total",
			Help: "Reduction snapshots written to the store.",
		}),
		RehydrationSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rehydration_duration_seconds",
			Help:    "Wall time spent reconstructing state on construction.",
			Buckets: prometheus.DefBuckets,
		}),
		RehydrationDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "rehydration_records_walked",
			Help:    "Composition records read in reverse before a reduction or genesis was found.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
		ChainLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "chain_length",
			Help: "Number of composition records appended since process start (approximate).",
		}),
		MutationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "mutation_errors_total",
			Help: "Mutation-path errors by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(c.RecordsAppended, c.ReductionsWritten, c.RehydrationSecs, c.RehydrationDepth, c.ChainLength, c.MutationErrors)
	return c
}

func (c *Collector) recordAppended() {
	if c == nil {
		return
	}
	c.RecordsAppended.Inc()
	c.ChainLength.Inc()
}

func (c *Collector) reductionWritten() {
	if c == nil {
		return
	}
	c.ReductionsWritten.Inc()
}

func (c *Collector) rehydrated(seconds float64, depth int) {
	if c == nil {
		return
	}
	c.RehydrationSecs.Observe(seconds)
	c.RehydrationDepth.Observe(float64(depth))
}

func (c *Collector) mutationError(kind string) {
	if c == nil {
		return
	}
	c.MutationErrors.WithLabelValues(kind).Inc()
}

// RecordAppendedEvent reports one durably appended composition record.
func (c *Collector) RecordAppendedEvent() { c.recordAppended() }

// ReductionWrittenEvent reports one durably written reduction.
func (c *Collector) ReductionWrittenEvent() { c.reductionWritten() }

// Rehydrated reports one completed rehydration pass.
func (c *Collector) Rehydrated(seconds float64, depth int) { c.rehydrated(seconds, depth) }

// MutationError reports one mutation-path failure, tagged by kind
// ("chain_incomplete", "record_decode", "store_io", "process", "disposed").
func (c *Collector) MutationError(kind string) { c.mutationError(kind) }
