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

// Package record defines the two on-disk value types of the persistent
// process core: the CompositionRecord (one history step) and the
// ReductionRecord (a state snapshot keyed by chain position), plus
// their canonical, deterministic encoding.
package record

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
)

// canonicalJSON is configured once and reused: sorted map keys off (we
// never serialize a map, only structs, so field order already matches
// struct declaration order), compact number formatting, no HTML escaping
// surprises. Pinning this configuration is what keeps digests stable
// across processes and releases (spec §I5 / §9 "canonical encoding risk").
var canonicalJSON = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            false,
	ValidateJsonRawMessage: true,
}.Froze()

// CompositionRecord is one immutable history entry: a parent link plus
// either a batch of appended events or a state override. No record this
// module produces populates both AppendedEvents and SetState; a record
// built from an empty events batch populates neither. Both fields use
// `omitempty` so the two shapes serialize to visibly distinct, and
// distinctly-hashed, byte forms.
type CompositionRecord struct {
	ParentHash     common.Hash `json:"parent_hash"`
	AppendedEvents []string    `json:"appended_events,omitempty"`
	SetState       *string     `json:"set_state,omitempty"`
}

// IsGenesis reports whether r's parent link is the empty-init sentinel.
func (r CompositionRecord) IsGenesis() bool {
	return r.ParentHash == common.EmptyInitHash
}

// Encode produces the canonical byte form of r. Two CompositionRecord
// values with equal fields always encode to equal bytes (I5).
func (r CompositionRecord) Encode() ([]byte, error) {
	b, err := canonicalJSON.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode composition record: %w", err)
	}
	return b, nil
}

// Hash returns the digest of r's canonical encoding.
func (r CompositionRecord) Hash() (common.Hash, error) {
	b, err := r.Encode()
	if err != nil {
		return common.Hash{}, err
	}
	return common.Keccak256(b), nil
}

// DecodeCompositionRecord parses the canonical byte form produced by Encode.
func DecodeCompositionRecord(b []byte) (CompositionRecord, error) {
	var r CompositionRecord
	if err := canonicalJSON.Unmarshal(b, &r); err != nil {
		return CompositionRecord{}, fmt.Errorf("decode composition record: %w", err)
	}
	return r, nil
}

// ReductionRecord is a snapshot of serialized process state, keyed by
// the composition record whose application produced it.
type ReductionRecord struct {
	ReducedCompositionHash common.Hash `json:"reduced_composition_hash"`
	ReducedValue           string      `json:"reduced_value"`
}

// Encode produces the canonical byte form of a reduction.
func (r ReductionRecord) Encode() ([]byte, error) {
	b, err := canonicalJSON.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode reduction record: %w", err)
	}
	return b, nil
}

// DecodeReductionRecord parses the canonical byte form produced by Encode.
func DecodeReductionRecord(b []byte) (ReductionRecord, error) {
	var r ReductionRecord
	if err := canonicalJSON.Unmarshal(b, &r); err != nil {
		return ReductionRecord{}, fmt.Errorf("decode reduction record: %w", err)
	}
	return r, nil
}

// NewEventsRecord builds a record representing one batch of appended events.
func NewEventsRecord(parent common.Hash, events []string) CompositionRecord {
	return CompositionRecord{ParentHash: parent, AppendedEvents: events}
}

// NewSetStateRecord builds a record representing a state override.
func NewSetStateRecord(parent common.Hash, state string) CompositionRecord {
	return CompositionRecord{ParentHash: parent, SetState: &state}
}
