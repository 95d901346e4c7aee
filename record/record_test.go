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

package record

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
)

func TestEncodeOmitsAbsentFields(t *testing.T) {
	events := NewEventsRecord(common.EmptyInitHash, []string{"a", "b"})
	eventsBytes, err := events.Encode()
	require.NoError(t, err)
	require.NotContains(t, string(eventsBytes), "set_state")
	require.Contains(t, string(eventsBytes), "appended_events")

	override := NewSetStateRecord(common.EmptyInitHash, "xyz")
	overrideBytes, err := override.Encode()
	require.NoError(t, err)
	require.NotContains(t, string(overrideBytes), "appended_events")
	require.Contains(t, string(overrideBytes), "set_state")

	require.NotEqual(t, string(eventsBytes), string(overrideBytes))
}

func TestEncodeDeterministic(t *testing.T) {
	r := NewEventsRecord(common.EmptyInitHash, []string{"a", "b", "c"})
	b1, err := r.Encode()
	require.NoError(t, err)
	b2, err := r.Encode()
	require.NoError(t, err)
	require.Equal(t, b1, b2)

	h1, err := r.Hash()
	require.NoError(t, err)
	h2, err := r.Hash()
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestDecodeRoundTrip(t *testing.T) {
	original := NewEventsRecord(common.Keccak256([]byte("parent")), []string{"a", "b"})
	b, err := original.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCompositionRecord(b)
	require.NoError(t, err)
	require.Equal(t, original, decoded)
}

func TestGenesisParentHash(t *testing.T) {
	r := NewEventsRecord(common.EmptyInitHash, []string{"a"})
	require.True(t, r.IsGenesis())

	child := NewEventsRecord(common.Keccak256([]byte("x")), []string{"b"})
	require.False(t, child.IsGenesis())
}

func TestReductionEncodeDecode(t *testing.T) {
	h := common.Keccak256([]byte("head"))
	r := ReductionRecord{ReducedCompositionHash: h, ReducedValue: "ab"}
	b, err := r.Encode()
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), h.String()))

	decoded, err := DecodeReductionRecord(b)
	require.NoError(t, err)
	require.Equal(t, r, decoded)
}

func TestHashVector(t *testing.T) {
	// A frozen test vector (spec.md §9 "canonical encoding risk"): if
	// this ever needs to change, every prior chain's hashes change
	// with it.
	r := NewEventsRecord(common.EmptyInitHash, []string{"a"})
	b, err := r.Encode()
	require.NoError(t, err)
	require.Equal(t, `{"parent_hash":"`+common.EmptyInitHash.String()+`","appended_events":["a"]}`, string(b))
}
