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

package filestore

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/persistentprocess/erigon-lib/common"
	"github.com/erigontech/persistentprocess/record"
)

func TestAppendAndEnumerateReverse(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "/data")
	require.NoError(t, err)

	r1 := record.NewEventsRecord(common.EmptyInitHash, []string{"a"})
	b1, err := r1.Encode()
	require.NoError(t, err)
	require.NoError(t, s.AppendSerializedCompositionRecord(b1))

	h1, err := r1.Hash()
	require.NoError(t, err)
	r2 := record.NewEventsRecord(h1, []string{"b"})
	b2, err := r2.Encode()
	require.NoError(t, err)
	require.NoError(t, s.AppendSerializedCompositionRecord(b2))

	iter, err := s.EnumerateReverse()
	require.NoError(t, err)
	require.True(t, iter.Next())
	require.Equal(t, b2, iter.Bytes())
	require.True(t, iter.Next())
	require.Equal(t, b1, iter.Bytes())
	require.False(t, iter.Next())
}

func TestResumesSequenceAcrossReopen(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "/data")
	require.NoError(t, err)

	r1 := record.NewEventsRecord(common.EmptyInitHash, []string{"a"})
	b1, err := r1.Encode()
	require.NoError(t, err)
	require.NoError(t, s.AppendSerializedCompositionRecord(b1))

	reopened, err := Open(fs, "/data")
	require.NoError(t, err)

	h1, err := r1.Hash()
	require.NoError(t, err)
	r2 := record.NewEventsRecord(h1, []string{"b"})
	b2, err := r2.Encode()
	require.NoError(t, err)
	require.NoError(t, reopened.AppendSerializedCompositionRecord(b2))

	iter, err := reopened.EnumerateReverse()
	require.NoError(t, err)
	require.True(t, iter.Next())
	require.Equal(t, b2, iter.Bytes())
	require.True(t, iter.Next())
	require.Equal(t, b1, iter.Bytes())
	require.False(t, iter.Next())
}

func TestReductionAbsentIsNotAnError(t *testing.T) {
	fs := afero.NewMemMapFs()
	s, err := Open(fs, "/data")
	require.NoError(t, err)

	_, ok, err := s.GetReduction(common.Keccak256([]byte("nothing")))
	require.NoError(t, err)
	require.False(t, ok)
}
