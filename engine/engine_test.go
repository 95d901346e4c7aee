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

package engine_test

import (
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/erigontech/persistentprocess/engine"
	"github.com/erigontech/persistentprocess/erigon-lib/common"
	"github.com/erigontech/persistentprocess/process"
	"github.com/erigontech/persistentprocess/record"
	"github.com/erigontech/persistentprocess/store"
	"github.com/erigontech/persistentprocess/store/filestore"
	"github.com/erigontech/persistentprocess/wrapper"
)

// countingProcess wraps ConcatEchoProcess and counts ProcessEvent
// calls, used to assert P4: rehydration must not invoke ProcessEvent
// when a reduction covers the head.
type countingProcess struct {
	*process.ConcatEchoProcess
	calls int
}

func (p *countingProcess) ProcessEvent(event string) (string, error) {
	p.calls++
	return p.ConcatEchoProcess.ProcessEvent(event)
}

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := filestore.Open(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	return s
}

func TestS1_ProcessEventsBuildsLinearChain(t *testing.T) {
	st := newStore(t)
	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	w := wrapper.New(eng, st)

	respA, err := w.ProcessEvent("a")
	require.NoError(t, err)
	require.Equal(t, "a", respA)

	respB, err := w.ProcessEvent("b")
	require.NoError(t, err)
	require.Equal(t, "b", respB)

	iter, err := st.EnumerateReverse()
	require.NoError(t, err)

	require.True(t, iter.Next())
	second, err := record.DecodeCompositionRecord(iter.Bytes())
	require.NoError(t, err)

	require.True(t, iter.Next())
	first, err := record.DecodeCompositionRecord(iter.Bytes())
	require.NoError(t, err)
	require.False(t, iter.Next())

	firstHash, err := first.Hash()
	require.NoError(t, err)
	require.Equal(t, firstHash, second.ParentHash)
	require.True(t, first.IsGenesis())

	reduction, err := w.GetSerializedState()
	require.NoError(t, err)
	require.Equal(t, "ab", reduction)
}

func TestS2_RehydrationUsesReductionShortcut(t *testing.T) {
	st := newStore(t)
	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	w := wrapper.New(eng, st)
	_, err = w.ProcessEvent("a")
	require.NoError(t, err)
	_, err = w.ProcessEvent("b")
	require.NoError(t, err)
	before, err := w.GetSerializedState()
	require.NoError(t, err)

	counting := &countingProcess{ConcatEchoProcess: process.NewConcatEchoProcess()}
	eng2, err := engine.New(counting, st)
	require.NoError(t, err)
	require.Equal(t, 0, counting.calls, "rehydration must not replay events when a reduction covers the head")

	after, err := eng2.CurrentReduction()
	require.NoError(t, err)
	require.Equal(t, before, after.ReducedValue)
	require.Equal(t, eng.LastStateHash(), eng2.LastStateHash())
}

func TestS3_RehydrationWithoutReductionsReplaysFromGenesis(t *testing.T) {
	fs := afero.NewMemMapFs()
	st, err := filestore.Open(fs, "/data")
	require.NoError(t, err)

	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	w := wrapper.New(eng, st)
	_, err = w.ProcessEvent("a")
	require.NoError(t, err)
	_, err = w.ProcessEvent("b")
	require.NoError(t, err)

	require.NoError(t, fs.RemoveAll("/data/reductions"))
	require.NoError(t, fs.MkdirAll("/data/reductions", 0o755))

	counting := &countingProcess{ConcatEchoProcess: process.NewConcatEchoProcess()}
	eng2, err := engine.New(counting, st)
	require.NoError(t, err)
	require.Equal(t, 2, counting.calls)

	reduction, err := eng2.CurrentReduction()
	require.NoError(t, err)
	require.Equal(t, "ab", reduction.ReducedValue)
	require.Equal(t, eng.LastStateHash(), eng2.LastStateHash())
}

func TestS4_SetStateRecord(t *testing.T) {
	st := newStore(t)
	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	w := wrapper.New(eng, st)
	_, err = w.ProcessEvent("a")
	require.NoError(t, err)
	_, err = w.ProcessEvent("b")
	require.NoError(t, err)

	require.NoError(t, w.SetSerializedState("xyz"))

	iter, err := st.EnumerateReverse()
	require.NoError(t, err)
	require.True(t, iter.Next())
	third, err := record.DecodeCompositionRecord(iter.Bytes())
	require.NoError(t, err)
	require.Nil(t, third.AppendedEvents)
	require.NotNil(t, third.SetState)
	require.Equal(t, "xyz", *third.SetState)

	state, err := w.GetSerializedState()
	require.NoError(t, err)
	require.Equal(t, "xyz", state)

	h, err := third.Hash()
	require.NoError(t, err)
	require.Equal(t, h, eng.LastStateHash())
}

func TestS5_ChainIncomplete(t *testing.T) {
	st := newStore(t)
	brokenParent := common.Keccak256([]byte("nonexistent"))
	broken := record.NewEventsRecord(brokenParent, []string{"a"})
	b, err := broken.Encode()
	require.NoError(t, err)
	require.NoError(t, st.AppendSerializedCompositionRecord(b))

	_, err = engine.New(process.NewConcatEchoProcess(), st)
	require.Error(t, err)
	var chainErr *engine.ChainIncompleteError
	require.ErrorAs(t, err, &chainErr)
	brokenHash, err := broken.Hash()
	require.NoError(t, err)
	require.Equal(t, brokenHash, chainErr.Head)
}

func TestS6_ConcurrentCallersProduceALinearChain(t *testing.T) {
	st := newStore(t)
	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	w := wrapper.New(eng, st)

	var wg sync.WaitGroup
	responses := make(chan string, 2)
	for _, ev := range []string{"x", "y"} {
		wg.Add(1)
		go func(event string) {
			defer wg.Done()
			resp, err := w.ProcessEvent(event)
			require.NoError(t, err)
			responses <- resp
		}(ev)
	}
	wg.Wait()
	close(responses)

	got := map[string]bool{}
	for r := range responses {
		got[r] = true
	}
	require.True(t, got["x"] && got["y"])

	iter, err := st.EnumerateReverse()
	require.NoError(t, err)
	require.True(t, iter.Next())
	newer, err := record.DecodeCompositionRecord(iter.Bytes())
	require.NoError(t, err)
	require.True(t, iter.Next())
	older, err := record.DecodeCompositionRecord(iter.Bytes())
	require.NoError(t, err)
	require.False(t, iter.Next())

	olderHash, err := older.Hash()
	require.NoError(t, err)
	require.Equal(t, olderHash, newer.ParentHash)
}

func TestDisposedEngineRejectsEveryOperation(t *testing.T) {
	st := newStore(t)
	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	eng.Dispose()

	_, _, err = eng.ProcessEvents([]string{"a"})
	require.ErrorIs(t, err, engine.ErrDisposed)

	_, err = eng.SetState("x")
	require.ErrorIs(t, err, engine.ErrDisposed)

	_, err = eng.CurrentReduction()
	require.ErrorIs(t, err, engine.ErrDisposed)
}

// TestP1_ChainLengthAndOrderMatchesEventSequence checks P1: reverse
// enumeration after N process_event calls yields exactly N records
// whose appended_events concatenate back to the submitted sequence.
func TestP1_ChainLengthAndOrderMatchesEventSequence(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		events := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,5}`), 0, 12).Draw(rt, "events")

		st := newStore(t)
		eng, err := engine.New(process.NewConcatEchoProcess(), st)
		require.NoError(rt, err)
		w := wrapper.New(eng, st)

		for _, ev := range events {
			_, err := w.ProcessEvent(ev)
			require.NoError(rt, err)
		}

		iter, err := st.EnumerateReverse()
		require.NoError(rt, err)
		var recs []record.CompositionRecord
		for iter.Next() {
			r, err := record.DecodeCompositionRecord(iter.Bytes())
			require.NoError(rt, err)
			recs = append(recs, r)
		}
		require.Len(rt, recs, len(events))

		// recs is newest-first; reverse it and flatten appended_events.
		var replayed []string
		for i := len(recs) - 1; i >= 0; i-- {
			replayed = append(replayed, recs[i].AppendedEvents...)
		}
		require.Equal(rt, events, replayed)
	})
}

// TestP2_ParentHashLinksToImmediatePredecessor checks P2 against a
// randomly generated event sequence.
func TestP2_ParentHashLinksToImmediatePredecessor(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		events := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,5}`), 1, 12).Draw(rt, "events")

		st := newStore(t)
		eng, err := engine.New(process.NewConcatEchoProcess(), st)
		require.NoError(rt, err)
		w := wrapper.New(eng, st)
		for _, ev := range events {
			_, err := w.ProcessEvent(ev)
			require.NoError(rt, err)
		}

		iter, err := st.EnumerateReverse()
		require.NoError(rt, err)
		var recs []record.CompositionRecord
		for iter.Next() {
			r, err := record.DecodeCompositionRecord(iter.Bytes())
			require.NoError(rt, err)
			recs = append(recs, r)
		}
		for i := 0; i < len(recs)-1; i++ {
			olderHash, err := recs[i+1].Hash()
			require.NoError(rt, err)
			require.Equal(rt, olderHash, recs[i].ParentHash)
		}
		require.True(rt, recs[len(recs)-1].IsGenesis())
	})
}

// TestP3_RehydrationIsDeterministic checks P3: two independent engines
// constructed over the same store end with identical head and state.
func TestP3_RehydrationIsDeterministic(t *testing.T) {
	st := newStore(t)
	eng, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	w := wrapper.New(eng, st)
	for _, ev := range []string{"a", "b", "c"} {
		_, err := w.ProcessEvent(ev)
		require.NoError(t, err)
	}

	engA, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)
	engB, err := engine.New(process.NewConcatEchoProcess(), st)
	require.NoError(t, err)

	require.Equal(t, engA.LastStateHash(), engB.LastStateHash())
	redA, err := engA.CurrentReduction()
	require.NoError(t, err)
	redB, err := engB.CurrentReduction()
	require.NoError(t, err)
	require.Equal(t, redA.ReducedValue, redB.ReducedValue)
}
