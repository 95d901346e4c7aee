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

// Package process defines the boundary the persistent process engine
// drives: an opaque, deterministic state machine the engine never
// inspects, only serializes, deserializes and feeds events to.
package process

// Process is the opaque collaborator (§4.3, §6). Implementations must
// be deterministic: applying the same events to the same starting
// state always yields the same resulting state and the same responses.
// The engine treats every method as capable of failing; a non-nil
// error from ProcessEvent or SetSerializedState surfaces to the caller
// as a ProcessError and, for ProcessEvent, aborts the batch without
// persisting anything (see engine package for the partial-failure
// caveat this implies).
type Process interface {
	// ProcessEvent applies one opaque event string and returns the
	// opaque response string.
	ProcessEvent(event string) (response string, err error)

	// GetSerializedState returns the process's current state, encoded
	// however the process sees fit; the engine never parses it.
	GetSerializedState() (string, error)

	// SetSerializedState replaces the process's entire state.
	SetSerializedState(state string) error

	// Dispose releases any resources the process holds. Called exactly
	// once, when the owning engine is disposed.
	Dispose()
}
