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

package process

// ConcatEchoProcess is the deterministic stand-in process used by the
// demo CLI and by the engine's test suite in place of a real opaque
// process: ProcessEvent echoes the event back as its response and
// appends the event to the running state, so GetSerializedState
// returns the concatenation of every event applied so far. This is the
// adapter named in spec.md's S1/S2/S3 scenarios.
type ConcatEchoProcess struct {
	state string
}

// NewConcatEchoProcess returns a ConcatEchoProcess starting at "".
func NewConcatEchoProcess() *ConcatEchoProcess {
	return &ConcatEchoProcess{}
}

func (p *ConcatEchoProcess) ProcessEvent(event string) (string, error) {
	p.state += event
	return event, nil
}

func (p *ConcatEchoProcess) GetSerializedState() (string, error) {
	return p.state, nil
}

func (p *ConcatEchoProcess) SetSerializedState(state string) error {
	p.state = state
	return nil
}

func (p *ConcatEchoProcess) Dispose() {}
