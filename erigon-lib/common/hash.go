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

// Package common holds primitive types shared across the persistent
// process core: the content-address digest and its hashing.
package common

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// HashLength is the fixed width, in bytes, of every digest produced by Keccak256.
const HashLength = 32

// Hash is a content-address digest over a composition record's canonical bytes.
type Hash [HashLength]byte

// EmptyHash is the zero value; never a valid digest, used as a "no hash" sentinel.
var EmptyHash = Hash{}

func (h Hash) Bytes() []byte  { return h[:] }
func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) IsZero() bool { return h == EmptyHash }

// MarshalJSON renders h as a lowercase hex string, the canonical
// textual parent_hash form used by CompositionRecord.Encode.
func (h Hash) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(h[:]) + `"`), nil
}

// UnmarshalJSON parses the textual form produced by MarshalJSON.
func (h *Hash) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("hash: not a JSON string: %s", b)
	}
	decoded, err := hex.DecodeString(string(b[1 : len(b)-1]))
	if err != nil {
		return fmt.Errorf("hash: %w", err)
	}
	if len(decoded) != HashLength {
		return fmt.Errorf("hash: decoded to %d bytes, want %d", len(decoded), HashLength)
	}
	copy(h[:], decoded)
	return nil
}

// BytesToHash truncates or zero-pads b to HashLength.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) >= HashLength {
		copy(h[:], b[len(b)-HashLength:])
	} else {
		copy(h[HashLength-len(b):], b)
	}
	return h
}

// HashFromHex parses a hex-encoded digest of exactly HashLength bytes.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("decode hash hex: %w", err)
	}
	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("hash hex decodes to %d bytes, want %d", len(b), HashLength)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// Keccak256 computes the Keccak-256 digest of b. It is the sole Hasher
// implementation in this module; the hash algorithm is fixed for the
// lifetime of a deployment (§4.1 of the core spec) because changing it
// invalidates every previously-computed parent_hash link.
func Keccak256(b []byte) Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	var out Hash
	h.Sum(out[:0])
	return out
}

// EmptyInitHash is the digest of the empty byte sequence, the sentinel
// parent_hash for the genesis composition record.
var EmptyInitHash = Keccak256(nil)
