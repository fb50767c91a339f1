// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package ident holds the content-addressed identifiers used to name
// views. A ViewID is a stable hash of a view's schema and storage
// location, so that two View values describing the same logical table
// always resolve to the same ViewID regardless of which goroutine
// constructed them.
package ident

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// A ViewID is a content-addressed identity for a View. It is safe to use
// as a map key and is stable across process restarts given the same
// inputs.
type ViewID struct {
	raw string
}

// Raw returns the underlying string form of the identity, suitable for
// logging or use as a map key.
func (v ViewID) Raw() string { return v.raw }

// String implements fmt.Stringer.
func (v ViewID) String() string { return v.raw }

// IsZero reports whether v is the zero ViewID.
func (v ViewID) IsZero() bool { return v.raw == "" }

// NewViewID computes the identity of a view from its fully qualified
// storage path and a schema fingerprint. Two calls with identical
// arguments always produce the same ViewID.
func NewViewID(fullPath, schemaFingerprint string) ViewID {
	h := sha256.New()
	_, _ = h.Write([]byte(fullPath))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(schemaFingerprint))
	return ViewID{raw: hex.EncodeToString(h.Sum(nil))[:16]}
}

// VersionDigest is a stable hash of a view's resources and
// transformation definition, used to detect schema or logic drift
// between rounds.
type VersionDigest string

// NewVersionDigest computes a digest from a set of resource hashes and
// the transformation's definition text.
func NewVersionDigest(resourceHashes []string, definition string) VersionDigest {
	h := sha256.New()
	for _, rh := range resourceHashes {
		_, _ = h.Write([]byte(rh))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte(definition))
	return VersionDigest(hex.EncodeToString(h.Sum(nil)))
}

// ParseViewID reconstructs a ViewID from its Raw string form, e.g. when
// read back from the schema service. It does not validate that the
// string was actually produced by NewViewID.
func ParseViewID(raw string) (ViewID, error) {
	if raw == "" {
		return ViewID{}, fmt.Errorf("ident: empty view id")
	}
	return ViewID{raw: raw}, nil
}
