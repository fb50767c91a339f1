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

// Package diag is a process-wide registry of named, introspectable
// components. Anything that can report its own status (a
// ViewCoordinator, a pool, a queue) registers itself once under a
// unique name; Snapshot then collects a point-in-time report from every
// registered component for an operator-facing status endpoint.
package diag

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// StatusReporter is implemented by anything diag can report on.
type StatusReporter interface {
	DiagStatus(ctx context.Context) (any, error)
}

// Diagnostics is a registry of named StatusReporters.
type Diagnostics struct {
	mu    sync.Mutex
	items map[string]StatusReporter
}

// New returns an empty Diagnostics registry and a no-op cleanup
// function, matching the (value, cleanup) construction shape used by
// the other wire providers in this codebase.
func New(_ context.Context) (*Diagnostics, func()) {
	return &Diagnostics{items: make(map[string]StatusReporter)}, func() {}
}

// Register adds item under name. It is an error to register the same
// name twice.
func (d *Diagnostics) Register(name string, item StatusReporter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.items[name]; exists {
		return errors.Errorf("diagnostic %q already registered", name)
	}
	d.items[name] = item
	return nil
}

// Unregister removes name, if present.
func (d *Diagnostics) Unregister(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, name)
}

// Snapshot calls DiagStatus on every registered component and returns
// the results keyed by name. A component whose DiagStatus call fails is
// still represented in the map, with its error recorded instead of a
// status value, so that one unhealthy component never hides the rest.
func (d *Diagnostics) Snapshot(ctx context.Context) map[string]any {
	d.mu.Lock()
	items := make(map[string]StatusReporter, len(d.items))
	for name, item := range d.items {
		items[name] = item
	}
	d.mu.Unlock()

	out := make(map[string]any, len(items))
	for name, item := range items {
		status, err := item.DiagStatus(ctx)
		if err != nil {
			out[name] = struct {
				Error string `json:"error"`
			}{Error: err.Error()}
			continue
		}
		out[name] = status
	}
	return out
}
