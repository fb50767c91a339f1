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

// Package manager implements the registry that resolves a view's
// identity to its ViewCoordinator, creating one lazily on first lookup:
// a mutex-guarded map behind a get-or-create method, with no direct
// pointers handed between coordinators — only identities, resolved
// through this registry.
package manager

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/coordinator"
	"github.com/warehouse-sched/viewsched/internal/diag"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/schema"
	"github.com/warehouse-sched/viewsched/internal/stopper"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// Catalog resolves a view's stable identity to its definition. The view
// DSL that produces these definitions is out of scope; the Manager only
// needs a lookup.
type Catalog interface {
	Lookup(id ident.ViewID) (*view.View, bool)
}

// Manager is the registry of live ViewCoordinators for a process. It
// implements coordinator.Resolver so that coordinators can depend on it
// without this package depending back on them for construction.
type Manager struct {
	catalog   Catalog
	runner    action.Runner
	fs        action.Filesystem
	schemaSvc schema.Service
	cfg       coordinator.Config
	sc        *stopper.Context
	diags     *diag.Diagnostics

	mu           sync.Mutex
	coordinators map[ident.ViewID]*coordinator.Coordinator
}

var _ coordinator.Resolver = (*Manager)(nil)

// New returns a Manager backed by catalog, whose coordinators share
// runner, fs, schemaSvc, and cfg, and are started under sc. Every
// coordinator it creates is registered with diags under its view name.
func New(
	sc *stopper.Context,
	catalog Catalog,
	runner action.Runner,
	fs action.Filesystem,
	schemaSvc schema.Service,
	cfg coordinator.Config,
	diags *diag.Diagnostics,
) *Manager {
	return &Manager{
		catalog:      catalog,
		runner:       runner,
		fs:           fs,
		schemaSvc:    schemaSvc,
		cfg:          cfg,
		sc:           sc,
		diags:        diags,
		coordinators: make(map[ident.ViewID]*coordinator.Coordinator),
	}
}

// Coordinator implements coordinator.Resolver: it returns the existing
// coordinator for id, or creates and starts one from the catalog
// definition if this is the first lookup.
func (m *Manager) Coordinator(ctx context.Context, id ident.ViewID) (*coordinator.Coordinator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.coordinators[id]; ok {
		return c, nil
	}

	v, ok := m.catalog.Lookup(id)
	if !ok {
		return nil, errors.Errorf("view %s not found in catalog", id)
	}

	c := coordinator.New(v, m.runner, m.fs, m.schemaSvc, m, m.cfg)
	c.Start(m.sc)
	m.coordinators[id] = c
	if m.diags != nil {
		if err := m.diags.Register(v.Name, c); err != nil {
			log.WithError(err).WithField("view", v.Name).Warn("manager: could not register coordinator diagnostics")
		}
	}
	log.WithField("view", v.Name).Debug("manager: started coordinator")
	return c, nil
}

// Materialize is a convenience wrapper for callers outside the
// coordinator graph (CLI entry points, diagnostics) that only have a
// view identity.
func (m *Manager) Materialize(ctx context.Context, id ident.ViewID) (<-chan coordinator.Outcome, error) {
	c, err := m.Coordinator(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.Materialize(), nil
}

// NotifyNewData broadcasts a NewDataAvailable message to every
// coordinator that has been started so far. Coordinators that have not
// yet been created cannot have recorded id as a dependency, so they
// need no notification.
func (m *Manager) NotifyNewData(id ident.ViewID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.coordinators {
		c.NotifyNewData(id)
	}
}

// Invalidate resets the coordinator for id, if one has been started.
func (m *Manager) Invalidate(id ident.ViewID) {
	m.mu.Lock()
	c, ok := m.coordinators[id]
	m.mu.Unlock()
	if ok {
		c.Invalidate()
	}
}

// Status returns a status snapshot for every coordinator started so
// far, keyed by view identity.
func (m *Manager) Status(ctx context.Context) (map[ident.ViewID]coordinator.StatusReport, error) {
	m.mu.Lock()
	snapshot := make([]*coordinator.Coordinator, 0, len(m.coordinators))
	for _, c := range m.coordinators {
		snapshot = append(snapshot, c)
	}
	m.mu.Unlock()

	out := make(map[ident.ViewID]coordinator.StatusReport, len(snapshot))
	for _, c := range snapshot {
		st, err := c.GetStatus(ctx)
		if err != nil {
			return nil, err
		}
		out[st.View] = st
	}
	return out, nil
}
