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

// Package fake implements schema.Service entirely in memory, for
// coordinator tests that need precise control over recorded timestamps
// and version digests without a database.
package fake

import (
	"context"
	"sync"

	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/schema"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// Service is an in-memory schema.Service.
type Service struct {
	mu sync.Mutex

	partitions map[ident.ViewID]bool
	versions   map[ident.ViewID]ident.VersionDigest
	timestamps map[ident.ViewID]clock.Timestamp

	// forceMismatch, when set for a view, makes CheckViewVersion always
	// report ViewVersionMismatch regardless of the stored digest.
	forceMismatch map[ident.ViewID]bool
}

var _ schema.Service = (*Service)(nil)

// New returns a ready-to-use fake Service.
func New() *Service {
	return &Service{
		partitions:    make(map[ident.ViewID]bool),
		versions:      make(map[ident.ViewID]ident.VersionDigest),
		timestamps:    make(map[ident.ViewID]clock.Timestamp),
		forceMismatch: make(map[ident.ViewID]bool),
	}
}

// ForceMismatch makes subsequent CheckViewVersion calls for id report a
// mismatch, regardless of the recorded digest.
func (s *Service) ForceMismatch(id ident.ViewID, mismatch bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceMismatch[id] = mismatch
}

// SeedTimestamp pre-populates a transformation timestamp, as though a
// prior round had already recorded one.
func (s *Service) SeedTimestamp(id ident.ViewID, ts clock.Timestamp) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timestamps[id] = ts
}

// HasPartition reports whether AddPartition has been called for id.
func (s *Service) HasPartition(id ident.ViewID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partitions[id]
}

// AddPartition implements schema.Service.
func (s *Service) AddPartition(ctx context.Context, v *view.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partitions[v.ID] = true
	return nil
}

// SetViewVersion implements schema.Service.
func (s *Service) SetViewVersion(ctx context.Context, v *view.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.versions[v.ID] = v.VersionDigest
	return nil
}

// CheckViewVersion implements schema.Service.
func (s *Service) CheckViewVersion(ctx context.Context, v *view.View) (schema.VersionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.forceMismatch[v.ID] {
		return schema.ViewVersionMismatch, nil
	}
	stored, ok := s.versions[v.ID]
	if !ok || stored != v.VersionDigest {
		return schema.ViewVersionMismatch, nil
	}
	return schema.ViewVersionOk, nil
}

// LogTransformationTimestamp implements schema.Service.
func (s *Service) LogTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := clock.Now()
	// Guarantee monotonic progress even under fast test execution where
	// clock.Now() may return the same millisecond repeatedly.
	if prev := s.timestamps[id]; now <= prev {
		now = prev + 1
	}
	s.timestamps[id] = now
	return now, nil
}

// GetTransformationTimestamp implements schema.Service.
func (s *Service) GetTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestamps[id], nil
}
