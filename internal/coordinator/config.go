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

package coordinator

import (
	"time"

	"github.com/warehouse-sched/viewsched/internal/clock"
)

// Config holds the per-coordinator tunables. It is deliberately a plain
// value type (no flag-parsing concerns) so this package stays
// independent of how its fields were populated; the CLI-facing
// internal/config package is responsible for producing one of these.
type Config struct {
	// MaxRetries bounds the retries of a failed transformation. A Retry
	// transforms again while the number of retries already consumed is
	// at most MaxRetries, so up to MaxRetries+1 retried attempts follow
	// the initial one before the coordinator transitions to Failed.
	MaxRetries int

	// DependencyLookupTimeout bounds only the Resolver.Coordinator
	// lookup for a dependency, expected to return in O(µs) since it is
	// just a registry get-or-create. It does not bound the dependency's
	// own materialization round, which can legitimately run long under
	// its own retry/backoff budget.
	DependencyLookupTimeout time.Duration

	// DependencyTimeout bounds how long a coordinator waits for a
	// dependency's Materialize reply to arrive once dispatched,
	// including any retries the dependency schedules itself. It should
	// comfortably exceed MaxRetries' worst-case backoff budget so a
	// dependency that is still legitimately retrying is never mistaken
	// for a stuck one.
	DependencyTimeout time.Duration

	// FileActionTimeout bounds calls to the action.Filesystem marker
	// check and to action.Runner.Touch/Delete.
	FileActionTimeout time.Duration

	// SchemaActionTimeout bounds calls to the schema.Service.
	SchemaActionTimeout time.Duration

	// UserIdentity is the configured identity for filesystem marker
	// checks. This package only stores it: it is not passed to
	// action.Filesystem or action.Runner, and marker checks run under
	// whatever identity those implementations use.
	UserIdentity string

	// Backoff computes the delay before the r-th retry attempt. Tests
	// that exercise several retry rounds substitute a fast-forwarded
	// function here; DefaultConfig sets it to clock.Backoff, and a nil
	// value also falls back to clock.Backoff.
	Backoff func(r int) time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:              5,
		DependencyLookupTimeout: 2 * time.Second,
		DependencyTimeout:       10 * time.Minute,
		FileActionTimeout:       10 * time.Second,
		SchemaActionTimeout:     10 * time.Second,
		Backoff:                 clock.Backoff,
	}
}

// backoff returns cfg.Backoff, defaulting to clock.Backoff when unset.
func (cfg Config) backoff(r int) time.Duration {
	if cfg.Backoff == nil {
		return clock.Backoff(r)
	}
	return cfg.Backoff(r)
}
