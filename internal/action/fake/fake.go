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

// Package fake provides a deterministic, in-memory action.Runner for
// tests that need precise control over when transformations succeed,
// fail, or a filesystem marker exists.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// ErrInjectedFailure is returned by submissions configured to fail.
var ErrInjectedFailure = errors.New("fake: injected transformation failure")

// Runner is a fake action.Runner. Construct one with New, which starts
// with no configured failures and an empty filesystem (the zero value's
// maps are nil and not usable); use FailNext and Touch/Delete (or
// SeedMarker) to configure a scenario before running a coordinator
// against it.
type Runner struct {
	mu sync.Mutex

	// failuresRemaining[viewID] counts down how many more Submit calls
	// for that view should return a failure before succeeding.
	failuresRemaining map[ident.ViewID]int
	submitCount       map[ident.ViewID]int
	markers           map[string]bool
}

// New returns a ready-to-use fake Runner.
func New() *Runner {
	return &Runner{
		failuresRemaining: make(map[ident.ViewID]int),
		submitCount:       make(map[ident.ViewID]int),
		markers:           make(map[string]bool),
	}
}

// FailNext configures the next n Submit calls for v to fail before
// succeeding.
func (r *Runner) FailNext(v ident.ViewID, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failuresRemaining[v] = n
}

// SubmitCount returns how many times Submit has been called for v.
func (r *Runner) SubmitCount(v ident.ViewID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.submitCount[v]
}

// SeedMarker pre-populates the fake filesystem with a success marker at
// path, as though a prior run had completed.
func (r *Runner) SeedMarker(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[path] = true
}

// HasMarker reports whether a marker exists at path.
func (r *Runner) HasMarker(path string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markers[path]
}

// Submit implements action.Runner.
func (r *Runner) Submit(ctx context.Context, v *view.View) <-chan action.Result {
	ch := make(chan action.Result, 1)

	r.mu.Lock()
	r.submitCount[v.ID]++
	fail := r.failuresRemaining[v.ID] > 0
	if fail {
		r.failuresRemaining[v.ID]--
	}
	r.mu.Unlock()

	go func() {
		if fail {
			ch <- action.Result{Err: ErrInjectedFailure}
			return
		}
		ch <- action.Result{}
	}()
	return ch
}

// Touch implements action.Runner.
func (r *Runner) Touch(ctx context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markers[path] = true
	return nil
}

// Delete implements action.Runner.
func (r *Runner) Delete(ctx context.Context, path string, recursive bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.markers, path)
	return nil
}

// Exists implements action.Filesystem.
func (r *Runner) Exists(ctx context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.markers[path], nil
}

var (
	_ action.Runner     = (*Runner)(nil)
	_ action.Filesystem = (*Runner)(nil)
)
