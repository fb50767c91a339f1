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

// Package action defines the external contract between a ViewCoordinator
// and the runner that actually executes transformations and filesystem
// side effects. The transformation drivers themselves (SQL/filesystem/
// morphline executors) are out of scope; this package only defines the
// request/reply shape and its async submission path.
package action

import (
	"context"

	"github.com/warehouse-sched/viewsched/internal/view"
)

// A Result is delivered exactly once for every Submit call, either as a
// success or a failure. Never silently dropped.
type Result struct {
	Err error // nil on success
}

// Succeeded reports whether the Result represents ActionSuccess.
func (r Result) Succeeded() bool { return r.Err == nil }

// Runner accepts Transformation submissions and filesystem operations on
// behalf of a view coordinator. Submit is asynchronous: it returns
// immediately and the caller learns the outcome from the returned
// channel, which receives exactly one Result. Touch and Delete are
// synchronous, bounded by the caller's context.
type Runner interface {
	// Submit begins executing v's Transformation and returns a channel
	// that will receive exactly one Result.
	Submit(ctx context.Context, v *view.View) <-chan Result

	// Touch creates a zero-byte marker file at path.
	Touch(ctx context.Context, path string) error

	// Delete removes path, optionally recursively.
	Delete(ctx context.Context, path string, recursive bool) error
}

// SuccessMarkerName is the well-known filename used to signal that a
// view's data is complete under its FullPath.
const SuccessMarkerName = "_SUCCESS"

// Filesystem is consulted directly (not through the Runner) to check
// for the presence of a view's success marker: creation and deletion of
// the marker go through the Runner, but existence checks read the
// filesystem directly under the configured user identity.
type Filesystem interface {
	// Exists reports whether a zero-byte marker is present at path.
	Exists(ctx context.Context, path string) (bool, error)
}

