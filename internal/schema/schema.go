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

// Package schema defines the external contract between a ViewCoordinator
// and the metadata store that records partitions, version digests, and
// transformation timestamps. The metastore's internal schema is out of
// scope; only the request/reply contract lives here.
package schema

import (
	"context"

	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// VersionStatus is the outcome of CheckViewVersion.
type VersionStatus int

const (
	// ViewVersionOk means the stored digest matches the view's current
	// VersionDigest.
	ViewVersionOk VersionStatus = iota
	// ViewVersionMismatch means the stored digest differs, forcing a
	// retransformation regardless of freshness.
	ViewVersionMismatch
	// SchemaActionFailure means the check itself could not be
	// completed (e.g. timeout); callers must treat this the same as a
	// mismatch.
	SchemaActionFailure
)

// Service is the synchronous request/reply contract to the metadata
// store. Every method is expected to complete within the caller's
// context deadline; a timeout is a first-class outcome, not an
// exception — callers apply the same conservative-failure handling
// they would to an explicit error.
type Service interface {
	// AddPartition idempotently registers v's partition in the
	// metastore.
	AddPartition(ctx context.Context, v *view.View) error

	// SetViewVersion writes v's current VersionDigest.
	SetViewVersion(ctx context.Context, v *view.View) error

	// CheckViewVersion compares the stored digest for v against its
	// current VersionDigest.
	CheckViewVersion(ctx context.Context, v *view.View) (VersionStatus, error)

	// LogTransformationTimestamp records that v was transformed at the
	// current time and returns the recorded value.
	LogTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error)

	// GetTransformationTimestamp returns the last recorded
	// transformation timestamp for id, or clock.Zero if none is on
	// record.
	GetTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error)
}
