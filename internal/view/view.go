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

// Package view contains the immutable description of a view: a logical
// table in the warehouse whose contents are produced by a
// transformation over zero or more upstream views. Parsing of the view
// DSL that produces these values is out of scope here; this package
// only defines the shape that the scheduler operates on.
package view

import "github.com/warehouse-sched/viewsched/internal/ident"

// Format describes the physical storage layout of a materialized view.
type Format int

// Supported storage formats. The set is intentionally small; drivers
// that understand additional formats are free to extend it.
const (
	FormatUnknown Format = iota
	FormatParquet
	FormatAvro
	FormatText
)

// TransformationKind discriminates the three shapes a Transformation can
// take.
type TransformationKind int

const (
	// NoOp views have no computation of their own; they are considered
	// materialized once a success marker is observed under their
	// fullPath.
	NoOp TransformationKind = iota
	// FilesystemTransformation views are produced by side effects on
	// the underlying filesystem alone (e.g. a copy or external drop)
	// rather than by a compute driver; transform() skips deleting
	// existing partition data for these.
	FilesystemTransformation
	// ComputeTransformation views run a general compute job (SQL,
	// morphline, or other driver) to produce their data. The concrete
	// execution is delegated to an external driver named by Driver;
	// this package never imports one.
	ComputeTransformation
)

// A Transformation names how a view's data is produced. The concrete
// driver that executes Statement is out of scope for the scheduler;
// only the bookkeeping value is defined here.
type Transformation struct {
	Kind TransformationKind
	// Driver names the external transformation driver, e.g. "sql",
	// "filesystem", or "morphline". Empty for NoOp.
	Driver string
	// Statement is the driver-specific transformation body, e.g. a SQL
	// statement or a morphline command file path. Empty for NoOp and
	// pure FilesystemTransformation.
	Statement string
}

// View is an immutable descriptor of a logical table in the warehouse.
type View struct {
	// ID is the view's stable, content-addressed identity.
	ID ident.ViewID
	// Name is a human-readable label, used for logging, as a metric
	// label, and as the view's diagnostics registration name.
	Name string
	// Dependencies lists the views this view's Transformation reads
	// from. Empty for leaf views.
	Dependencies []ident.ViewID
	// Transformation produces this view's data from Dependencies.
	Transformation Transformation
	// Format is the physical storage layout of materialized data.
	Format Format
	// FullPath is the view's location on the underlying storage. Paths
	// are disjoint across views by construction of the view DSL; this
	// package assumes that precondition holds.
	FullPath string
	// VersionDigest is a stable hash of the view's resources and
	// Transformation, compared against the schema service on each
	// round to detect drift.
	VersionDigest ident.VersionDigest
}

// IsLeaf reports whether the view has no dependencies.
func (v *View) IsLeaf() bool {
	return len(v.Dependencies) == 0
}
