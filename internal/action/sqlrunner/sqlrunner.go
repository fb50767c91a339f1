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

// Package sqlrunner is an action.Runner that executes
// view.ComputeTransformation values whose Driver is "sql" by running
// their Statement against a target Postgres/CockroachDB pool, and backs
// the filesystem contract with a table of marker rows rather than an
// actual distributed filesystem.
//
// The statement-building shape here is adapted from an older upsert/
// delete construction used to apply individual change-feed rows, whose
// call sites were marked "Needs retry" and never actually retried. That
// gap is closed here: callers are expected to drive retries through the
// coordinator's backoff loop rather than within a single Submit call.
package sqlrunner

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/pkg/errors"
	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// markerTableSchema creates the table used to stand in for the
// distributed filesystem's success-marker namespace.
const markerTableSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
  path STRING PRIMARY KEY
)`

const markerExistsQuery = `SELECT count(*) FROM %[1]s WHERE path = $1`
const markerInsertQuery = `INSERT INTO %[1]s (path) VALUES ($1) ON CONFLICT (path) DO NOTHING`
const markerDeleteQuery = `DELETE FROM %[1]s WHERE path = $1`

// Runner executes ComputeTransformations with Driver "sql" against a
// target connection pool.
type Runner struct {
	pool        *pgxpool.Pool
	markerTable string
}

var (
	_ action.Runner     = (*Runner)(nil)
	_ action.Filesystem = (*Runner)(nil)
)

// New returns a Runner backed by pool. markerTable names the table used
// to track success markers; it is created if missing.
func New(ctx context.Context, pool *pgxpool.Pool, markerTable string) (*Runner, error) {
	if _, err := pool.Exec(ctx, fmt.Sprintf(markerTableSchema, markerTable)); err != nil {
		return nil, errors.Wrap(err, "creating marker table")
	}
	return &Runner{pool: pool, markerTable: markerTable}, nil
}

// Submit implements action.Runner. Only view.ComputeTransformation with
// Driver "sql" is supported; anything else is reported as a failure
// immediately, since this runner has nothing to execute for it.
func (r *Runner) Submit(ctx context.Context, v *view.View) <-chan action.Result {
	ch := make(chan action.Result, 1)

	if v.Transformation.Kind != view.ComputeTransformation || v.Transformation.Driver != "sql" {
		ch <- action.Result{Err: errors.Errorf("sqlrunner: unsupported transformation for view %s", v.Name)}
		return ch
	}

	go func() {
		_, err := r.pool.Exec(ctx, v.Transformation.Statement)
		if err != nil {
			log.WithError(err).WithField("view", v.Name).Warn("transformation statement failed")
			ch <- action.Result{Err: errors.WithStack(err)}
			return
		}
		ch <- action.Result{}
	}()
	return ch
}

// Touch implements action.Runner by recording a marker row.
func (r *Runner) Touch(ctx context.Context, path string) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(markerInsertQuery, r.markerTable), path)
	return errors.WithStack(err)
}

// Delete implements action.Runner by removing a marker row. recursive
// directory semantics do not apply to the marker-row stand-in.
func (r *Runner) Delete(ctx context.Context, path string, recursive bool) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(markerDeleteQuery, r.markerTable), path)
	return errors.WithStack(err)
}

// Exists implements action.Filesystem.
func (r *Runner) Exists(ctx context.Context, path string) (bool, error) {
	var count int
	if err := r.pool.QueryRow(ctx, fmt.Sprintf(markerExistsQuery, r.markerTable), path).Scan(&count); err != nil {
		return false, errors.WithStack(err)
	}
	return count > 0, nil
}
