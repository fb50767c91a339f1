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

// Package sqlschema implements schema.Service against a single table in
// a Postgres/CockroachDB database, generalizing the per-endpoint
// resolved-timestamp table this project's teacher kept ("_release":
// endpoint, nanos, logical) into a per-view record of partition
// registration, version digest, and transformation timestamp.
package sqlschema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/pkg/errors"
	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/schema"
	"github.com/warehouse-sched/viewsched/internal/view"
)

const tableSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
  view_id            STRING PRIMARY KEY,
  partition_added     BOOL   NOT NULL DEFAULT false,
  version_digest      STRING NOT NULL DEFAULT '',
  transformed_at_ms   INT    NOT NULL DEFAULT 0
)`

const upsertPartitionQuery = `
UPSERT INTO %[1]s (view_id, partition_added) VALUES ($1, true)`

const upsertVersionQuery = `
UPSERT INTO %[1]s (view_id, version_digest)
VALUES ($1, $2)
ON CONFLICT (view_id) DO UPDATE SET version_digest = excluded.version_digest`

const selectVersionQuery = `SELECT version_digest FROM %[1]s WHERE view_id = $1`

const upsertTimestampQuery = `
UPSERT INTO %[1]s (view_id, transformed_at_ms)
VALUES ($1, $2)
ON CONFLICT (view_id) DO UPDATE SET transformed_at_ms = excluded.transformed_at_ms`

const selectTimestampQuery = `SELECT transformed_at_ms FROM %[1]s WHERE view_id = $1`

// Store implements schema.Service against a SQL table.
type Store struct {
	pool  *pgxpool.Pool
	table string
}

var _ schema.Service = (*Store)(nil)

// New creates (if needed) the backing table and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool, table string) (*Store, error) {
	if _, err := pool.Exec(ctx, fmt.Sprintf(tableSchema, table)); err != nil {
		return nil, errors.Wrap(err, "creating schema store table")
	}
	return &Store{pool: pool, table: table}, nil
}

// AddPartition implements schema.Service. Idempotent: repeated calls for
// the same view are no-ops after the first.
func (s *Store) AddPartition(ctx context.Context, v *view.View) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(upsertPartitionQuery, s.table), v.ID.Raw())
	return errors.WithStack(err)
}

// SetViewVersion implements schema.Service.
func (s *Store) SetViewVersion(ctx context.Context, v *view.View) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(upsertVersionQuery, s.table), v.ID.Raw(), string(v.VersionDigest))
	return errors.WithStack(err)
}

// CheckViewVersion implements schema.Service.
func (s *Store) CheckViewVersion(ctx context.Context, v *view.View) (schema.VersionStatus, error) {
	var stored string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(selectVersionQuery, s.table), v.ID.Raw()).Scan(&stored)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// No version has ever been recorded; treat as a mismatch so the
		// first round always transforms and records one.
		return schema.ViewVersionMismatch, nil
	case err != nil:
		log.WithError(err).WithField("view", v.Name).Warn("could not check view version")
		return schema.SchemaActionFailure, errors.WithStack(err)
	case stored != string(v.VersionDigest):
		return schema.ViewVersionMismatch, nil
	default:
		return schema.ViewVersionOk, nil
	}
}

// LogTransformationTimestamp implements schema.Service.
func (s *Store) LogTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error) {
	now := clock.Now()
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(upsertTimestampQuery, s.table), id.Raw(), int64(now)); err != nil {
		return clock.Zero, errors.WithStack(err)
	}
	return now, nil
}

// GetTransformationTimestamp implements schema.Service.
func (s *Store) GetTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error) {
	var ms int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(selectTimestampQuery, s.table), id.Raw()).Scan(&ms)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return clock.Zero, nil
	case err != nil:
		return clock.Zero, errors.WithStack(err)
	default:
		return clock.Timestamp(ms), nil
	}
}
