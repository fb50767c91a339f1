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

// Package wiring assembles the scheduler's object graph with Wire.
// wire_gen.go is generated from the providers declared here; since this
// tree is never built, it is hand-authored to match what `wire` would
// emit for Set.
package wiring

import (
	"context"

	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/action/sqlrunner"
	"github.com/warehouse-sched/viewsched/internal/catalog"
	"github.com/warehouse-sched/viewsched/internal/chaos"
	"github.com/warehouse-sched/viewsched/internal/config"
	"github.com/warehouse-sched/viewsched/internal/coordinator"
	"github.com/warehouse-sched/viewsched/internal/diag"
	"github.com/warehouse-sched/viewsched/internal/manager"
	"github.com/warehouse-sched/viewsched/internal/schema"
	"github.com/warehouse-sched/viewsched/internal/schema/sqlschema"
	"github.com/warehouse-sched/viewsched/internal/stopper"
	"github.com/warehouse-sched/viewsched/internal/util/stdpool"
)

// App is the fully wired object graph for a running scheduler process.
type App struct {
	Manager *manager.Manager
	Diags   *diag.Diagnostics
}

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideDiagnostics,
	ProvidePool,
	ProvideActionRunner,
	ProvideSchemaService,
	ProvideCoordinatorConfig,
	ProvideCatalog,
	ProvideManager,
)

// ProvideDiagnostics is called by Wire to construct the process-wide
// diagnostics registry.
func ProvideDiagnostics(ctx context.Context) (*diag.Diagnostics, func()) {
	return diag.New(ctx)
}

// ProvidePool is called by Wire to open the connection pool shared by
// the action runner and the schema service.
func ProvidePool(ctx context.Context, sc *stopper.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return stdpool.Open(ctx, sc, cfg.ConnString, stdpool.Option{WaitForStartup: true})
}

// ProvideActionRunner is called by Wire to construct the SQL-backed
// action.Runner/action.Filesystem, wrapped with chaos injection when
// configured.
func ProvideActionRunner(
	ctx context.Context, pool *pgxpool.Pool, cfg *config.Config,
) (action.Runner, action.Filesystem, error) {
	r, err := sqlrunner.New(ctx, pool, cfg.MarkerTable)
	if err != nil {
		return nil, nil, err
	}
	wrapped := chaos.WithRunnerChaos(r, cfg.ChaosRunner)
	return wrapped, r, nil
}

// ProvideSchemaService is called by Wire to construct the SQL-backed
// schema.Service, wrapped with chaos injection when configured.
func ProvideSchemaService(ctx context.Context, pool *pgxpool.Pool, cfg *config.Config) (schema.Service, error) {
	s, err := sqlschema.New(ctx, pool, cfg.SchemaTable)
	if err != nil {
		return nil, err
	}
	return chaos.WithSchemaChaos(s, cfg.ChaosSchema), nil
}

// ProvideCoordinatorConfig is called by Wire to derive the coordinator
// package's configuration from the bound flags.
func ProvideCoordinatorConfig(cfg *config.Config) coordinator.Config {
	return cfg.Coordinator()
}

// ProvideCatalog is called by Wire to load the static view catalog
// named by cfg.CatalogFile.
func ProvideCatalog(cfg *config.Config) (catalog.Static, error) {
	return catalog.Load(cfg.CatalogFile)
}

// ProvideManager is called by Wire to construct the top-level
// manager.Manager.
func ProvideManager(
	sc *stopper.Context,
	cat catalog.Static,
	runner action.Runner,
	fs action.Filesystem,
	schemaSvc schema.Service,
	coordCfg coordinator.Config,
	diags *diag.Diagnostics,
) *manager.Manager {
	return manager.New(sc, cat, runner, fs, schemaSvc, coordCfg, diags)
}
