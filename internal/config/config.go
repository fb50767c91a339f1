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

// Package config binds the scheduler's user-visible configuration to
// command-line flags and validates it before use, following the same
// Bind/Preflight shape used throughout this codebase for CLI-facing
// configuration.
package config

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/warehouse-sched/viewsched/internal/coordinator"
)

// Config is the top-level, user-visible configuration for the
// scheduler process.
type Config struct {
	MaxRetries              int
	DependencyLookupTimeout time.Duration
	DependencyTimeout       time.Duration
	FileActionTimeout       time.Duration
	SchemaActionTimeout     time.Duration
	UserIdentity            string

	SchemaTable string
	MarkerTable string
	ChaosRunner float32
	ChaosSchema float32

	ConnString  string
	CatalogFile string
}

// Bind registers the scheduler's flags on flags.
func (c *Config) Bind(flags *pflag.FlagSet) {
	flags.IntVar(&c.MaxRetries, "maxRetries", 5,
		"retry bound for a failed transformation: a retry runs while the retries already consumed are at most this value, so up to maxRetries+1 retried attempts follow the initial one")
	flags.DurationVar(&c.DependencyLookupTimeout, "dependencyLookupTimeout", 2*time.Second,
		"how long to wait for a dependency coordinator lookup, not its materialization round")
	flags.DurationVar(&c.DependencyTimeout, "dependencyTimeout", 10*time.Minute,
		"how long to wait for a single dependency's Materialize reply, including its own retries")
	flags.DurationVar(&c.FileActionTimeout, "fileActionTimeout", 10*time.Second,
		"how long to wait for a filesystem marker check, touch, or delete")
	flags.DurationVar(&c.SchemaActionTimeout, "schemaActionTimeout", 10*time.Second,
		"how long to wait for a metadata-store round trip")
	flags.StringVar(&c.UserIdentity, "userIdentity", "",
		"identity for filesystem marker checks; stored in the coordinator config but not passed to the filesystem or action runner")
	flags.StringVar(&c.SchemaTable, "schemaTable", "_view_schema",
		"name of the metadata table backing the schema service")
	flags.StringVar(&c.MarkerTable, "markerTable", "_view_markers",
		"name of the table backing success-marker bookkeeping")
	flags.Float32Var(&c.ChaosRunner, "chaosRunnerProb", 0,
		"probability (0-1) of injecting a synthetic action-runner failure; for testing only")
	flags.Float32Var(&c.ChaosSchema, "chaosSchemaProb", 0,
		"probability (0-1) of injecting a synthetic schema-service failure; for testing only")
	flags.StringVar(&c.ConnString, "conn", "",
		"connection string for the Postgres/CockroachDB database backing the schema store and marker table")
	flags.StringVar(&c.CatalogFile, "catalog", "",
		"path to the YAML file describing the view catalog")
}

// Preflight validates the configuration after flags have been parsed.
func (c *Config) Preflight() error {
	if c.MaxRetries < 0 {
		return errors.New("maxRetries must be non-negative")
	}
	if c.DependencyLookupTimeout <= 0 {
		return errors.New("dependencyLookupTimeout must be positive")
	}
	if c.DependencyTimeout <= 0 {
		return errors.New("dependencyTimeout must be positive")
	}
	if c.FileActionTimeout <= 0 {
		return errors.New("fileActionTimeout must be positive")
	}
	if c.SchemaActionTimeout <= 0 {
		return errors.New("schemaActionTimeout must be positive")
	}
	if c.SchemaTable == "" {
		return errors.New("schemaTable unset")
	}
	if c.MarkerTable == "" {
		return errors.New("markerTable unset")
	}
	if c.ChaosRunner < 0 || c.ChaosRunner > 1 {
		return errors.New("chaosRunnerProb must be between 0 and 1")
	}
	if c.ChaosSchema < 0 || c.ChaosSchema > 1 {
		return errors.New("chaosSchemaProb must be between 0 and 1")
	}
	if c.ConnString == "" {
		return errors.New("conn must name a database connection string")
	}
	if c.CatalogFile == "" {
		return errors.New("catalog must name a view catalog file")
	}
	return nil
}

// Coordinator converts the bound flags into a coordinator.Config.
func (c *Config) Coordinator() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.DependencyLookupTimeout = c.DependencyLookupTimeout
	cfg.DependencyTimeout = c.DependencyTimeout
	cfg.FileActionTimeout = c.FileActionTimeout
	cfg.SchemaActionTimeout = c.SchemaActionTimeout
	cfg.UserIdentity = c.UserIdentity
	return cfg
}
