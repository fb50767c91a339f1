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

package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func bound(t *testing.T, args ...string) *Config {
	t.Helper()
	c := &Config{}
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	c.Bind(flags)
	require.NoError(t, flags.Parse(args))
	return c
}

func TestDefaultsPassPreflight(t *testing.T) {
	c := bound(t, "--conn=postgresql://localhost/db", "--catalog=catalog.yaml")
	require.NoError(t, c.Preflight())
	require.Equal(t, 5, c.MaxRetries)
	require.Equal(t, 2*time.Second, c.DependencyLookupTimeout)
	require.Equal(t, 10*time.Minute, c.DependencyTimeout)
}

func TestMissingConnRejected(t *testing.T) {
	c := bound(t, "--catalog=catalog.yaml")
	require.Error(t, c.Preflight())
}

func TestMissingCatalogRejected(t *testing.T) {
	c := bound(t, "--conn=postgresql://localhost/db")
	require.Error(t, c.Preflight())
}

func TestNegativeMaxRetriesRejected(t *testing.T) {
	c := bound(t, "--maxRetries=-1")
	require.Error(t, c.Preflight())
}

func TestZeroTimeoutsRejected(t *testing.T) {
	c := bound(t, "--dependencyTimeout=0s")
	require.Error(t, c.Preflight())
}

func TestZeroLookupTimeoutRejected(t *testing.T) {
	c := bound(t, "--dependencyLookupTimeout=0s")
	require.Error(t, c.Preflight())
}

func TestChaosProbabilityOutOfRangeRejected(t *testing.T) {
	c := bound(t, "--chaosRunnerProb=1.5")
	require.Error(t, c.Preflight())
}

func TestCoordinatorConversionCarriesValues(t *testing.T) {
	c := bound(t, "--maxRetries=3", "--userIdentity=svc-scheduler",
		"--conn=postgresql://localhost/db", "--catalog=catalog.yaml")
	cc := c.Coordinator()
	require.Equal(t, 3, cc.MaxRetries)
	require.Equal(t, "svc-scheduler", cc.UserIdentity)
}
