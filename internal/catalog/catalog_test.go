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

package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/warehouse-sched/viewsched/internal/view"
)

const sample = `
views:
  - name: raw_events
    path: /warehouse/raw_events
    format: parquet
    resourceHashes: ["r1"]
    definition: "external drop"
    transformation:
      kind: noop
  - name: daily_rollup
    path: /warehouse/daily_rollup
    format: parquet
    resourceHashes: ["r1"]
    definition: "SELECT count(*) FROM raw_events"
    dependencies: [raw_events]
    transformation:
      kind: compute
      driver: sql
      statement: "INSERT INTO daily_rollup SELECT count(*) FROM raw_events"
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	return path
}

func TestLoadResolvesDependencies(t *testing.T) {
	path := writeSample(t)
	cat, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cat, 2)

	var rollup *view.View
	for _, v := range cat {
		if v.Name == "daily_rollup" {
			rollup = v
		}
	}
	require.NotNil(t, rollup)
	require.Len(t, rollup.Dependencies, 1)
	require.Equal(t, view.ComputeTransformation, rollup.Transformation.Kind)
}

func TestLoadRejectsUnknownDependency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
views:
  - name: orphan
    path: /warehouse/orphan
    dependencies: [missing]
    transformation:
      kind: noop
`), 0o600))
	_, err := Load(path)
	require.Error(t, err)
}
