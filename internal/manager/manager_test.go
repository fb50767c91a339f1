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

package manager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	fakeaction "github.com/warehouse-sched/viewsched/internal/action/fake"
	"github.com/warehouse-sched/viewsched/internal/coordinator"
	"github.com/warehouse-sched/viewsched/internal/diag"
	"github.com/warehouse-sched/viewsched/internal/ident"
	fakeschema "github.com/warehouse-sched/viewsched/internal/schema/fake"
	"github.com/warehouse-sched/viewsched/internal/stopper"
	"github.com/warehouse-sched/viewsched/internal/view"
)

type staticCatalog map[ident.ViewID]*view.View

func (c staticCatalog) Lookup(id ident.ViewID) (*view.View, bool) {
	v, ok := c[id]
	return v, ok
}

func testCfg() coordinator.Config {
	cfg := coordinator.DefaultConfig()
	cfg.DependencyTimeout = 2 * time.Second
	cfg.FileActionTimeout = time.Second
	cfg.SchemaActionTimeout = time.Second
	cfg.Backoff = func(r int) time.Duration {
		if r <= 0 {
			return 0
		}
		return (1 << uint(r)) * time.Millisecond
	}
	return cfg
}

func newLeaf(name string) *view.View {
	id := ident.NewViewID("/warehouse/"+name, "fp-"+name)
	return &view.View{
		ID:   id,
		Name: name,
		Transformation: view.Transformation{
			Kind: view.ComputeTransformation, Driver: "sql", Statement: "SELECT 1",
		},
		FullPath:      "/warehouse/" + name,
		VersionDigest: ident.NewVersionDigest([]string{"r1"}, "def-"+name),
	}
}

func newDependent(name string, deps ...*view.View) *view.View {
	id := ident.NewViewID("/warehouse/"+name, "fp-"+name)
	ids := make([]ident.ViewID, len(deps))
	for i, d := range deps {
		ids[i] = d.ID
	}
	return &view.View{
		ID:           id,
		Name:         name,
		Dependencies: ids,
		Transformation: view.Transformation{
			Kind: view.ComputeTransformation, Driver: "sql", Statement: "SELECT 1",
		},
		FullPath:      "/warehouse/" + name,
		VersionDigest: ident.NewVersionDigest([]string{"r1"}, "def-"+name),
	}
}

func TestManagerLazyCreatesAndResolvesDependencies(t *testing.T) {
	sc := stopper.WithContext(context.Background())
	t.Cleanup(func() { sc.Stop(5 * time.Second) })

	a := newLeaf("dep_a")
	parent := newDependent("rollup", a)

	cat := staticCatalog{a.ID: a, parent.ID: parent}
	runner := fakeaction.New()
	schemaSvc := fakeschema.New()
	diags, _ := diag.New(context.Background())
	m := New(sc, cat, runner, runner, schemaSvc, testCfg(), diags)

	ch, err := m.Materialize(context.Background(), parent.ID)
	require.NoError(t, err)

	select {
	case out := <-ch:
		require.Equal(t, coordinator.Materialized, out.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for materialize")
	}

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, 2, "both parent and its dependency should have been started")
}

func TestManagerUnknownViewErrors(t *testing.T) {
	sc := stopper.WithContext(context.Background())
	t.Cleanup(func() { sc.Stop(5 * time.Second) })

	diags, _ := diag.New(context.Background())
	m := New(sc, staticCatalog{}, fakeaction.New(), fakeaction.New(), fakeschema.New(), testCfg(), diags)
	_, err := m.Materialize(context.Background(), ident.NewViewID("/nope", "fp"))
	require.Error(t, err)
}

func TestManagerBroadcastsNewData(t *testing.T) {
	sc := stopper.WithContext(context.Background())
	t.Cleanup(func() { sc.Stop(5 * time.Second) })

	a := newLeaf("dep_a")
	parent := newDependent("rollup", a)
	cat := staticCatalog{a.ID: a, parent.ID: parent}
	runner := fakeaction.New()
	schemaSvc := fakeschema.New()
	diags, _ := diag.New(context.Background())
	m := New(sc, cat, runner, runner, schemaSvc, testCfg(), diags)

	ch, err := m.Materialize(context.Background(), parent.ID)
	require.NoError(t, err)
	<-ch

	m.NotifyNewData(a.ID)

	require.Eventually(t, func() bool {
		return runner.SubmitCount(parent.ID) == 2
	}, 5*time.Second, 10*time.Millisecond)
}
