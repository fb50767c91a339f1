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

package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warehouse-sched/viewsched/internal/action"
	fakeaction "github.com/warehouse-sched/viewsched/internal/action/fake"
	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
	fakeschema "github.com/warehouse-sched/viewsched/internal/schema/fake"
	"github.com/warehouse-sched/viewsched/internal/stopper"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// mapResolver is a fixed, test-only Resolver backed by a map populated
// before any coordinator in the graph is started.
type mapResolver struct {
	byID map[ident.ViewID]*Coordinator
}

func newMapResolver() *mapResolver {
	return &mapResolver{byID: map[ident.ViewID]*Coordinator{}}
}

func (r *mapResolver) add(c *Coordinator) { r.byID[c.v.ID] = c }

func (r *mapResolver) Coordinator(_ context.Context, id ident.ViewID) (*Coordinator, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, errNotFound
	}
	return c, nil
}

var errNotFound = errors.New("view not found in test resolver")

// testConfig returns a Config with a backoff fast enough for unit
// tests: the same exponential shape, compressed to milliseconds.
func testConfig() Config {
	cfg := DefaultConfig()
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

func leafView(name string) *view.View {
	id := ident.NewViewID("/warehouse/"+name, "fp-"+name)
	return &view.View{
		ID:   id,
		Name: name,
		Transformation: view.Transformation{
			Kind:      view.ComputeTransformation,
			Driver:    "sql",
			Statement: "INSERT INTO " + name + " SELECT 1",
		},
		FullPath:      "/warehouse/" + name,
		VersionDigest: ident.NewVersionDigest([]string{"r1"}, "def-"+name),
	}
}

func noOpView(name string) *view.View {
	id := ident.NewViewID("/warehouse/"+name, "fp-"+name)
	return &view.View{
		ID:            id,
		Name:          name,
		Transformation: view.Transformation{Kind: view.NoOp},
		FullPath:      "/warehouse/" + name,
		VersionDigest: ident.NewVersionDigest(nil, "def-"+name),
	}
}

func dependentView(name string, deps ...*view.View) *view.View {
	id := ident.NewViewID("/warehouse/"+name, "fp-"+name)
	depIDs := make([]ident.ViewID, len(deps))
	for i, d := range deps {
		depIDs[i] = d.ID
	}
	return &view.View{
		ID:           id,
		Name:         name,
		Dependencies: depIDs,
		Transformation: view.Transformation{
			Kind:      view.ComputeTransformation,
			Driver:    "sql",
			Statement: "INSERT INTO " + name + " SELECT 1",
		},
		FullPath:      "/warehouse/" + name,
		VersionDigest: ident.NewVersionDigest([]string{"r1"}, "def-"+name),
	}
}

type harness struct {
	sc       *stopper.Context
	runner   *fakeaction.Runner
	schemaS  *fakeschema.Service
	resolver *mapResolver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	sc := stopper.WithContext(context.Background())
	t.Cleanup(func() { sc.Stop(5 * time.Second) })
	return &harness{
		sc:       sc,
		runner:   fakeaction.New(),
		schemaS:  fakeschema.New(),
		resolver: newMapResolver(),
	}
}

func (h *harness) spawn(v *view.View) *Coordinator {
	c := New(v, h.runner, h.runner, h.schemaS, h.resolver, testConfig())
	h.resolver.add(c)
	c.Start(h.sc)
	return c
}

func awaitOutcome(t *testing.T, ch <-chan Outcome) Outcome {
	t.Helper()
	select {
	case o := <-ch:
		return o
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return Outcome{}
	}
}

// S1: a NoOp view with no marker present reports NoDataAvailable and
// stays in Initial.
func TestNoOpWithoutMarker(t *testing.T) {
	h := newHarness(t)
	v := noOpView("raw_drop")
	c := h.spawn(v)

	out := awaitOutcome(t, c.Materialize())
	require.Equal(t, NoDataAvailable, out.Kind)

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Initial", status.State)
}

// S1b: a NoOp view whose marker is already present materializes
// immediately.
func TestNoOpWithMarker(t *testing.T) {
	h := newHarness(t)
	v := noOpView("raw_drop")
	h.runner.SeedMarker(v.FullPath + "/_SUCCESS")
	c := h.spawn(v)

	out := awaitOutcome(t, c.Materialize())
	require.Equal(t, Materialized, out.Kind)
	require.False(t, out.Incomplete)
	require.False(t, out.WithErrors)
}

// A NoOp view with a marker but no recorded transformation timestamp
// gets one logged on its behalf, so a cold coordinator that finds an
// externally-written marker still contributes real freshness to any
// dependent view.
func TestNoOpWithMarkerLogsTimestampIfMissing(t *testing.T) {
	h := newHarness(t)
	v := noOpView("raw_drop")
	h.runner.SeedMarker(v.FullPath + "/_SUCCESS")
	c := h.spawn(v)

	out := awaitOutcome(t, c.Materialize())
	require.Equal(t, Materialized, out.Kind)
	require.NotEqual(t, clock.Zero, out.Timestamp)

	logged, err := h.schemaS.GetTransformationTimestamp(context.Background(), v.ID)
	require.NoError(t, err)
	require.Equal(t, out.Timestamp, logged)
}

// A NoOp view whose marker was already known from a prior restart
// reuses the previously recorded transformation timestamp instead of
// logging a new one.
func TestNoOpWithMarkerReusesRecordedTimestamp(t *testing.T) {
	h := newHarness(t)
	v := noOpView("raw_drop")
	h.runner.SeedMarker(v.FullPath + "/_SUCCESS")
	seeded := clock.Timestamp(42)
	h.schemaS.SeedTimestamp(v.ID, seeded)
	c := h.spawn(v)

	out := awaitOutcome(t, c.Materialize())
	require.Equal(t, Materialized, out.Kind)
	require.Equal(t, seeded, out.Timestamp)
}

// S3: a leaf view whose first two transform attempts fail retries with
// backoff and succeeds on the third.
func TestLeafRetriesThenSucceeds(t *testing.T) {
	h := newHarness(t)
	v := leafView("orders_clean")
	h.runner.FailNext(v.ID, 2)
	c := h.spawn(v)

	out := awaitOutcome(t, c.Materialize())
	require.Equal(t, Materialized, out.Kind)
	require.Equal(t, 3, h.runner.SubmitCount(v.ID))
	require.True(t, h.schemaS.HasPartition(v.ID))
	require.True(t, h.runner.HasMarker(v.FullPath+"/"+action.SuccessMarkerName))
}

// S3b: a leaf view that exhausts its retry budget transitions to
// Failed and answers every waiter with Failed.
func TestLeafExhaustsRetries(t *testing.T) {
	h := newHarness(t)
	v := leafView("orders_clean")
	cfg := testConfig()
	cfg.MaxRetries = 1
	h.runner.FailNext(v.ID, 10)
	c := New(v, h.runner, h.runner, h.schemaS, h.resolver, cfg)
	h.resolver.add(c)
	c.Start(h.sc)

	out := awaitOutcome(t, c.Materialize())
	require.Equal(t, Failed, out.Kind)

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Failed", status.State)
}

// Two dependencies both materialize with data; the parent, which has
// no recorded transformation yet, materializes after transforming
// exactly once.
func TestTwoDependencyFreshnessWins(t *testing.T) {
	h := newHarness(t)
	a := leafView("dep_a")
	b := leafView("dep_b")
	parent := dependentView("rollup", a, b)

	h.spawn(a)
	h.spawn(b)
	pc := h.spawn(parent)

	out := awaitOutcome(t, pc.Materialize())
	require.Equal(t, Materialized, out.Kind)
	require.Equal(t, 1, h.runner.SubmitCount(parent.ID))
}

// S4: once materialized, a second Materialize against unchanged
// dependencies short-circuits without resubmitting a transformation.
func TestRematerializeWithoutChangeIsShortCircuited(t *testing.T) {
	h := newHarness(t)
	a := leafView("dep_a")
	parent := dependentView("rollup", a)

	h.spawn(a)
	pc := h.spawn(parent)

	out1 := awaitOutcome(t, pc.Materialize())
	require.Equal(t, Materialized, out1.Kind)
	require.Equal(t, 1, h.runner.SubmitCount(parent.ID))

	out2 := awaitOutcome(t, pc.Materialize())
	require.Equal(t, Materialized, out2.Kind)
	require.Equal(t, 1, h.runner.SubmitCount(parent.ID), "a second Materialize with no new data must not retransform")
}

// S5: a schema version mismatch forces retransformation even though
// dependency freshness alone would not require it.
func TestVersionMismatchForcesRetransform(t *testing.T) {
	h := newHarness(t)
	a := leafView("dep_a")
	parent := dependentView("rollup", a)

	h.spawn(a)
	pc := h.spawn(parent)

	out1 := awaitOutcome(t, pc.Materialize())
	require.Equal(t, Materialized, out1.Kind)
	require.Equal(t, 1, h.runner.SubmitCount(parent.ID))

	h.schemaS.ForceMismatch(parent.ID, true)

	out2 := awaitOutcome(t, pc.Materialize())
	require.Equal(t, Materialized, out2.Kind)
	require.Equal(t, 2, h.runner.SubmitCount(parent.ID))
}

// S6: one dependency fails and one has no data; the parent reports
// NoDataAvailable and clears its incomplete/withErrors flags, reverting
// to Initial rather than carrying them forward.
func TestOneDepFailsOneNoData(t *testing.T) {
	h := newHarness(t)
	failing := leafView("dep_fails")
	cfg := testConfig()
	cfg.MaxRetries = 0
	failingCoord := New(failing, h.runner, h.runner, h.schemaS, h.resolver, cfg)
	h.resolver.add(failingCoord)
	failingCoord.Start(h.sc)
	h.runner.FailNext(failing.ID, 10)

	noData := noOpView("dep_empty")
	h.spawn(noData)

	parent := dependentView("rollup", failing, noData)
	pc := h.spawn(parent)

	out := awaitOutcome(t, pc.Materialize())
	require.Equal(t, NoDataAvailable, out.Kind)
	require.False(t, out.Incomplete)
	require.False(t, out.WithErrors)

	status, err := pc.GetStatus(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Initial", status.State)
}

// S7: NewDataAvailable for a recorded dependency reloads a materialized
// view, forcing one retransformation.
func TestNewDataAvailableTriggersReload(t *testing.T) {
	h := newHarness(t)
	a := leafView("dep_a")
	parent := dependentView("rollup", a)

	ac := h.spawn(a)
	pc := h.spawn(parent)

	out1 := awaitOutcome(t, pc.Materialize())
	require.Equal(t, Materialized, out1.Kind)
	require.Equal(t, 1, h.runner.SubmitCount(parent.ID))

	pc.NotifyNewData(ac.v.ID)

	require.Eventually(t, func() bool {
		return h.runner.SubmitCount(parent.ID) == 2
	}, 5*time.Second, 10*time.Millisecond, "reload must trigger exactly one retransformation")
}

// Invariant: every Materialize request receives exactly one reply, even
// when several requesters queue up while a transformation is pending.
func TestEveryWaiterAnsweredExactlyOnce(t *testing.T) {
	h := newHarness(t)
	v := leafView("orders_clean")
	h.runner.FailNext(v.ID, 1)
	c := h.spawn(v)

	chans := make([]<-chan Outcome, 5)
	for i := range chans {
		chans[i] = c.Materialize()
	}
	for _, ch := range chans {
		out := awaitOutcome(t, ch)
		require.Equal(t, Materialized, out.Kind)
	}
}

// Invariant: Invalidate is a no-op outside Materialized/Failed.
func TestInvalidateIgnoredMidRound(t *testing.T) {
	h := newHarness(t)
	v := leafView("orders_clean")
	h.runner.FailNext(v.ID, 1000) // never succeeds within this test
	cfg := testConfig()
	cfg.MaxRetries = 10
	c := New(v, h.runner, h.runner, h.schemaS, h.resolver, cfg)
	h.resolver.add(c)
	c.Start(h.sc)

	_ = c.Materialize()
	time.Sleep(20 * time.Millisecond)
	c.Invalidate()

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotEqual(t, "Initial", status.State)
}

// Invariant: Invalidate from Materialized forgets recorded freshness,
// so the next Materialize retransforms from scratch.
func TestInvalidateFromMaterializedForcesRetransform(t *testing.T) {
	h := newHarness(t)
	v := leafView("orders_clean")
	c := h.spawn(v)

	out1 := awaitOutcome(t, c.Materialize())
	require.Equal(t, Materialized, out1.Kind)

	c.Invalidate()
	require.Eventually(t, func() bool {
		s, err := c.GetStatus(context.Background())
		return err == nil && s.State == "Initial"
	}, time.Second, 5*time.Millisecond)

	out2 := awaitOutcome(t, c.Materialize())
	require.Equal(t, Materialized, out2.Kind)
	require.Equal(t, 2, h.runner.SubmitCount(v.ID))
}

// Invariant: backoff delays grow geometrically with the retry count.
func TestBackoffGrowth(t *testing.T) {
	require.Equal(t, time.Duration(0), clock.Backoff(0))
	require.Equal(t, 2*time.Second, clock.Backoff(1))
	require.Equal(t, 4*time.Second, clock.Backoff(2))
	require.Equal(t, 8*time.Second, clock.Backoff(3))
}
