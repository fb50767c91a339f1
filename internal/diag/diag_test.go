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

package diag

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeReporter struct {
	status any
	err    error
}

func (f fakeReporter) DiagStatus(context.Context) (any, error) {
	return f.status, f.err
}

func TestRegisterAndSnapshot(t *testing.T) {
	d, cleanup := New(context.Background())
	defer cleanup()

	require.NoError(t, d.Register("a", fakeReporter{status: "ok"}))
	require.NoError(t, d.Register("b", fakeReporter{err: errors.New("boom")}))

	snap := d.Snapshot(context.Background())
	require.Equal(t, "ok", snap["a"])
	require.Contains(t, snap, "b")
}

func TestDuplicateRegisterRejected(t *testing.T) {
	d, cleanup := New(context.Background())
	defer cleanup()

	require.NoError(t, d.Register("a", fakeReporter{status: "ok"}))
	require.Error(t, d.Register("a", fakeReporter{status: "ok"}))
}

func TestUnregisterRemovesFromSnapshot(t *testing.T) {
	d, cleanup := New(context.Background())
	defer cleanup()

	require.NoError(t, d.Register("a", fakeReporter{status: "ok"}))
	d.Unregister("a")
	require.NotContains(t, d.Snapshot(context.Background()), "a")
}
