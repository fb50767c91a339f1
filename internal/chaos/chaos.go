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

// Package chaos wraps an action.Runner or schema.Service with a
// decorator that randomly injects failures, so that the
// conservative-failure and retry/backoff paths can be exercised
// without depending on real I/O flakiness. internal/wiring applies
// these wrappers when the chaosRunnerProb or chaosSchemaProb flags are
// above zero; the coordinator tests do not use them.
package chaos

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/schema"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// ErrChaos is the error injected by the wrappers in this package.
var ErrChaos = errors.New("chaos")

func doChaos(msg string) error {
	return errors.WithMessage(ErrChaos, msg)
}

// WithRunnerChaos returns a wrapper around delegate that fails each
// operation with probability prob. If prob <= 0, delegate is returned
// unchanged.
func WithRunnerChaos(delegate action.Runner, prob float32) action.Runner {
	if prob <= 0 {
		return delegate
	}
	return &chaosRunner{delegate: delegate, prob: prob}
}

type chaosRunner struct {
	delegate action.Runner
	prob     float32
}

var _ action.Runner = (*chaosRunner)(nil)

func (r *chaosRunner) Submit(ctx context.Context, v *view.View) <-chan action.Result {
	ch := make(chan action.Result, 1)
	if rand.Float32() < r.prob {
		ch <- action.Result{Err: doChaos("Submit")}
		return ch
	}
	return r.delegate.Submit(ctx, v)
}

func (r *chaosRunner) Touch(ctx context.Context, path string) error {
	if rand.Float32() < r.prob {
		return doChaos("Touch")
	}
	return r.delegate.Touch(ctx, path)
}

func (r *chaosRunner) Delete(ctx context.Context, path string, recursive bool) error {
	if rand.Float32() < r.prob {
		return doChaos("Delete")
	}
	return r.delegate.Delete(ctx, path, recursive)
}

// WithSchemaChaos returns a wrapper around delegate that fails each
// operation with probability prob. If prob <= 0, delegate is returned
// unchanged.
func WithSchemaChaos(delegate schema.Service, prob float32) schema.Service {
	if prob <= 0 {
		return delegate
	}
	return &chaosSchema{delegate: delegate, prob: prob}
}

type chaosSchema struct {
	delegate schema.Service
	prob     float32
}

var _ schema.Service = (*chaosSchema)(nil)

func (s *chaosSchema) AddPartition(ctx context.Context, v *view.View) error {
	if rand.Float32() < s.prob {
		return doChaos("AddPartition")
	}
	return s.delegate.AddPartition(ctx, v)
}

func (s *chaosSchema) SetViewVersion(ctx context.Context, v *view.View) error {
	if rand.Float32() < s.prob {
		return doChaos("SetViewVersion")
	}
	return s.delegate.SetViewVersion(ctx, v)
}

func (s *chaosSchema) CheckViewVersion(ctx context.Context, v *view.View) (schema.VersionStatus, error) {
	if rand.Float32() < s.prob {
		return schema.SchemaActionFailure, doChaos("CheckViewVersion")
	}
	return s.delegate.CheckViewVersion(ctx, v)
}

func (s *chaosSchema) LogTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error) {
	if rand.Float32() < s.prob {
		return clock.Zero, doChaos("LogTransformationTimestamp")
	}
	return s.delegate.LogTransformationTimestamp(ctx, id)
}

func (s *chaosSchema) GetTransformationTimestamp(ctx context.Context, id ident.ViewID) (clock.Timestamp, error) {
	if rand.Float32() < s.prob {
		return clock.Zero, doChaos("GetTransformationTimestamp")
	}
	return s.delegate.GetTransformationTimestamp(ctx, id)
}
