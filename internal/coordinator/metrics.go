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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics collects the prometheus instrumentation shared by every
// Coordinator in a process, following the promauto registration style
// used for per-stage counters elsewhere in this codebase.
type metrics struct {
	outcomes      *prometheus.CounterVec
	retries       *prometheus.CounterVec
	transformSecs *prometheus.HistogramVec
	activeWaiters *prometheus.GaugeVec
}

var defaultMetrics = newMetrics()

func newMetrics() *metrics {
	return &metrics{
		outcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "viewsched_materialize_outcomes_total",
			Help: "Count of terminal Materialize outcomes, by view and outcome kind.",
		}, []string{"view", "outcome"}),
		retries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "viewsched_retries_total",
			Help: "Count of retry rounds scheduled, by view.",
		}, []string{"view"}),
		transformSecs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "viewsched_transform_duration_seconds",
			Help:    "Wall-clock duration of a single transform attempt, by view.",
			Buckets: prometheus.DefBuckets,
		}, []string{"view"}),
		activeWaiters: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "viewsched_active_waiters",
			Help: "Number of Materialize requesters currently queued on a coordinator.",
		}, []string{"view"}),
	}
}
