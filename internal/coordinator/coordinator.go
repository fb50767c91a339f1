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

// Package coordinator implements the per-view state machine that drives
// a view from its dependencies' freshness through transformation to a
// materialized (or failed) terminal state. Each Coordinator owns a
// single goroutine reading a private mailbox; state is never touched
// from any other goroutine, so the FSM logic below needs no locking of
// its own.
package coordinator

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
	"github.com/warehouse-sched/viewsched/internal/notify"
	"github.com/warehouse-sched/viewsched/internal/schema"
	"github.com/warehouse-sched/viewsched/internal/stopper"
	"github.com/warehouse-sched/viewsched/internal/view"
)

// state names the six points in a Coordinator's lifecycle.
type state int

const (
	stateInitial state = iota
	stateWaiting
	stateTransforming
	stateRetrying
	stateMaterialized
	stateFailed
)

func (s state) String() string {
	switch s {
	case stateInitial:
		return "Initial"
	case stateWaiting:
		return "Waiting"
	case stateTransforming:
		return "Transforming"
	case stateRetrying:
		return "Retrying"
	case stateMaterialized:
		return "Materialized"
	case stateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Resolver looks up the coordinator that owns a dependency view,
// resolving identity to address on demand rather than letting
// coordinators hold direct pointers to one another. A Coordinator never
// imports the registry that implements this; the registry imports
// Coordinator instead, so there is no import cycle.
type Resolver interface {
	Coordinator(ctx context.Context, id ident.ViewID) (*Coordinator, error)
}

// Coordinator drives a single view through its materialization
// lifecycle. Construct one with New and start its goroutine with Start.
type Coordinator struct {
	v         *view.View
	runner    action.Runner
	fs        action.Filesystem
	schemaSvc schema.Service
	resolver  Resolver
	cfg       Config
	metrics   *metrics

	mailbox chan any
	sc      *stopper.Context

	// The fields below are owned exclusively by run(); every access
	// happens on the single coordinator goroutine.
	fsm       state
	retries   int // number of retries consumed so far in the current round
	waiters   []replyTarget
	lastTsVar *notify.Var[clock.Timestamp]

	pendingDeps   map[ident.ViewID]bool
	depsFreshness clock.Timestamp
	anyDepHadData bool

	lastTransformationTs clock.Timestamp
	incomplete           bool
	withErrors           bool
}

// New constructs a Coordinator for v. Call Start to begin processing.
func New(
	v *view.View,
	runner action.Runner,
	fs action.Filesystem,
	schemaSvc schema.Service,
	resolver Resolver,
	cfg Config,
) *Coordinator {
	return &Coordinator{
		v:         v,
		runner:    runner,
		fs:        fs,
		schemaSvc: schemaSvc,
		resolver:  resolver,
		cfg:       cfg,
		metrics:   defaultMetrics,
		mailbox:   make(chan any, 16),
		fsm:       stateInitial,
		lastTsVar: &notify.Var[clock.Timestamp]{},
	}
}

// View returns the view this coordinator materializes.
func (c *Coordinator) View() *view.View { return c.v }

// Start launches the coordinator's processing goroutine under sc. The
// coordinator stops when sc stops.
func (c *Coordinator) Start(sc *stopper.Context) {
	c.sc = sc
	sc.Go(func() error {
		c.run()
		return nil
	})
}

// post enqueues msg on the coordinator's mailbox without blocking the
// caller beyond mailbox capacity; the mailbox is sized generously since
// every sender here is either this process's own goroutines or a
// bounded number of dependency coordinators.
func (c *Coordinator) post(msg any) {
	select {
	case c.mailbox <- msg:
	case <-c.sc.Stopping():
	}
}

// Materialize requests that v be brought up to date, returning a
// channel that receives exactly one Outcome.
func (c *Coordinator) Materialize() <-chan Outcome {
	ch := make(chan Outcome, 1)
	c.requestMaterialize(externalReply{ch: ch})
	return ch
}

// requestMaterialize enqueues a materialize request whose answer is
// delivered through reply, which may be an externalReply (a client
// waiting on a channel) or a depReply (a parent coordinator waiting on
// this view as a dependency).
func (c *Coordinator) requestMaterialize(reply replyTarget) {
	c.post(materializeMsg{reply: reply})
}

// Invalidate resets a Materialized or Failed coordinator back to
// Initial, forgetting its recorded freshness. It is a no-op in any
// other state.
func (c *Coordinator) Invalidate() {
	c.post(invalidateMsg{})
}

// NotifyNewData informs the coordinator that v has new data available,
// in case v is one of its dependencies.
func (c *Coordinator) NotifyNewData(v ident.ViewID) {
	c.post(newDataAvailableMsg{view: v})
}

// GetStatus returns a snapshot of the coordinator's current state. It
// never mutates state.
func (c *Coordinator) GetStatus(ctx context.Context) (StatusReport, error) {
	ch := make(chan StatusReport, 1)
	c.post(getStatusMsg{reply: ch})
	select {
	case r := <-ch:
		return r, nil
	case <-ctx.Done():
		return StatusReport{}, ctx.Err()
	case <-c.sc.Stopping():
		return StatusReport{}, errors.New("coordinator stopped")
	}
}

// DiagStatus implements diag.StatusReporter.
func (c *Coordinator) DiagStatus(ctx context.Context) (any, error) {
	return c.GetStatus(ctx)
}

func (c *Coordinator) run() {
	for {
		select {
		case msg := <-c.mailbox:
			c.handle(msg)
		case <-c.sc.Stopping():
			return
		}
	}
}

func (c *Coordinator) handle(msg any) {
	// GetStatus never depends on or mutates FSM state.
	if gs, ok := msg.(getStatusMsg); ok {
		gs.reply <- StatusReport{View: c.v.ID, State: c.fsm.String()}
		return
	}

	switch m := msg.(type) {
	case materializeMsg:
		c.onMaterialize(m)
	case invalidateMsg:
		c.onInvalidate()
	case newDataAvailableMsg:
		c.onNewDataAvailable(m)
	case actionResultMsg:
		c.onActionResult(m)
	case retryMsg:
		c.onRetry()
	case depAnswerMsg:
		c.onDepAnswer(m)
	default:
		log.WithField("view", c.v.Name).Warnf("coordinator: unhandled message %T", msg)
	}
}

func (c *Coordinator) onMaterialize(m materializeMsg) {
	switch c.fsm {
	case stateInitial:
		c.classifyAndStart(m.reply)
	case stateWaiting, stateTransforming, stateRetrying:
		c.waiters = append(c.waiters, m.reply)
		c.metrics.activeWaiters.WithLabelValues(c.v.Name).Set(float64(len(c.waiters)))
	case stateMaterialized:
		m.reply.deliver(c.v.ID, Outcome{
			Kind:       Materialized,
			Incomplete: c.incomplete,
			Timestamp:  c.lastTransformationTs,
			WithErrors: c.withErrors,
		})
	case stateFailed:
		m.reply.deliver(c.v.ID, Outcome{Kind: Failed})
	}
}

// classifyAndStart implements the Initial state's three-way branch: a
// NoOp view is materialized once its success marker is observed, a leaf
// compute/filesystem view transforms immediately with no dependencies
// to wait on, and any other view enters Waiting to poll its
// dependencies first.
func (c *Coordinator) classifyAndStart(reply replyTarget) {
	if c.v.Transformation.Kind == view.NoOp {
		fsCtx, fsCancel := context.WithTimeout(c.sc, c.cfg.FileActionTimeout)
		exists, err := c.fs.Exists(fsCtx, c.v.FullPath+"/"+action.SuccessMarkerName)
		fsCancel()
		if err != nil || !exists {
			// Conservative: cannot confirm the marker, so there is
			// nothing to report yet; remain Initial and let the next
			// Materialize retry the check.
			reply.deliver(c.v.ID, Outcome{Kind: NoDataAvailable})
			return
		}

		schemaCtx, schemaCancel := context.WithTimeout(c.sc, c.cfg.SchemaActionTimeout)
		ts, err := c.getOrLogTs(schemaCtx)
		schemaCancel()
		if err != nil {
			reply.deliver(c.v.ID, Outcome{Kind: NoDataAvailable})
			return
		}

		c.fsm = stateMaterialized
		reply.deliver(c.v.ID, Outcome{Kind: Materialized, Timestamp: ts})
		return
	}

	c.waiters = append(c.waiters, reply)

	if c.v.IsLeaf() {
		c.pendingDeps = map[ident.ViewID]bool{}
		c.transform(0)
		return
	}

	c.fsm = stateWaiting
	c.beginWaitingRound()
}

// getOrLogTs returns the coordinator's cached transformation timestamp
// if one is already known, otherwise it asks the schema service for the
// last recorded value and, if none is on record either, logs one now
// and caches the result. This lets a NoOp view whose marker was placed
// by an external writer still contribute a transformation timestamp on
// a cold coordinator, as any other view kind records one in
// onActionResult after a successful transformation.
func (c *Coordinator) getOrLogTs(ctx context.Context) (clock.Timestamp, error) {
	if c.lastTransformationTs != clock.Zero {
		return c.lastTransformationTs, nil
	}

	ts, err := c.schemaSvc.GetTransformationTimestamp(ctx, c.v.ID)
	if err != nil {
		return clock.Zero, err
	}
	if ts == clock.Zero {
		if ts, err = c.schemaSvc.LogTransformationTimestamp(ctx, c.v.ID); err != nil {
			return clock.Zero, err
		}
	}

	c.lastTransformationTs = ts
	return ts, nil
}

// beginWaitingRound sends a Materialize to every dependency and
// records them as pending; their replies arrive as depAnswerMsg values.
func (c *Coordinator) beginWaitingRound() {
	c.pendingDeps = make(map[ident.ViewID]bool, len(c.v.Dependencies))
	c.depsFreshness = clock.Zero
	c.anyDepHadData = false

	for _, dep := range c.v.Dependencies {
		c.pendingDeps[dep] = true
		depID := dep

		// Resolve and dispatch the request. The lookup itself is just a
		// registry get-or-create and is bounded tightly; it says
		// nothing about how long the dependency's own materialization
		// round will take.
		c.sc.Go(func() error {
			ctx, cancel := context.WithTimeout(c.sc, c.cfg.DependencyLookupTimeout)
			defer cancel()
			coord, err := c.resolver.Coordinator(ctx, depID)
			if err != nil {
				c.post(depAnswerMsg{dep: depID, outcome: Outcome{Kind: Failed}})
				return nil
			}
			coord.requestMaterialize(depReply{parent: c})
			return nil
		})

		// A dependency that never answers at all (stuck coordinator,
		// resolver outage) must not stall this round forever; treat a
		// timeout as an explicit Failed answer. This ceiling bounds the
		// dependency's whole materialization round, including its own
		// retries, so it is deliberately much larger than
		// DependencyLookupTimeout. onDepAnswer ignores whichever of the
		// two answers for depID arrives second.
		c.sc.Go(func() error {
			timer := time.NewTimer(c.cfg.DependencyTimeout)
			defer timer.Stop()
			select {
			case <-timer.C:
				c.post(depAnswerMsg{dep: depID, outcome: Outcome{Kind: Failed}})
			case <-c.sc.Stopping():
			}
			return nil
		})
	}
}

func (c *Coordinator) onDepAnswer(m depAnswerMsg) {
	if c.fsm == stateFailed {
		c.replyFatal()
		return
	}
	if c.fsm != stateWaiting {
		return
	}
	if !c.pendingDeps[m.dep] {
		return
	}
	delete(c.pendingDeps, m.dep)

	switch m.outcome.Kind {
	case Materialized:
		c.anyDepHadData = true
		c.depsFreshness = clock.Max(c.depsFreshness, m.outcome.Timestamp)
		if m.outcome.Incomplete {
			c.incomplete = true
		}
		if m.outcome.WithErrors {
			c.withErrors = true
		}
	case NoDataAvailable:
		// This dependency has nothing yet; it contributes no
		// freshness and is not an error on its own, but it leaves
		// this round incomplete.
		c.incomplete = true
	case Failed, FatalError:
		c.incomplete = true
		c.withErrors = true
	}

	if len(c.pendingDeps) > 0 {
		return
	}
	c.dependenciesAnswered()
}

// dependenciesAnswered runs once every dependency of the current round
// has replied, deciding whether to transform, materialize immediately,
// or give up and report no data.
func (c *Coordinator) dependenciesAnswered() {
	if !c.anyDepHadData {
		// No dependency had data to offer this round: there is nothing
		// to compute from, so this round's partial-failure bookkeeping
		// is discarded rather than carried forward.
		c.incomplete = false
		c.withErrors = false
		c.depsFreshness = clock.Zero
		c.fsm = stateInitial
		c.replyAll(Outcome{Kind: NoDataAvailable})
		return
	}

	ctx, cancel := context.WithTimeout(c.sc, c.cfg.SchemaActionTimeout)
	defer cancel()
	status, err := c.schemaSvc.CheckViewVersion(ctx, c.v)
	if err != nil {
		status = schema.SchemaActionFailure
	}

	if status == schema.ViewVersionOk && c.lastTransformationTs != clock.Zero &&
		c.depsFreshness <= c.lastTransformationTs {
		c.fsm = stateMaterialized
		c.replyAll(Outcome{
			Kind:       Materialized,
			Incomplete: c.incomplete,
			Timestamp:  c.lastTransformationTs,
			WithErrors: c.withErrors,
		})
		return
	}

	c.transform(0)
}

// transform begins attempt number r (0 is the initial attempt; r>=1 is
// the r-th retried attempt). Preconditions (partition registration,
// version recording, clearing stale output) are synchronous and their
// failure is treated the same as an ActionFailure from the runner
// itself: conservative, and subject to the same backoff.
func (c *Coordinator) transform(r int) {
	c.fsm = stateTransforming
	c.retries = r

	ctx, cancel := context.WithTimeout(c.sc, c.cfg.SchemaActionTimeout)
	defer cancel()
	if err := c.schemaSvc.AddPartition(ctx, c.v); err != nil {
		c.scheduleRetry(r)
		return
	}
	if err := c.schemaSvc.SetViewVersion(ctx, c.v); err != nil {
		c.scheduleRetry(r)
		return
	}

	if c.v.Transformation.Kind != view.FilesystemTransformation {
		delCtx, delCancel := context.WithTimeout(c.sc, c.cfg.FileActionTimeout)
		err := c.runner.Delete(delCtx, c.v.FullPath, true)
		delCancel()
		if err != nil {
			c.scheduleRetry(r)
			return
		}
	}

	start := time.Now()
	resultCh := c.runner.Submit(c.sc, c.v)
	c.sc.Go(func() error {
		select {
		case res := <-resultCh:
			c.metrics.transformSecs.WithLabelValues(c.v.Name).Observe(time.Since(start).Seconds())
			c.post(actionResultMsg{result: res})
		case <-c.sc.Stopping():
		}
		return nil
	})
}

func (c *Coordinator) onActionResult(m actionResultMsg) {
	if c.fsm == stateFailed {
		c.replyFatal()
		return
	}
	if c.fsm != stateTransforming {
		return
	}
	if !m.result.Succeeded() {
		c.scheduleRetry(c.retries)
		return
	}

	ctx, cancel := context.WithTimeout(c.sc, c.cfg.SchemaActionTimeout)
	ts, err := c.schemaSvc.LogTransformationTimestamp(ctx, c.v.ID)
	cancel()
	if err != nil {
		c.scheduleRetry(c.retries)
		return
	}

	touchCtx, touchCancel := context.WithTimeout(c.sc, c.cfg.FileActionTimeout)
	err = c.runner.Touch(touchCtx, c.v.FullPath+"/"+action.SuccessMarkerName)
	touchCancel()
	if err != nil {
		c.scheduleRetry(c.retries)
		return
	}

	c.lastTransformationTs = ts
	c.lastTsVar.Set(ts)
	c.fsm = stateMaterialized
	c.metrics.outcomes.WithLabelValues(c.v.Name, Materialized.String()).Inc()
	c.replyAll(Outcome{
		Kind:       Materialized,
		Incomplete: c.incomplete,
		Timestamp:  ts,
		WithErrors: c.withErrors,
	})
}

// scheduleRetry schedules a self-delivered Retry after the backoff
// interval for the retry about to be attempted (r+1) and transitions to
// Retrying(r), where r is the number of retries already consumed.
func (c *Coordinator) scheduleRetry(r int) {
	c.retries = r
	c.fsm = stateRetrying
	c.metrics.retries.WithLabelValues(c.v.Name).Inc()

	delay := c.cfg.backoff(r + 1)
	timer := time.NewTimer(delay)
	c.sc.Go(func() error {
		select {
		case <-timer.C:
			c.post(retryMsg{})
		case <-c.sc.Stopping():
			timer.Stop()
		}
		return nil
	})
}

func (c *Coordinator) onRetry() {
	if c.fsm == stateFailed {
		c.replyFatal()
		return
	}
	if c.fsm != stateRetrying {
		return
	}
	if c.retries <= c.cfg.MaxRetries {
		c.transform(c.retries + 1)
		return
	}
	c.fsm = stateFailed
	c.metrics.outcomes.WithLabelValues(c.v.Name, Failed.String()).Inc()
	c.replyAll(Outcome{Kind: Failed})
}

func (c *Coordinator) onInvalidate() {
	if c.fsm != stateMaterialized && c.fsm != stateFailed {
		return
	}
	c.fsm = stateInitial
	c.lastTransformationTs = clock.Zero
	c.incomplete = false
	c.withErrors = false
	c.depsFreshness = clock.Zero
	c.anyDepHadData = false
}

func (c *Coordinator) onNewDataAvailable(m newDataAvailableMsg) {
	if c.fsm != stateMaterialized && c.fsm != stateFailed {
		// Waiting, Transforming, and Retrying are already mid-round;
		// the new data will be picked up the next time this
		// coordinator starts a round of its own.
		return
	}
	if !c.isDependency(m.view) {
		return
	}
	c.reload()
}

func (c *Coordinator) isDependency(id ident.ViewID) bool {
	for _, d := range c.v.Dependencies {
		if d == id {
			return true
		}
	}
	return false
}

// reload forces a retransformation regardless of recorded freshness: it
// deletes the success marker (for NoOp/leaf bookkeeping consistency)
// and starts a transform charged as one retry already used, per the
// resolved semantics for reload's interaction with the retry budget.
func (c *Coordinator) reload() {
	ctx, cancel := context.WithTimeout(c.sc, c.cfg.FileActionTimeout)
	_ = c.runner.Delete(ctx, c.v.FullPath+"/"+action.SuccessMarkerName, false)
	cancel()
	c.transform(1)
}

// replyFatal answers every registered waiter with FatalError when an
// action result, retry timer, or dependency answer reaches a
// coordinator in the terminal Failed state. A coordinator enters Failed
// only through replyAll, which empties its waiters, and a Materialize
// in Failed is answered with Failed directly, so the waiter list is
// empty here and the late message itself receives no reply.
func (c *Coordinator) replyFatal() {
	c.replyAll(Outcome{Kind: FatalError, Reason: "coordinator is in a terminal Failed state"})
}

func (c *Coordinator) replyAll(o Outcome) {
	for _, w := range c.waiters {
		w.deliver(c.v.ID, o)
	}
	c.waiters = nil
	c.metrics.activeWaiters.WithLabelValues(c.v.Name).Set(0)
}
