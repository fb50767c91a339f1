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
	"github.com/warehouse-sched/viewsched/internal/action"
	"github.com/warehouse-sched/viewsched/internal/clock"
	"github.com/warehouse-sched/viewsched/internal/ident"
)

// OutcomeKind discriminates the three terminal replies a coordinator
// ever sends to a Materialize requester, plus the FatalError variant
// that can only be emitted from the Failed state.
type OutcomeKind int

// The possible terminal outcomes of a Materialize request.
const (
	Materialized OutcomeKind = iota
	NoDataAvailable
	Failed
	FatalError
)

// String implements fmt.Stringer, used for metric labels.
func (k OutcomeKind) String() string {
	switch k {
	case Materialized:
		return "Materialized"
	case NoDataAvailable:
		return "NoDataAvailable"
	case Failed:
		return "Failed"
	case FatalError:
		return "FatalError"
	default:
		return "Unknown"
	}
}

// Outcome is delivered to every Materialize requester exactly once.
type Outcome struct {
	Kind       OutcomeKind
	Incomplete bool
	Timestamp  clock.Timestamp
	WithErrors bool
	Reason     string // only set for FatalError
}

// replyTarget abstracts over "reply to an external requester" and
// "reply to the parent coordinator of a dependency round", so that the
// Waiting state's dependencyAnswered logic can treat both uniformly.
type replyTarget interface {
	deliver(self ident.ViewID, o Outcome)
}

// externalReply delivers an Outcome to a client's result channel. The
// channel is buffered by 1 so delivery never blocks the coordinator
// goroutine.
type externalReply struct {
	ch chan<- Outcome
}

func (r externalReply) deliver(_ ident.ViewID, o Outcome) {
	r.ch <- o
}

// depReply translates an Outcome from a dependency coordinator into an
// internal depAnswerMsg posted to the parent coordinator's own mailbox,
// so that a dependency's reply is processed like any other message:
// serialized, single-consumer, no shared state between coordinators.
type depReply struct {
	parent *Coordinator
}

func (r depReply) deliver(self ident.ViewID, o Outcome) {
	r.parent.post(depAnswerMsg{dep: self, outcome: o})
}

// StatusReport answers GetStatus; it never changes coordinator state.
type StatusReport struct {
	View  ident.ViewID
	State string
}

// --- mailbox message types ---
//
// Every message a coordinator can receive is represented here as a
// distinct Go type; Coordinator.handle dispatches on them with a type
// switch. Concrete types rather than a single tagged struct keep each
// message's payload self-describing at the call site.

type materializeMsg struct {
	reply replyTarget
}

type invalidateMsg struct{}

type newDataAvailableMsg struct {
	view ident.ViewID
}

type getStatusMsg struct {
	reply chan<- StatusReport
}

type actionResultMsg struct {
	result action.Result
}

type retryMsg struct{}

// depAnswerMsg carries the reply from a dependency coordinator: one of
// ViewMaterialized, NoDataAvailable, or Failed, as recorded in outcome.
type depAnswerMsg struct {
	dep     ident.ViewID
	outcome Outcome
}
