// SNAP - Schnorr-Native Agent Protocol
// Copyright (C) 2026 snap-protocol
//
// This file is part of SNAP.
//
// SNAP is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SNAP is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SNAP. If not, see <https://www.gnu.org/licenses/>.

// Package task models long-running work exchanged over SNAP and provides
// the in-memory reference store.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/snap-protocol/snap-go/core/errcode"
)

// State is a task lifecycle state. The lifecycle is a DAG rooted at
// StateSubmitted; any non-terminal state may move to failed or canceled.
type State string

const (
	StateSubmitted     State = "submitted"
	StateWorking       State = "working"
	StateInputRequired State = "input_required"
	StateAuthRequired  State = "auth_required"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateCanceled      State = "canceled"
	StateRejected      State = "rejected"
)

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCanceled, StateRejected:
		return true
	}
	return false
}

// transitions encodes the forward edges of the lifecycle DAG. failed and
// canceled are reachable from every non-terminal state and are handled in
// CanTransition directly. submitted must pass through working before
// completed or input_required.
var transitions = map[State][]State{
	StateSubmitted:     {StateWorking, StateRejected},
	StateWorking:       {StateInputRequired, StateAuthRequired, StateCompleted},
	StateInputRequired: {StateWorking},
	StateAuthRequired:  {StateWorking},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateFailed || to == StateCanceled {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Status is the current position of a task in its lifecycle.
type Status struct {
	State     State           `json:"state"`
	Timestamp int64           `json:"timestamp"`
	Message   json.RawMessage `json:"message,omitempty"`
}

// Artifact is an output produced by a task.
type Artifact struct {
	ArtifactID string          `json:"artifactId"`
	Name       string          `json:"name,omitempty"`
	Parts      json.RawMessage `json:"parts,omitempty"`
}

// Task is the unit of long-running work referenced by the tasks/* methods.
type Task struct {
	ID        string            `json:"id"`
	ContextID string            `json:"contextId,omitempty"`
	Status    Status            `json:"status"`
	Artifacts []Artifact        `json:"artifacts,omitempty"`
	History   []json.RawMessage `json:"history,omitempty"`
}

// New creates a task in the submitted state.
func New(contextID string) *Task {
	return &Task{
		ID:        uuid.NewString(),
		ContextID: contextID,
		Status: Status{
			State:     StateSubmitted,
			Timestamp: time.Now().Unix(),
		},
	}
}

// UpdateStatus moves the task to a new state, enforcing the lifecycle DAG.
func (t *Task) UpdateStatus(state State, message json.RawMessage) error {
	if !CanTransition(t.Status.State, state) {
		return errcode.Newf(errcode.CodeInvalidMessage,
			"illegal task transition %s -> %s", t.Status.State, state)
	}
	t.Status = Status{
		State:     state,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
	return nil
}

// AddArtifact appends an artifact to the task.
func (t *Task) AddArtifact(a Artifact) {
	t.Artifacts = append(t.Artifacts, a)
}

// AppendHistory records a message in the task's history.
func (t *Task) AppendHistory(msg json.RawMessage) {
	t.History = append(t.History, msg)
}
