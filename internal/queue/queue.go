// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package queue is the Job Queue and Status Map: a newest-first deque of
// pending render.Request values, and a map tracking each in-flight
// request's render.Status under the monotonic forward-progress rule.
//
// The newest-first ordering is deliberate, not an oversight to be
// normalized to FIFO: a worker under load should prioritize the request a
// user is actively waiting on over one submitted minutes ago and possibly
// already abandoned.
package queue

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-set/v3"

	"github.com/hashicorp/nomad-render-worker/internal/render"
)

// Queue is a newest-first deque of pending requests, safe for concurrent
// use by the connection handlers pushing work and the scheduler popping
// it.
type Queue struct {
	mu      sync.Mutex
	pending []*render.Request
}

// NewQueue constructs an empty Queue.
func NewQueue() *Queue {
	return &Queue{}
}

// PushFront enqueues req as the next job the scheduler will pop, ahead of
// every job already queued.
func (q *Queue) PushFront(req *render.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]*render.Request{req}, q.pending...)
}

// PopFront removes and returns the newest queued request, or nil if the
// queue is empty.
func (q *Queue) PopFront() *render.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	req := q.pending[0]
	q.pending = q.pending[1:]
	return req
}

// Len reports the number of jobs currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// ErrDuplicateRequestID is returned by StatusMap.SetIfAbsent when a
// request id is already tracked, so the connection handler can reject the
// second connection rather than silently clobbering the first's status.
type ErrDuplicateRequestID struct {
	RequestID string
}

func (e ErrDuplicateRequestID) Error() string {
	return fmt.Sprintf("request id %q is already in flight", e.RequestID)
}

// ErrBackwardTransition is returned by StatusMap.Transition when a status
// update would move a request backward (or out of a terminal state),
// which the status map defensively rejects rather than accept silently.
type ErrBackwardTransition struct {
	RequestID string
	From, To  render.StatusKind
}

func (e ErrBackwardTransition) Error() string {
	return fmt.Sprintf("request %q: refusing to transition from %s to %s", e.RequestID, e.From, e.To)
}

// StatusMap tracks the current render.Status of every in-flight request,
// enforcing forward-only progress through render.StatusKind's ranking.
type StatusMap struct {
	mu       sync.RWMutex
	statuses map[string]render.Status
	inFlight *set.Set[string]
}

// NewStatusMap constructs an empty StatusMap.
func NewStatusMap() *StatusMap {
	return &StatusMap{
		statuses: make(map[string]render.Status),
		inFlight: set.New[string](0),
	}
}

// SetIfAbsent registers requestID with its initial status if, and only
// if, no request with that id is currently tracked. A duplicate id is
// rejected rather than silently replacing the earlier request's status,
// since the two connections could otherwise race to deliver status
// updates for what the peer believes are two distinct requests.
func (m *StatusMap) SetIfAbsent(requestID string, status render.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inFlight.Contains(requestID) {
		return ErrDuplicateRequestID{RequestID: requestID}
	}
	m.inFlight.Insert(requestID)
	m.statuses[requestID] = status
	return nil
}

// Get returns requestID's current status.
func (m *StatusMap) Get(requestID string) (render.Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[requestID]
	return s, ok
}

// Transition updates requestID's status to next, rejecting any update
// that would move the request to an earlier StatusKind than its current
// one, or away from a terminal state. Failed is reachable from any
// non-terminal state regardless of rank, matching the rule that a
// request can fail at any point up until it finishes.
func (m *StatusMap) Transition(requestID string, next render.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.statuses[requestID]
	if !ok {
		m.inFlight.Insert(requestID)
		m.statuses[requestID] = next
		return nil
	}

	if current.Kind.Terminal() {
		return ErrBackwardTransition{RequestID: requestID, From: current.Kind, To: next.Kind}
	}
	if next.Kind == render.StatusFailed {
		m.statuses[requestID] = next
		return nil
	}
	if next.Kind < current.Kind {
		return ErrBackwardTransition{RequestID: requestID, From: current.Kind, To: next.Kind}
	}

	m.statuses[requestID] = next
	return nil
}

// Remove stops tracking requestID, once its terminal status has been
// delivered to the peer and the connection handler is tearing down.
func (m *StatusMap) Remove(requestID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.statuses, requestID)
	m.inFlight.Remove(requestID)
}
