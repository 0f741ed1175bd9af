// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) Mesh Authors. All rights reserved.

// Package queue provides an unbounded, FIFO, multi-producer
// single-consumer channel substitute. It backs the ready-sessions and
// ping sink channels described in spec §5: producers never block on
// Push, and Pop blocks only until an item is available or the queue is
// closed. gammazero/deque gives us an amortized O(1) growable ring
// buffer instead of a doubly-linked list, the same tradeoff the
// ethereum-go-ethereum dependency graph already pulls in for similar
// work-queue uses.
package queue

import (
	"sync"

	"github.com/gammazero/deque"
)

// Unbounded is a generic FIFO queue of unbounded capacity, safe for any
// number of concurrent producers and a single consumer calling Pop.
type Unbounded[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	dq     deque.Deque[T]
	closed bool
}

// New returns an empty, open queue.
func New[T any]() *Unbounded[T] {
	q := &Unbounded[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends v to the tail of the queue and wakes a blocked Pop, if
// any. Push never blocks. Pushing to a closed queue is a silent no-op,
// matching a closed Go channel send being otherwise disallowed but
// needed here because multiple producers may race with Close.
func (q *Unbounded[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.dq.PushBack(v)
	q.cond.Signal()
}

// Pop removes and returns the head of the queue, blocking until an item
// is available or the queue is closed. ok is false only once the queue
// is closed and drained.
func (q *Unbounded[T]) Pop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.dq.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.dq.Len() == 0 {
		return v, false
	}
	return q.dq.PopFront(), true
}

// Close marks the queue closed, waking any blocked Pop. Items already
// queued are still delivered; after they drain, Pop returns ok=false.
func (q *Unbounded[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len reports the number of items currently queued.
func (q *Unbounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dq.Len()
}
