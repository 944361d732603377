// Copyright (C) 2026 Storyloom AI (dev@storyloom.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Op classifies a store mutation in a change event.
type Op string

const (
	OpAddNode    Op = "add_node"
	OpRemoveNode Op = "remove_node"
	OpUpdateNode Op = "update_node"
	OpAddEdge    Op = "add_edge"
	OpRemoveEdge Op = "remove_edge"
	OpReplace    Op = "replace"
)

// Event describes one store mutation.
//
// Description:
//
//	Events are node-id-scoped: NodeIDs lists every node the mutation
//	touched (for an edge mutation, its endpoints), so a consumer can
//	subscribe to just the ids it depends on and recompute only when one
//	of them changes. Seq equals the store version after the mutation;
//	consecutive events on one subscription have increasing Seq.
type Event struct {
	Seq     uint64   `json:"seq"`
	Op      Op       `json:"op"`
	NodeIDs []string `json:"nodeIds,omitempty"`
	EdgeIDs []string `json:"edgeIds,omitempty"`
}

// subscriptionBuffer is how many events a slow consumer may fall behind
// before deliveries to it are dropped.
const subscriptionBuffer = 64

// Subscription is one consumer's view of the store's change feed.
//
// Description:
//
//	Delivery is non-blocking: the store never stalls a mutation waiting
//	on a consumer. A subscription that falls more than subscriptionBuffer
//	events behind loses the overflow; Dropped reports how many. Consumers
//	that care re-read the store, which always has the current truth.
//
// Thread Safety: safe for concurrent use.
type Subscription struct {
	id      string
	ids     map[string]bool // nil means every event
	ch      chan Event
	dropped atomic.Uint64
	store   *Store
}

// Subscribe registers a consumer for change events.
//
// Description:
//
//	With no arguments the subscription receives every event. With node
//	ids, it receives only events touching at least one of them. The
//	usual case is a renderer subscribing to its own node id to learn
//	when newly connected or newly produced upstream data makes a
//	re-resolve worthwhile. OpReplace events are delivered to everyone:
//	after a wholesale swap any id may have changed.
func (s *Store) Subscribe(ids ...string) *Subscription {
	sub := &Subscription{
		id:    uuid.NewString(),
		ch:    make(chan Event, subscriptionBuffer),
		store: s,
	}
	if len(ids) > 0 {
		sub.ids = make(map[string]bool, len(ids))
		for _, id := range ids {
			sub.ids[id] = true
		}
	}
	s.mu.Lock()
	s.subs[sub.id] = sub
	s.mu.Unlock()
	return sub
}

// C returns the event channel. It is closed by Close.
func (sub *Subscription) C() <-chan Event {
	return sub.ch
}

// Dropped returns how many events were discarded because the consumer
// fell behind.
func (sub *Subscription) Dropped() uint64 {
	return sub.dropped.Load()
}

// Close unregisters the subscription and closes its channel. Safe to
// call once; events already buffered remain readable until drained.
func (sub *Subscription) Close() {
	sub.store.mu.Lock()
	_, registered := sub.store.subs[sub.id]
	delete(sub.store.subs, sub.id)
	sub.store.mu.Unlock()
	if registered {
		close(sub.ch)
	}
}

// matches reports whether the subscription wants this event.
func (sub *Subscription) matches(ev Event) bool {
	if sub.ids == nil || ev.Op == OpReplace {
		return true
	}
	for _, id := range ev.NodeIDs {
		if sub.ids[id] {
			return true
		}
	}
	return false
}

// publishLocked fans the event out to matching subscriptions without
// blocking. Caller holds the write lock, which also serializes publishes
// so every subscription observes events in mutation order.
func (s *Store) publishLocked(ev Event) {
	for _, sub := range s.subs {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}
