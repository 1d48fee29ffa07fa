// Copyright 2023 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package shape

import "sync"

// trackerKey identifies a tracked instance by entity type and key value.
type trackerKey struct {
	entity string
	key    any
}

// Tracker is an identity map over materialized entity instances. Shaping an
// item whose key matches a tracked instance returns that instance instead
// of a fresh one, so a row observed twice in one session is the same Go
// value. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	entities map[trackerKey]any
}

// NewTracker returns an empty identity map.
func NewTracker() *Tracker {
	return &Tracker{entities: map[trackerKey]any{}}
}

// Len reports the number of tracked instances.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entities)
}

// Clear drops all tracked instances.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entities = map[trackerKey]any{}
}

func (t *Tracker) lookup(entity string, key any) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	instance, ok := t.entities[trackerKey{entity: entity, key: key}]
	return instance, ok
}

func (t *Tracker) register(entity string, key any, instance any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entities[trackerKey{entity: entity, key: key}] = instance
}
