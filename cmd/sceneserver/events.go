package main

import (
	"sync"

	"chasescene/internal/shared/types"
)

// eventStore keeps the most recent scene events for /v1/events and the
// per-type totals since start.
type eventStore struct {
	mu          sync.RWMutex
	capacity    int
	recent      []types.SceneEvent
	totalIngest int64
	byType      map[string]int64
}

func newEventStore(capacity int) *eventStore {
	if capacity <= 0 {
		capacity = 512
	}
	return &eventStore{
		capacity: capacity,
		recent:   make([]types.SceneEvent, 0, capacity),
		byType:   make(map[string]int64),
	}
}

func (s *eventStore) ingest(events ...types.SceneEvent) {
	if len(events) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		s.totalIngest++
		s.byType[ev.Type]++
		s.recent = append(s.recent, ev)
	}
	if len(s.recent) > s.capacity {
		s.recent = append(s.recent[:0], s.recent[len(s.recent)-s.capacity:]...)
	}
}

// listRecent returns up to limit of the newest events, oldest first. An empty
// typ matches every event.
func (s *eventStore) listRecent(typ string, limit int) []types.SceneEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]types.SceneEvent, 0, len(s.recent))
	for _, ev := range s.recent {
		if typ == "" || ev.Type == typ {
			matched = append(matched, ev)
		}
	}
	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	return matched[len(matched)-limit:]
}

type summary struct {
	Total  int64            `json:"total"`
	ByType map[string]int64 `json:"by_type"`
}

func (s *eventStore) summary() summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byType := make(map[string]int64, len(s.byType))
	for k, v := range s.byType {
		byType[k] = v
	}
	return summary{Total: s.totalIngest, ByType: byType}
}
