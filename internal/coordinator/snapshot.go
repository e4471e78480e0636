package coordinator

import (
	"sync"

	"marstek-monitor/internal/battery"
)

// Snapshot is the last-known-good state of the battery: logical name
// to decoded value. The coordinator is the only writer; any number of
// consumers read it concurrently. Entries are replaced whole, never
// partially updated, and never deleted: a stale entry keeps its old
// timestamp so consumers can tell.
type Snapshot struct {
	mu     sync.RWMutex
	values map[string]battery.Value
	subs   map[string][]chan battery.Value
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		values: make(map[string]battery.Value),
		subs:   make(map[string][]chan battery.Value),
	}
}

func (s *Snapshot) Get(name string) (battery.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// All returns a copy of the current state.
func (s *Snapshot) All() map[string]battery.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]battery.Value, len(s.values))
	for name, v := range s.values {
		out[name] = v
	}
	return out
}

// Set replaces one entry and notifies subscribers. A subscriber that
// is not draining its channel misses intermediate updates rather than
// blocking the poll cycle.
func (s *Snapshot) Set(v battery.Value) {
	s.mu.Lock()
	s.values[v.Name] = v
	subs := s.subs[v.Name]
	s.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- v:
		default:
		}
	}
}

// Subscribe returns a channel of updates for one logical name. The
// subscription lives for the process lifetime.
func (s *Snapshot) Subscribe(name string) <-chan battery.Value {
	ch := make(chan battery.Value, 16)
	s.mu.Lock()
	s.subs[name] = append(s.subs[name], ch)
	s.mu.Unlock()
	return ch
}
