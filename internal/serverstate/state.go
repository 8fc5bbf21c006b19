package serverstate

import (
	"sync/atomic"
	"time"
)

// Status values reported by the server.
const (
	StatusNotReady = "not_ready"
	StatusReady    = "ready"
	StatusDraining = "draining"
	StatusUnknown  = "unknown"
)

// State holds the server status and draining flag. Fields are updated
// together so readers always see a consistent snapshot.
type State struct {
	Status   string    `json:"status"`
	Draining bool      `json:"draining"`
	Since    time.Time `json:"since"`
}

// Store persists State. The default lives in process memory; a Redis store
// lets several replicas behind one balancer share a drain decision.
type Store interface {
	Load() State
	Store(State)
}

var active atomic.Pointer[storeHolder]

type storeHolder struct{ s Store }

func init() {
	active.Store(&storeHolder{s: NewMemoryStore()})
}

// UseStore replaces the active Store. A nil store is ignored.
func UseStore(s Store) {
	if s != nil {
		active.Store(&storeHolder{s: s})
	}
}

// ActiveStore returns the Store currently in use.
func ActiveStore() Store { return active.Load().s }

type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to not_ready.
func NewMemoryStore() Store {
	ms := &memoryStore{}
	ms.v.Store(State{Status: StatusNotReady, Since: time.Now()})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: StatusUnknown}
}

func (m *memoryStore) Store(s State) { m.v.Store(s) }

// SetState updates the server status.
func SetState(status string) {
	s := ActiveStore()
	st := s.Load()
	if st.Status != status {
		st.Since = time.Now()
	}
	st.Status = status
	s.Store(st)
}

// GetState returns the current server status.
func GetState() string { return ActiveStore().Load().Status }

// Snapshot returns the full current state.
func Snapshot() State { return ActiveStore().Load() }

// StartDrain marks the server as draining. New recipe streams are refused
// from then on while running ones finish.
func StartDrain() {
	s := ActiveStore()
	st := s.Load()
	st.Draining = true
	st.Status = StatusDraining
	st.Since = time.Now()
	s.Store(st)
}

// IsDraining reports whether the server is draining.
func IsDraining() bool { return ActiveStore().Load().Draining }
