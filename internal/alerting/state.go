package alerting

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gudangguard/sentinel/internal/logger"
)

// DeviceAlertState is the last transition decision for a device.
type DeviceAlertState struct {
	DeviceID      string    `json:"deviceId"`
	IsAlertActive bool      `json:"isAlertActive"`
	LastChangedAt time.Time `json:"lastChangedAt"`
}

// StatePersister keeps alert state across restarts.
type StatePersister interface {
	Save(ctx context.Context, state DeviceAlertState) error
	LoadAll(ctx context.Context) ([]DeviceAlertState, error)
}

// StateStore owns DeviceAlertState. Callers serialize work on one device
// with Lock; reads and writes of the map itself are safe from any goroutine.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]DeviceAlertState

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	persister StatePersister
	log       logger.Logger
}

// NewStateStore creates an empty store. persister may be nil.
func NewStateStore(persister StatePersister, log logger.Logger) *StateStore {
	return &StateStore{
		states:    make(map[string]DeviceAlertState),
		locks:     make(map[string]*sync.Mutex),
		persister: persister,
		log:       log,
	}
}

// Lock acquires the per-device lock and returns its release function.
func (s *StateStore) Lock(deviceID string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[deviceID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[deviceID] = m
	}
	s.locksMu.Unlock()

	m.Lock()
	return m.Unlock
}

// Get returns the stored state and whether one exists.
func (s *StateStore) Get(deviceID string) (DeviceAlertState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[deviceID]
	return st, ok
}

// Set stores state and writes it through to the persister. Persistence
// failures are logged; the in-memory state is authoritative.
func (s *StateStore) Set(ctx context.Context, state DeviceAlertState) {
	s.mu.Lock()
	s.states[state.DeviceID] = state
	s.mu.Unlock()

	if s.persister == nil {
		return
	}
	if err := s.persister.Save(ctx, state); err != nil {
		s.log.Warn("failed to persist alert state",
			logger.String("device_id", state.DeviceID),
			logger.Bool("alert_active", state.IsAlertActive),
			logger.Error(err))
	}
}

// Snapshot returns all states ordered by device id.
func (s *StateStore) Snapshot() []DeviceAlertState {
	s.mu.RLock()
	out := make([]DeviceAlertState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b DeviceAlertState) int {
		return strings.Compare(a.DeviceID, b.DeviceID)
	})
	return out
}

// ActiveCount returns how many devices are currently alerting.
func (s *StateStore) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.states {
		if st.IsAlertActive {
			n++
		}
	}
	return n
}

// Warm loads persisted state. Entries already present in memory win.
func (s *StateStore) Warm(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}
	states, err := s.persister.LoadAll(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	loaded := 0
	for _, st := range states {
		if st.DeviceID == "" {
			continue
		}
		if _, exists := s.states[st.DeviceID]; exists {
			continue
		}
		s.states[st.DeviceID] = st
		loaded++
	}
	return loaded, nil
}
