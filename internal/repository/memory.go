package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryRunState is the process-local implementation used when Redis is not
// configured. It prevents overlap only within one process and loses the
// forward-sync cursor on restart.
type MemoryRunState struct {
	mu      sync.Mutex
	leases  map[string]memoryLease
	cursors map[string]string
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryRunState() *MemoryRunState {
	return &MemoryRunState{
		leases:  make(map[string]memoryLease),
		cursors: make(map[string]string),
	}
}

func (m *MemoryRunState) AcquireLease(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease, ok := m.leases[key]; ok && time.Now().Before(lease.expiresAt) {
		return false, nil
	}
	m.leases[key] = memoryLease{owner: owner, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (m *MemoryRunState) ReleaseLease(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease, ok := m.leases[key]; ok && lease.owner == owner {
		delete(m.leases, key)
	}
	return nil
}

func (m *MemoryRunState) GetCursor(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[key], nil
}

func (m *MemoryRunState) SetCursor(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[key] = value
	return nil
}
