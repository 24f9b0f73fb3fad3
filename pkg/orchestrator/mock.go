package orchestrator

import (
	"context"
	"sync"
)

// Mock is an in-memory orchestrator for tests and dry runs.
type Mock struct {
	mu       sync.Mutex
	replicas map[string]int

	// GetErr and SetErr, when set, are returned by the respective calls.
	GetErr error
	SetErr error

	setCalls []int
	bounds   *Bounds
}

// NewMock returns a mock orchestrator with the given starting replica
// counts per service.
func NewMock(replicas map[string]int) *Mock {
	m := &Mock{replicas: make(map[string]int)}
	for k, v := range replicas {
		m.replicas[k] = v
	}
	return m
}

// WithBounds makes the mock enforce the same defensive bounds check as the
// compose client.
func (m *Mock) WithBounds(b Bounds) *Mock {
	m.bounds = &b
	return m
}

func (m *Mock) CurrentReplicas(_ context.Context, service string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return 0, m.GetErr
	}
	return m.replicas[service], nil
}

func (m *Mock) SetReplicas(_ context.Context, service string, target int) error {
	if m.bounds != nil {
		m.bounds.Check(target)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetErr != nil {
		return m.SetErr
	}
	m.replicas[service] = target
	m.setCalls = append(m.setCalls, target)
	return nil
}

// SetCalls returns the targets of all successful SetReplicas calls in order.
func (m *Mock) SetCalls() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.setCalls...)
}
