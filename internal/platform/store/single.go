package store

import (
	"context"
	"sync"
)

// SingleBackend reads and writes one configuration value.
type SingleBackend[T any] interface {
	Fetch(ctx context.Context) (*T, error)
	Create(ctx context.Context, value T) (*T, error)
}

// SingleState is a point-in-time copy of a Single.
type SingleState[T any] struct {
	Value   *T     `json:"value"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Single mirrors a backend value that exists at most once, such as a
// schedule configuration. Create replaces the value instead of appending.
type Single[T any] struct {
	mu      sync.Mutex
	backend SingleBackend[T]
	state   SingleState[T]
}

func NewSingle[T any](backend SingleBackend[T]) *Single[T] {
	return &Single[T]{backend: backend}
}

func (s *Single[T]) Snapshot() SingleState[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	if s.state.Value != nil {
		v := *s.state.Value
		out.Value = &v
	}
	return out
}

func (s *Single[T]) Fetch(ctx context.Context) (*T, error) {
	return s.run(func() (*T, error) { return s.backend.Fetch(ctx) })
}

func (s *Single[T]) Create(ctx context.Context, value T) (*T, error) {
	return s.run(func() (*T, error) { return s.backend.Create(ctx, value) })
}

func (s *Single[T]) run(call func() (*T, error)) (*T, error) {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()

	v, err := call()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Loading = false
	if err != nil {
		s.state.Error = err.Error()
		return nil, err
	}
	s.state.Value = v
	return v, nil
}

func (s *Single[T]) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
}
