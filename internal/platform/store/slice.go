// Package store keeps the client-side mirror of backend collections. Every
// operation makes exactly one backend call and folds the outcome into the
// state the console renders.
package store

import (
	"context"
	"slices"
	"sync"
)

// Entity is any record the backend identifies by a numeric id.
type Entity interface {
	EntityID() int64
}

// Backend is the REST surface one Slice drives.
type Backend[T Entity] interface {
	List(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id int64) (*T, error)
	Create(ctx context.Context, payload any) (*T, error)
	Update(ctx context.Context, id int64, payload any) (*T, error)
	Delete(ctx context.Context, id int64) error
}

// State is a point-in-time copy of a Slice.
type State[T Entity] struct {
	Items    []T    `json:"items"`
	Selected *T     `json:"selected,omitempty"`
	Loading  bool   `json:"loading"`
	Error    string `json:"error,omitempty"`
}

// Slice mirrors one backend collection. Concurrent calls are neither
// de-duplicated nor ordered; whichever response lands last wins.
type Slice[T Entity] struct {
	mu      sync.Mutex
	backend Backend[T]
	state   State[T]
}

func NewSlice[T Entity](backend Backend[T]) *Slice[T] {
	return &Slice[T]{backend: backend, state: State[T]{Items: []T{}}}
}

// Snapshot returns a copy safe to hand to renderers.
func (s *Slice[T]) Snapshot() State[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.state
	out.Items = slices.Clone(s.state.Items)
	if s.state.Selected != nil {
		sel := *s.state.Selected
		out.Selected = &sel
	}
	return out
}

func (s *Slice[T]) pending() {
	s.mu.Lock()
	s.state.Loading = true
	s.state.Error = ""
	s.mu.Unlock()
}

func (s *Slice[T]) fail(err error) {
	s.mu.Lock()
	s.state.Loading = false
	s.state.Error = err.Error()
	s.mu.Unlock()
}

func (s *Slice[T]) done(mutate func(*State[T])) {
	s.mu.Lock()
	s.state.Loading = false
	mutate(&s.state)
	s.mu.Unlock()
}

// FetchAll replaces the list with the backend's.
func (s *Slice[T]) FetchAll(ctx context.Context) ([]T, error) {
	s.pending()
	items, err := s.backend.List(ctx)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	s.done(func(st *State[T]) { st.Items = items })
	return slices.Clone(items), nil
}

// FetchByID loads one record into Selected.
func (s *Slice[T]) FetchByID(ctx context.Context, id int64) (*T, error) {
	s.pending()
	item, err := s.backend.Get(ctx, id)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.done(func(st *State[T]) { st.Selected = item })
	return item, nil
}

// Create appends the record the backend returns.
func (s *Slice[T]) Create(ctx context.Context, payload any) (*T, error) {
	s.pending()
	item, err := s.backend.Create(ctx, payload)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.done(func(st *State[T]) { st.Items = append(st.Items, *item) })
	return item, nil
}

// Update replaces the record whose id matches the returned record. A record
// that is not in the list is left out.
func (s *Slice[T]) Update(ctx context.Context, id int64, payload any) (*T, error) {
	s.pending()
	item, err := s.backend.Update(ctx, id, payload)
	if err != nil {
		s.fail(err)
		return nil, err
	}
	s.done(func(st *State[T]) { st.Replace(*item) })
	return item, nil
}

// Delete removes the record matching id once the backend confirms.
func (s *Slice[T]) Delete(ctx context.Context, id int64) error {
	s.pending()
	if err := s.backend.Delete(ctx, id); err != nil {
		s.fail(err)
		return err
	}
	s.done(func(st *State[T]) {
		st.Items = slices.DeleteFunc(st.Items, func(it T) bool { return it.EntityID() == id })
		if st.Selected != nil && (*st.Selected).EntityID() == id {
			st.Selected = nil
		}
	})
	return nil
}

// Run wraps an ad-hoc backend call (search, status action) in the same
// pending/fulfilled/rejected lifecycle. apply runs under the lock on success.
func (s *Slice[T]) Run(ctx context.Context, call func(context.Context) error, apply func(*State[T])) error {
	s.pending()
	if err := call(ctx); err != nil {
		s.fail(err)
		return err
	}
	s.done(func(st *State[T]) {
		if apply != nil {
			apply(st)
		}
	})
	return nil
}

// Replace swaps in item by id, as Update does, without a backend call.
func (st *State[T]) Replace(item T) {
	for i := range st.Items {
		if st.Items[i].EntityID() == item.EntityID() {
			st.Items[i] = item
			break
		}
	}
	if st.Selected != nil && (*st.Selected).EntityID() == item.EntityID() {
		st.Selected = &item
	}
}

func (s *Slice[T]) ClearSelected() {
	s.mu.Lock()
	s.state.Selected = nil
	s.state.Error = ""
	s.mu.Unlock()
}

func (s *Slice[T]) ClearError() {
	s.mu.Lock()
	s.state.Error = ""
	s.mu.Unlock()
}

func (s *Slice[T]) ClearLoading() {
	s.mu.Lock()
	s.state.Loading = false
	s.mu.Unlock()
}
