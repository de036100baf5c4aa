// Package extensions implements the heterogeneous typed container described
// in spec.md §9: a map from a value's runtime type identity to a boxed
// value, with typed Get/Set helpers. router.Container is built on Store;
// Request.extra uses StoreUnsynchronized.
package extensions

import (
	"reflect"
	"sync"
)

// Store is a concurrency-safe map keyed by reflect.Type. The per-request
// use (Request.extra) never contends — only that request's handler chain
// touches it — but router.Container is shared across every concurrent
// request, so the locking here is unconditional; callers needing a
// lock-free single-owner container can use StoreUnsynchronized instead.
type Store struct {
	mu sync.RWMutex
	m  map[reflect.Type]any
}

// New returns an empty Store.
func New() *Store {
	return &Store{m: make(map[reflect.Type]any)}
}

// Set stores v keyed by its own type, overwriting any previous value of
// that type.
func Set[T any](s *Store, v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[reflect.Type]any)
	}
	s.m[reflect.TypeOf(v)] = v
}

// Get retrieves the value stored for type T, if any.
func Get[T any](s *Store) (T, bool) {
	var zero T
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}

// Delete removes the value stored for type T.
func Delete[T any](s *Store) {
	var zero T
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, reflect.TypeOf(zero))
}

// StoreUnsynchronized is the single-owner variant used for Request.extra:
// only the handler chain processing that request ever touches it, so no
// locking is required (spec.md §5, "Shared-resource policy").
type StoreUnsynchronized struct {
	m map[reflect.Type]any
}

// NewUnsynchronized returns an empty, unsynchronized Store.
func NewUnsynchronized() *StoreUnsynchronized {
	return &StoreUnsynchronized{m: make(map[reflect.Type]any)}
}

func SetUnsynchronized[T any](s *StoreUnsynchronized, v T) {
	if s.m == nil {
		s.m = make(map[reflect.Type]any)
	}
	s.m[reflect.TypeOf(v)] = v
}

func GetUnsynchronized[T any](s *StoreUnsynchronized) (T, bool) {
	var zero T
	v, ok := s.m[reflect.TypeOf(zero)]
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
