package eventsourcing

import "context"

// Iterator is a generic lazy iterator that produces values one at a time
// (e.g. while scanning *sql.Rows), without holding a whole result set in
// memory at once. Consumers that want everything at once can call All. The
// bundled backends (storage/memory, storage/sqlite) return slices and do not
// use it.
type Iterator[T any] struct {
	nextFunc func(ctx context.Context) (*T, error)
	current  *T
	err      error
}

// NewIterator builds an Iterator from a function producing the next value.
// The function must return (nil, nil) once exhausted, or (nil, err) on
// failure.
func NewIterator[T any](nextFunc func(ctx context.Context) (*T, error)) *Iterator[T] {
	return &Iterator[T]{nextFunc: nextFunc}
}

// Next advances the iterator. It returns false once the iterator is
// exhausted or an error occurred; check Err to distinguish the two.
func (it *Iterator[T]) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	it.current, it.err = it.nextFunc(ctx)
	return it.current != nil && it.err == nil
}

// Value returns the item produced by the most recent successful Next call.
func (it *Iterator[T]) Value() *T {
	return it.current
}

// Err returns the error, if any, that stopped iteration.
func (it *Iterator[T]) Err() error {
	return it.err
}

// All drains the iterator into a slice.
func (it *Iterator[T]) All(ctx context.Context) ([]T, error) {
	var results []T
	for it.Next(ctx) {
		results = append(results, *it.Value())
	}
	return results, it.Err()
}
