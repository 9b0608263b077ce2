package eventsourcing

import (
	"context"
)

// Query is a read request identified by a stable type name. QueryBus uses
// QueryType as its dispatch key, the same string-tag convention CommandBus
// dispatches commands by — a query's Go type is never reflected on at
// dispatch time.
type Query interface {
	QueryType() string
}

// QueryHandler answers queries of type T with a result of type R.
//
// Type Parameters:
//   - T: the query type implementing Query.
//   - R: the result type.
type QueryHandler[T Query, R any] interface {
	HandleQuery(ctx context.Context, qry T) (R, error)
}

// queryHandlerFunc is a helper type to allow ordinary functions to
// implement QueryHandler[T,R].
type queryHandlerFunc[T Query, R any] func(ctx context.Context, qry T) (R, error)

func (f queryHandlerFunc[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	return f(ctx, qry)
}

// NewQueryHandlerFunc creates a QueryHandler from a function.
func NewQueryHandlerFunc[T Query, R any](fn func(ctx context.Context, qry T) (R, error)) QueryHandler[T, R] {
	return queryHandlerFunc[T, R](fn)
}
