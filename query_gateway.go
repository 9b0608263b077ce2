package eventsourcing

import (
	"context"
	"fmt"
)

// GenericQueryGateway is a typed view onto one queryType slot of a QueryBus.
// It implements QueryHandler[T,R], so callers depend on the narrow handler
// interface rather than reaching into the bus directly.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler[MyQuery, *MyResult](bus, "MyQuery", NewQueryHandlerFunc(func(ctx context.Context, q MyQuery) (*MyResult, error) {
//	    return &MyResult{Value: 123}, nil
//	}))
//
//	gateway := NewQueryGateway[MyQuery, *MyResult](bus, "MyQuery")
//	result, err := gateway.HandleQuery(context.Background(), MyQuery{ID: "42"})
type GenericQueryGateway[T Query, R any] struct {
	bus       *QueryBus
	queryType string
}

// NewQueryGateway creates a typed gateway for queryType, backed by bus.
func NewQueryGateway[T Query, R any](bus *QueryBus, queryType string) GenericQueryGateway[T, R] {
	return GenericQueryGateway[T, R]{bus: bus, queryType: queryType}
}

// HandleQuery runs the handler registered for g.queryType on qry.
func (g GenericQueryGateway[T, R]) HandleQuery(ctx context.Context, qry T) (R, error) {
	g.bus.mu.RLock()
	h, ok := g.bus.handlers[g.queryType]
	g.bus.mu.RUnlock()

	var zero R
	if !ok {
		return zero, fmt.Errorf("no handler registered for query %s: %w", g.queryType, ErrHandlerNotFound)
	}

	handler, ok := h.(QueryHandler[T, R])
	if !ok {
		return zero, fmt.Errorf("handler type mismatch for query %s", g.queryType)
	}

	return handler.HandleQuery(ctx, qry)
}
