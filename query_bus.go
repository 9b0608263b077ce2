package eventsourcing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// QueryBus is a central registry for query handlers, keyed by the string
// QueryType a query reports rather than by reflecting over its Go type — the
// same dispatch shape CommandBus uses for commandType. Handlers are reached
// later through a typed GenericQueryGateway.
//
// Example Usage:
//
//	bus := NewQueryBus()
//	RegisterQueryHandler[MyQuery, *MyResult](bus, "MyQuery", NewQueryHandlerFunc(func(ctx context.Context, q MyQuery) (*MyResult, error) {
//	    return &MyResult{Value: 42}, nil
//	}))
type QueryBus struct {
	mu       sync.RWMutex
	handlers map[string]any
}

// NewQueryBus creates a new QueryBus instance.
func NewQueryBus() *QueryBus {
	return &QueryBus{handlers: make(map[string]any)}
}

// RegisterQueryHandler wires handler to answer queries of type T under
// queryType, wrapping it with the same span/counter/histogram instrumentation
// CommandBus.Dispatch uses for commands, plus panic recovery so one
// misbehaving query handler can never take down the bus. Registering the
// same queryType twice replaces the previous handler.
//
// Type Parameters:
//   - T: the query type implementing Query.
//   - R: the result type.
func RegisterQueryHandler[T Query, R any](bus *QueryBus, queryType string, handler QueryHandler[T, R]) {
	wrapped := func(ctx context.Context, qry T) (result R, err error) {
		start := time.Now()
		ctx, span := StartQuerySpan(ctx, qry)
		defer func() { EndQuerySpan(span, err) }()

		if QueriesInFlight != nil {
			QueriesInFlight.Add(ctx, 1, metric.WithAttributes(AttrQueryType.String(queryType)))
			defer QueriesInFlight.Add(ctx, -1, metric.WithAttributes(AttrQueryType.String(queryType)))
		}

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in handler for %s: %v", queryType, r)
			}
		}()

		result, err = handler.HandleQuery(ctx, qry)
		if err != nil {
			if QueriesFailed != nil {
				QueriesFailed.Add(ctx, 1, metric.WithAttributes(
					AttrQueryType.String(queryType),
					AttrErrorType.String("handler_error"),
				))
			}
			return result, err
		}

		if QueriesHandled != nil {
			QueriesHandled.Add(ctx, 1, metric.WithAttributes(AttrQueryType.String(queryType)))
		}
		if QueriesDuration != nil {
			QueriesDuration.Record(ctx, float64(time.Since(start).Milliseconds()), metric.WithAttributes(AttrQueryType.String(queryType)))
		}
		span.SetAttributes(AttrResultType.String(TypeName(result)))
		return result, nil
	}

	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.handlers[queryType] = queryHandlerFunc[T, R](wrapped)
}
