package eventsourcing

import "context"

// queryTypeHistory and queryTypeStatistics are the dispatch keys the two
// built-in queries register under. Declared as constants so System's
// gateways and registerSystemQueries can never drift apart.
const (
	queryTypeHistory    = "HistoryQuery"
	queryTypeStatistics = "StatisticsQuery"
)

// HistoryQuery requests the full, version-ordered event history of one
// aggregate. It is registered on System's QueryBus so GetAggregateHistory
// goes through the same typed, instrumented query pipeline as any other
// read the embedding host defines.
type HistoryQuery struct {
	AggregateID string
}

// QueryType implements Query.
func (q HistoryQuery) QueryType() string { return queryTypeHistory }

// StatisticsQuery requests the {total_events, by_type, latest_position}
// summary over the whole log.
type StatisticsQuery struct{}

// QueryType implements Query.
func (q StatisticsQuery) QueryType() string { return queryTypeStatistics }

// registerSystemQueries wires System's two built-in convenience queries
// onto bus, backed by store.
func registerSystemQueries(bus *QueryBus, store *EventStore) {
	RegisterQueryHandler[HistoryQuery, []Values](bus, queryTypeHistory, NewQueryHandlerFunc(
		func(ctx context.Context, q HistoryQuery) ([]Values, error) {
			events, err := store.Load(ctx, q.AggregateID, 0)
			if err != nil {
				return nil, err
			}
			out := make([]Values, len(events))
			for i, e := range events {
				out[i] = eventToValues(e)
			}
			return out, nil
		},
	))

	RegisterQueryHandler[StatisticsQuery, Statistics](bus, queryTypeStatistics, NewQueryHandlerFunc(
		func(ctx context.Context, _ StatisticsQuery) (Statistics, error) {
			events, err := store.LoadAllEvents(ctx, 0)
			if err != nil {
				return Statistics{}, err
			}
			stats := Statistics{ByType: make(map[string]int64)}
			for _, e := range events {
				stats.TotalEvents++
				stats.ByType[e.EventType]++
				if e.Position > stats.LatestPosition {
					stats.LatestPosition = e.Position
				}
			}
			return stats, nil
		},
	))
}

func eventToValues(e Event) Values {
	return Values{
		"id":             e.ID.String(),
		"aggregate_id":   e.AggregateID,
		"aggregate_type": e.AggregateType,
		"event_type":     e.EventType,
		"payload":        e.Payload,
		"version":        e.Version,
		"timestamp":      e.Timestamp,
		"caused_by":      e.CausedBy,
		"metadata":       e.Metadata,
		"position":       e.Position,
	}
}
