package eventsourcing

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/lattice-run/eventsourcing"

// Attribute keys shared by spans and metrics across the engine.
const (
	AttrAggregateType = attribute.Key("eventsourcing.aggregate_type")
	AttrEventType     = attribute.Key("eventsourcing.event_type")
	AttrCommandType   = attribute.Key("eventsourcing.command_type")
	AttrProjection    = attribute.Key("eventsourcing.projection")
	AttrQueryType     = attribute.Key("eventsourcing.query_type")
	AttrErrorType     = attribute.Key("eventsourcing.error_type")
	AttrResultType    = attribute.Key("eventsourcing.result_type")
)

var (
	meter  metric.Meter
	tracer trace.Tracer

	EventsAppended       metric.Int64Counter
	EventsLoaded         metric.Int64Counter
	SnapshotsCreated      metric.Int64Counter
	ConcurrencyConflicts metric.Int64Counter
	StreamVersions       metric.Int64Gauge

	CommandsDispatched metric.Int64Counter
	CommandsFailed     metric.Int64Counter
	CommandsDuration   metric.Float64Histogram
	CommandsInFlight   metric.Int64UpDownCounter

	ProjectionsAdvanced     metric.Int64Counter
	ProjectionHandlerErrors metric.Int64Counter

	QueriesHandled  metric.Int64Counter
	QueriesFailed   metric.Int64Counter
	QueriesDuration metric.Float64Histogram
	QueriesInFlight metric.Int64UpDownCounter

	EventBusPublished   metric.Int64Counter
	EventBusDropped     metric.Int64Counter
	EventBusSubscribers metric.Int64UpDownCounter

	once        sync.Once
	initErr     error
	initialized bool
)

// Init initializes the package's global meter, tracer, and metric
// instruments. Safe to call multiple times; only the first call takes
// effect. Call it once at host startup, after configuring the global
// OpenTelemetry providers, or simply don't call it: until Init runs the
// instruments are nil and every metric call site skips them (a nil check or
// IsInitialized), so the engine works correctly without telemetry wired up.
func Init() error {
	once.Do(func() {
		meter = otel.Meter(instrumentationName)
		tracer = otel.Tracer(instrumentationName)
		initErr = initializeMetrics()
		initialized = initErr == nil
	})
	return initErr
}

// MustInit calls Init and panics on error.
func MustInit() {
	if err := Init(); err != nil {
		panic("eventsourcing: failed to initialize metrics: " + err.Error())
	}
}

// IsInitialized reports whether Init has successfully run.
func IsInitialized() bool {
	return initialized
}

func initializeMetrics() error {
	var err error

	if EventsAppended, err = meter.Int64Counter("eventsourcing.events.appended",
		metric.WithDescription("Number of events appended"), metric.WithUnit("{event}")); err != nil {
		return err
	}
	if EventsLoaded, err = meter.Int64Counter("eventsourcing.events.loaded",
		metric.WithDescription("Number of events loaded"), metric.WithUnit("{event}")); err != nil {
		return err
	}
	if SnapshotsCreated, err = meter.Int64Counter("eventsourcing.snapshots.created",
		metric.WithDescription("Number of snapshots created"), metric.WithUnit("{snapshot}")); err != nil {
		return err
	}
	if ConcurrencyConflicts, err = meter.Int64Counter("eventsourcing.concurrency.conflicts",
		metric.WithDescription("Number of version conflicts on append"), metric.WithUnit("{conflict}")); err != nil {
		return err
	}
	if StreamVersions, err = meter.Int64Gauge("eventsourcing.stream.version",
		metric.WithDescription("Current version of a stream after append"), metric.WithUnit("{version}")); err != nil {
		return err
	}

	if CommandsDispatched, err = meter.Int64Counter("eventsourcing.commands.dispatched",
		metric.WithDescription("Number of commands dispatched"), metric.WithUnit("{command}")); err != nil {
		return err
	}
	if CommandsFailed, err = meter.Int64Counter("eventsourcing.commands.failed",
		metric.WithDescription("Number of commands that failed"), metric.WithUnit("{command}")); err != nil {
		return err
	}
	if CommandsDuration, err = meter.Float64Histogram("eventsourcing.commands.duration",
		metric.WithDescription("Command dispatch duration"), metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000)); err != nil {
		return err
	}
	if CommandsInFlight, err = meter.Int64UpDownCounter("eventsourcing.commands.in_flight",
		metric.WithDescription("Commands currently dispatching"), metric.WithUnit("{command}")); err != nil {
		return err
	}

	if ProjectionsAdvanced, err = meter.Int64Counter("eventsourcing.projections.events_processed",
		metric.WithDescription("Number of events processed by a projection advance/rebuild"), metric.WithUnit("{event}")); err != nil {
		return err
	}
	if ProjectionHandlerErrors, err = meter.Int64Counter("eventsourcing.projections.handler_errors",
		metric.WithDescription("Number of projection handler failures"), metric.WithUnit("{error}")); err != nil {
		return err
	}

	if QueriesHandled, err = meter.Int64Counter("eventsourcing.queries.handled",
		metric.WithDescription("Number of queries handled"), metric.WithUnit("{query}")); err != nil {
		return err
	}
	if QueriesFailed, err = meter.Int64Counter("eventsourcing.queries.failed",
		metric.WithDescription("Number of queries that failed"), metric.WithUnit("{query}")); err != nil {
		return err
	}
	if QueriesDuration, err = meter.Float64Histogram("eventsourcing.queries.duration",
		metric.WithDescription("Query handling duration"), metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000)); err != nil {
		return err
	}
	if QueriesInFlight, err = meter.Int64UpDownCounter("eventsourcing.queries.in_flight",
		metric.WithDescription("Queries currently executing"), metric.WithUnit("{query}")); err != nil {
		return err
	}

	if EventBusPublished, err = meter.Int64Counter("eventsourcing.eventbus.published",
		metric.WithDescription("Events published to the in-process event bus"), metric.WithUnit("{event}")); err != nil {
		return err
	}
	if EventBusDropped, err = meter.Int64Counter("eventsourcing.eventbus.dropped",
		metric.WithDescription("Events dropped because a subscriber's buffer was full"), metric.WithUnit("{event}")); err != nil {
		return err
	}
	if EventBusSubscribers, err = meter.Int64UpDownCounter("eventsourcing.eventbus.subscribers",
		metric.WithDescription("Active event bus subscribers"), metric.WithUnit("{subscriber}")); err != nil {
		return err
	}

	return nil
}

// StartSpan starts a span named name under the engine's tracer. Safe to
// call even if Init was never invoked (otel's default tracer is a no-op).
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	t := tracer
	if t == nil {
		t = otel.Tracer(instrumentationName)
	}
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err (if any) on span and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartQuerySpan starts a span for a query execution, tagging it with the
// query's type name.
func StartQuerySpan(ctx context.Context, qry any) (context.Context, trace.Span) {
	return StartSpan(ctx, "eventsourcing.query", AttrQueryType.String(TypeName(qry)))
}

// EndQuerySpan is an alias of EndSpan kept for symmetry with StartQuerySpan.
func EndQuerySpan(span trace.Span, err error) {
	EndSpan(span, err)
}
