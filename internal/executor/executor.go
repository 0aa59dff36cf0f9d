// Package executor serializes access to the sale state. Every mutating
// operation runs as one all-or-nothing transaction: it either commits all
// of its writes and events or none of them.
package executor

import (
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/Bidon15/licensesale/internal/metrics"
	"github.com/Bidon15/licensesale/internal/models"
	apierrors "github.com/Bidon15/licensesale/internal/pkg/errors"
	"github.com/Bidon15/licensesale/internal/state"
)

// Committer persists the change set of a committed transaction.
type Committer interface {
	Commit(ctx context.Context, cs *state.ChangeSet) error
}

// Publisher forwards the events of a committed transaction.
type Publisher interface {
	Publish(ctx context.Context, events []models.Event) error
}

// Executor runs transactions against a state.State one at a time.
//
// Persistence and publishing happen after the in-memory commit. Their
// failures are logged and counted but do not undo the transaction; the
// in-memory state is authoritative.
type Executor struct {
	mu sync.RWMutex
	st *state.State

	committer Committer
	publisher Publisher
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	logger    *slog.Logger
	now       func() time.Time
	entropy   io.Reader
}

// Option configures an Executor.
type Option func(*Executor)

// WithCommitter sets the persistence hook.
func WithCommitter(c Committer) Option {
	return func(e *Executor) { e.committer = c }
}

// WithPublisher sets the event hook.
func WithPublisher(p Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) { e.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithClock sets the clock used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

// New creates an executor over st.
func New(st *state.State, opts ...Option) *Executor {
	e := &Executor{
		st:      st,
		tracer:  noop.NewTracerProvider().Tracer("executor"),
		logger:  slog.Default(),
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs fn as a transaction named name. When fn fails or panics
// every mutation it made is discarded. On success the change set is
// returned after the persistence and publish hooks ran.
func (e *Executor) Execute(ctx context.Context, name string, fn func(ctx context.Context) error) (cs *state.ChangeSet, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, span := e.tracer.Start(ctx, "tx."+name, trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	start := time.Now()
	defer func() {
		e.metrics.ObserveTransaction(name, err, time.Since(start))
	}()

	if e.st.Pending() {
		// Leftovers from a writer that bypassed the executor.
		e.logger.Warn("Discarding uncommitted state", slog.String("tx", name))
		e.st.Discard()
	}

	if err = e.run(ctx, fn); err != nil {
		e.st.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, apierrors.AsAPIError(err).Code)
		return nil, err
	}

	cs = e.st.Commit()
	e.stamp(name, cs.Events)
	span.SetAttributes(attribute.Int("tx.events", len(cs.Events)))

	if e.committer != nil {
		if cerr := e.committer.Commit(ctx, cs); cerr != nil {
			e.metrics.CommitFailed("persist")
			e.logger.Error("Failed to persist transaction",
				slog.String("tx", name),
				slog.String("error", cerr.Error()),
			)
		}
	}
	if e.publisher != nil && len(cs.Events) > 0 {
		if perr := e.publisher.Publish(ctx, cs.Events); perr != nil {
			e.metrics.CommitFailed("publish")
			e.logger.Error("Failed to publish events",
				slog.String("tx", name),
				slog.Int("events", len(cs.Events)),
				slog.String("error", perr.Error()),
			)
		}
	}
	return cs, nil
}

func (e *Executor) run(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.st.Discard()
			panic(r)
		}
	}()
	return fn(ctx)
}

func (e *Executor) stamp(name string, events []models.Event) {
	now := e.now().UTC()
	for i := range events {
		events[i].ID = ulid.MustNew(ulid.Timestamp(now), e.entropy).String()
		events[i].TxName = name
		events[i].Timestamp = now
	}
}

// View runs fn under the read lock. fn must not mutate state.
func (e *Executor) View(fn func()) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn()
}

// Run executes fn as a transaction and returns its value.
func Run[T any](ctx context.Context, e *Executor, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	_, err := e.Execute(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Read runs fn under the read lock and returns its value.
func Read[T any](e *Executor, fn func() T) T {
	var out T
	e.View(func() { out = fn() })
	return out
}
