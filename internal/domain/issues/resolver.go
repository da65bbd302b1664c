package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prorab/pkg/logger"
)

var tracer = otel.Tracer("prorab/issues")

// Strategy outcomes reported to the observer.
const (
	OutcomeRows  = "rows"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Strategy names.
const (
	StrategyAggregate = "aggregate"
	StrategyJoin      = "join"
	StrategyHeaders   = "headers"
	StrategyView      = "view"
	StrategyNone      = "none"
)

// FactStrategy is one way of assembling fact rows. An error means the source
// failed; an empty result means it had nothing for the query. Either way the
// resolver moves on to the next strategy.
type FactStrategy interface {
	Name() string
	Facts(ctx context.Context, q Query) ([]FactRow, error)
}

// StrategyObserver receives one call per attempted strategy.
type StrategyObserver interface {
	ObserveStrategy(strategy, outcome string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveStrategy(string, string, time.Duration) {}

// Limits bounds paginated scans. Reaching a cap stops the scan and keeps
// what was gathered.
type Limits struct {
	PageSize int
	MaxRows  int
	MaxPages int
}

// DefaultLimits returns page size 1000 capped at 500 pages / 500k rows.
func DefaultLimits() Limits {
	return Limits{PageSize: 1000, MaxRows: 500_000, MaxPages: 500}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.PageSize <= 0 {
		l.PageSize = d.PageSize
	}
	if l.MaxRows <= 0 {
		l.MaxRows = d.MaxRows
	}
	if l.MaxPages <= 0 {
		l.MaxPages = d.MaxPages
	}
	return l
}

// collectPages reads pages until a short page or a cap.
func collectPages[T any](ctx context.Context, limits Limits, fetch func(ctx context.Context, offset, limit int) ([]T, error)) ([]T, error) {
	limits = limits.withDefaults()

	var all []T
	for page := 0; page < limits.MaxPages; page++ {
		batch, err := fetch(ctx, page*limits.PageSize, limits.PageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)

		if len(all) >= limits.MaxRows {
			logger.Warn(ctx, "scan row cap reached", "rows", len(all), "cap", limits.MaxRows)
			return all[:limits.MaxRows], nil
		}
		if len(batch) < limits.PageSize {
			return all, nil
		}
	}

	logger.Warn(ctx, "scan page cap reached", "pages", limits.MaxPages, "rows", len(all))
	return all, nil
}

// FactResolver runs the fact strategies in filter-dependent order and
// returns the rows of the first one that yields any.
type FactResolver struct {
	join     FactStrategy
	headers  FactStrategy
	view     FactStrategy
	names    *NameResolver
	observer StrategyObserver
}

// NewFactResolver wires the three fact strategies over a backend.
func NewFactResolver(backend Backend, names *NameResolver, limits Limits, observer StrategyObserver) *FactResolver {
	if observer == nil {
		observer = nopObserver{}
	}
	return &FactResolver{
		join:     NewJoinStrategy(backend, names, limits),
		headers:  NewHeaderStrategy(backend),
		view:     NewViewStrategy(backend, limits),
		names:    names,
		observer: observer,
	}
}

// order returns the strategies for a query. A name-only object filter cannot
// be expressed by the id-based join, so the header/notes path goes first.
func (r *FactResolver) order(q Query) []FactStrategy {
	if q.NameOnly() {
		return []FactStrategy{r.headers, r.join, r.view}
	}
	return []FactStrategy{r.join, r.headers, r.view}
}

// Resolve returns the fact rows for a query and the name of the strategy
// that produced them. When no strategy yields rows the result is empty with
// StrategyNone; the error is ErrSourcesUnavailable only if every strategy
// failed.
func (r *FactResolver) Resolve(ctx context.Context, q Query) ([]FactRow, string, error) {
	var failures []error
	strategies := r.order(q)
	for _, s := range strategies {
		rows, err := r.run(ctx, s, q)
		if err != nil {
			failures = append(failures, err)
			continue
		}
		if len(rows) == 0 {
			continue
		}
		if r.names != nil {
			r.names.EnrichRows(ctx, rows)
		}
		return rows, s.Name(), nil
	}

	logger.Warn(ctx, "no fact strategy produced rows",
		"from", q.From.Format(time.DateOnly),
		"to", q.To.Format(time.DateOnly),
		"object", q.ObjectName,
		"failed", len(failures),
	)
	if len(failures) == len(strategies) {
		return []FactRow{}, StrategyNone, fmt.Errorf("%w: %w", ErrSourcesUnavailable, errors.Join(failures...))
	}
	return []FactRow{}, StrategyNone, nil
}

func (r *FactResolver) run(ctx context.Context, s FactStrategy, q Query) ([]FactRow, error) {
	ctx, span := tracer.Start(ctx, "issues.strategy."+s.Name(),
		trace.WithAttributes(
			attribute.String("strategy", s.Name()),
			attribute.Bool("filtered", q.Filtered()),
		))
	defer span.End()

	start := time.Now()
	rows, err := s.Facts(ctx, q)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.observer.ObserveStrategy(s.Name(), OutcomeError, elapsed)
		logger.Warn(ctx, "fact strategy failed", "strategy", s.Name(), "error", err)
		return nil, err
	case len(rows) == 0:
		r.observer.ObserveStrategy(s.Name(), OutcomeEmpty, elapsed)
		logger.Debug(ctx, "fact strategy empty", "strategy", s.Name())
		return nil, nil
	}

	span.SetAttributes(attribute.Int("rows", len(rows)))
	r.observer.ObserveStrategy(s.Name(), OutcomeRows, elapsed)
	return rows, nil
}

// rawFact is the common intermediate every strategy maps its source shape to.
type rawFact struct {
	IssueID       string
	IssueDate     time.Time
	Object        string
	Work          string
	Level         string
	RequestLineID *string
	Code          string
	Name          string
	Unit          string
	Qty           float64
}

// toFactRow canonicalizes a raw fact. Rows without a material code and
// rows with a negative or NaN quantity are dropped.
func (f rawFact) toFactRow() (FactRow, bool) {
	code := normalizeCode(f.Code)
	if code == "" || !(f.Qty >= 0) {
		return FactRow{}, false
	}

	var reqID string
	if f.RequestLineID != nil {
		reqID = strings.TrimSpace(*f.RequestLineID)
	}

	return FactRow{
		IssueID:          f.IssueID,
		IssueDate:        f.IssueDate,
		ObjectName:       CanonicalObjectName(f.Object),
		WorkName:         NormalizeWorkName(f.Work),
		LevelName:        NormalizeLevelName(f.Level),
		RequestLineID:    reqID,
		IsWithoutRequest: reqID == "",
		MaterialCode:     code,
		MaterialName:     collapseSpaces(f.Name),
		Unit:             collapseSpaces(f.Unit),
		Quantity:         f.Qty,
	}, true
}

// known drops a bucket sentinel so it does not shadow a later candidate.
func known(value, sentinel string) string {
	if value == sentinel {
		return ""
	}
	return value
}
