package issues

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"prorab/internal/core/cache"
	"prorab/pkg/logger"
)

// Cache namespaces.
const (
	NamespaceOptions    = "issues:options"
	NamespaceSummary    = "issues:summary"
	NamespaceDiscipline = "issues:discipline"
)

// Caches holds one report cache per report kind.
type Caches struct {
	Options    *cache.Cache
	Summary    *cache.Cache
	Discipline *cache.Cache
}

// NewCaches creates the report caches sharing one configuration.
func NewCaches(cfg cache.Config, opts ...cache.Option) Caches {
	with := func(ns string) *cache.Cache {
		c := cfg
		c.Namespace = ns
		return cache.New(c, opts...)
	}
	return Caches{
		Options:    with(NamespaceOptions),
		Summary:    with(NamespaceSummary),
		Discipline: with(NamespaceDiscipline),
	}
}

// Config tunes the report pipeline.
type Config struct {
	Limits         Limits
	PriceScanLimit int
}

// Service builds issuance reports behind the report caches.
type Service struct {
	backend  Backend
	facts    *FactResolver
	pricing  *Reconciler
	caches   Caches
	observer StrategyObserver

	// aggregateMissing is set once the backend reports the summary
	// procedure as missing.
	aggregateMissing atomic.Bool
}

// NewService wires the report pipeline over a backend.
func NewService(backend Backend, caches Caches, cfg Config, observer StrategyObserver) *Service {
	if observer == nil {
		observer = nopObserver{}
	}
	names := NewNameResolver(backend)
	return &Service{
		backend:  backend,
		facts:    NewFactResolver(backend, names, cfg.Limits, observer),
		pricing:  NewReconciler(backend, cfg.PriceScanLimit),
		caches:   caches,
		observer: observer,
	}
}

// Options lists objects with issuances between the inclusive dates.
func (s *Service) Options(ctx context.Context, from, to time.Time) (*ReportOptions, error) {
	from, to = dateOnly(from), dateOnly(to)
	if err := (Params{From: from, To: to}).Validate(); err != nil {
		return nil, err
	}

	key := cache.Key(from.Format(time.DateOnly), to.Format(time.DateOnly))
	return cache.GetOrCompute(ctx, s.caches.Options, key, func(ctx context.Context) (*ReportOptions, error) {
		return s.buildOptions(ctx, from, to)
	})
}

func (s *Service) buildOptions(ctx context.Context, from, to time.Time) (*ReportOptions, error) {
	objects, err := s.backend.IssueObjects(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("issue objects: %w", err)
	}

	opts := &ReportOptions{
		Objects:        []string{},
		ObjectIDByName: make(map[string]*string),
	}
	for _, o := range objects {
		name := CanonicalObjectName(o.ObjectName)
		id, seen := opts.ObjectIDByName[name]
		if !seen {
			opts.Objects = append(opts.Objects, name)
		}
		if id == nil && o.ObjectID != nil && *o.ObjectID != "" {
			v := *o.ObjectID
			id = &v
		}
		opts.ObjectIDByName[name] = id
	}

	collate.New(language.Russian).SortStrings(opts.Objects)
	return opts, nil
}

// Summary returns KPI, material and object rollups. The pre-aggregated
// procedure is used when the object filter allows it.
func (s *Service) Summary(ctx context.Context, p Params) (*Summary, error) {
	q, sig, err := s.query(ctx, p)
	if err != nil {
		return nil, err
	}

	key := cache.Key(q.From.Format(time.DateOnly), q.To.Format(time.DateOnly), q.ObjectName, sig)
	return cache.GetOrCompute(ctx, s.caches.Summary, key, func(ctx context.Context) (*Summary, error) {
		return s.buildSummary(ctx, q)
	})
}

// buildSummary fails only when no source answered at all; an empty period
// is a valid report.
func (s *Service) buildSummary(ctx context.Context, q Query) (*Summary, error) {
	out := &Summary{
		From:       q.From.Format(time.DateOnly),
		To:         q.lastDay().Format(time.DateOnly),
		ObjectName: q.ObjectName,
	}

	agg, answered := s.aggregate(ctx, q)
	if answered && !agg.Empty() {
		out.Source = StrategyAggregate
		out.KPI = agg.KPI
		out.Materials = nonNil(agg.Materials)
		out.Objects = nonNil(agg.Objects)
		return out, nil
	}

	rows, source, err := s.facts.Resolve(ctx, q)
	if err != nil && !answered {
		return nil, err
	}
	out.Source = source
	out.KPI = BuildKPI(rows)
	out.Materials = BuildMaterialRows(rows)
	out.Objects = BuildObjectRows(rows)
	return out, nil
}

// aggregate tries the optimized procedure. It cannot filter by name, so a
// name-only filter skips it. answered is false when the procedure was
// skipped or failed.
func (s *Service) aggregate(ctx context.Context, q Query) (*AggregatedIssues, bool) {
	if q.NameOnly() || s.aggregateMissing.Load() {
		return nil, false
	}

	ctx, span := tracer.Start(ctx, "issues.strategy."+StrategyAggregate,
		trace.WithAttributes(attribute.Bool("filtered", q.Filtered())))
	defer span.End()

	var objectID *string
	if q.ObjectID != "" {
		id := q.ObjectID
		objectID = &id
	}

	start := time.Now()
	agg, err := s.backend.IssuedSummary(ctx, q.From, q.To, objectID)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, ErrProcedureMissing):
		s.aggregateMissing.Store(true)
		s.observer.ObserveStrategy(StrategyAggregate, OutcomeError, elapsed)
		logger.Warn(ctx, "summary procedure missing, disabled", "strategy", StrategyAggregate, "error", err)
		return nil, false
	case err != nil:
		span.RecordError(err)
		s.observer.ObserveStrategy(StrategyAggregate, OutcomeError, elapsed)
		logger.Warn(ctx, "fact strategy failed", "strategy", StrategyAggregate, "error", err)
		return nil, false
	case agg.Empty():
		s.observer.ObserveStrategy(StrategyAggregate, OutcomeEmpty, elapsed)
		return agg, true
	}
	s.observer.ObserveStrategy(StrategyAggregate, OutcomeRows, elapsed)
	return agg, true
}

// Discipline returns the work → level → material hierarchy with cost
// reconciliation against purchasing.
func (s *Service) Discipline(ctx context.Context, p Params) (*DisciplineReport, error) {
	q, sig, err := s.query(ctx, p)
	if err != nil {
		return nil, err
	}

	key := cache.Key(q.From.Format(time.DateOnly), q.To.Format(time.DateOnly), q.ObjectName, sig)
	return cache.GetOrCompute(ctx, s.caches.Discipline, key, func(ctx context.Context) (*DisciplineReport, error) {
		return s.buildDiscipline(ctx, q)
	})
}

func (s *Service) buildDiscipline(ctx context.Context, q Query) (*DisciplineReport, error) {
	rows, _, err := s.facts.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	var prices PriceBook
	if len(rows) > 0 {
		prices = s.pricing.PriceBook(ctx, rows)
	}
	purchased := s.pricing.PurchaseCostInPeriod(ctx, q.From, q.To, q.ObjectName, prices.ByCode)

	report := BuildDiscipline(rows, prices, purchased)
	report.From = q.From.Format(time.DateOnly)
	report.To = q.lastDay().Format(time.DateOnly)
	report.ObjectName = q.ObjectName
	return &report, nil
}

// query validates params and resolves the object filter through the
// period's options. It also returns the options signature used in keys.
func (s *Service) query(ctx context.Context, p Params) (Query, string, error) {
	p.From, p.To = dateOnly(p.From), dateOnly(p.To)
	if err := p.Validate(); err != nil {
		return Query{}, "", err
	}

	q := Query{From: p.From, To: p.To.AddDate(0, 0, 1)}
	if strings.TrimSpace(p.ObjectName) == "" {
		return q, "-", nil
	}
	q.ObjectName = CanonicalObjectName(p.ObjectName)

	opts, err := s.Options(ctx, p.From, p.To)
	if err != nil {
		logger.Warn(ctx, "report options unavailable, filtering by name", "error", err)
		return q, "-", nil
	}
	q.ObjectID = opts.ObjectID(q.ObjectName)
	return q, optionsSignature(opts), nil
}

func optionsSignature(opts *ReportOptions) string {
	pairs := make(map[string]string, len(opts.ObjectIDByName))
	for name, id := range opts.ObjectIDByName {
		if id == nil {
			pairs[name] = "null"
			continue
		}
		pairs[name] = *id
	}
	return cache.MapSignature(pairs)
}

func dateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
