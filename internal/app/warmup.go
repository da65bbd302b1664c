package app

import (
	"context"
	"time"

	appctx "prorab/internal/core/context"
	"prorab/internal/domain/issues"
	"prorab/pkg/logger"
)

// Reports is the part of the report service the warmer drives.
type Reports interface {
	Options(ctx context.Context, from, to time.Time) (*issues.ReportOptions, error)
	Summary(ctx context.Context, p issues.Params) (*issues.Summary, error)
	Discipline(ctx context.Context, p issues.Params) (*issues.DisciplineReport, error)
}

// Warmer periodically computes the current month's unfiltered reports so the
// caches stay hot.
type Warmer struct {
	reports  Reports
	interval time.Duration
	now      func() time.Time
	log      *logger.Logger
}

// NewWarmer creates a warmer.
func NewWarmer(reports Reports, interval time.Duration, log *logger.Logger) *Warmer {
	return &Warmer{
		reports:  reports,
		interval: interval,
		now:      time.Now,
		log:      log.WithComponent("warmup"),
	}
}

// Run warms once immediately and then every interval until ctx is done.
func (w *Warmer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.WarmOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.WarmOnce(ctx)
		}
	}
}

// WarmOnce computes options, summary and discipline for the current month.
// Each pass gets its own trace ids. Failures are logged; the next tick
// retries.
func (w *Warmer) WarmOnce(ctx context.Context) {
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, w.log)
	log := w.log.WithContext(ctx)

	from, to := CurrentMonth(w.now())
	p := issues.Params{From: from, To: to}
	start := time.Now()

	if _, err := w.reports.Options(ctx, from, to); err != nil {
		log.Warnw("warm options failed", "error", err)
	}
	summary, err := w.reports.Summary(ctx, p)
	if err != nil {
		log.Warnw("warm summary failed", "error", err)
	}
	if _, err := w.reports.Discipline(ctx, p); err != nil {
		log.Warnw("warm discipline failed", "error", err)
	}

	kv := []any{"from", from.Format(time.DateOnly), "to", to.Format(time.DateOnly), "elapsed_ms", time.Since(start).Milliseconds()}
	if summary != nil {
		kv = append(kv, "source", summary.Source)
	}
	log.Infow("report caches warmed", kv...)
}

// CurrentMonth returns the first day of now's month and now's date.
func CurrentMonth(now time.Time) (from, to time.Time) {
	y, m, d := now.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
