package issues

import (
	"context"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"prorab/pkg/logger"
)

// DefaultPriceScanLimit bounds the purchase lines read for code averages.
const DefaultPriceScanLimit = 20_000

// PriceBook holds weighted-average unit prices. Request-line prices win
// over code averages.
type PriceBook struct {
	ByCode        map[string]decimal.Decimal
	ByRequestLine map[string]decimal.Decimal
}

// For returns the unit price of a fact row, zero when unpriced.
func (b PriceBook) For(row FactRow) decimal.Decimal {
	if row.RequestLineID != "" {
		if p, ok := b.ByRequestLine[row.RequestLineID]; ok && p.IsPositive() {
			return p
		}
	}
	if p, ok := b.ByCode[row.MaterialCode]; ok {
		return p
	}
	return decimal.Zero
}

// weightedAverage accumulates Σ(price·qty) and Σ(qty) per key.
type weightedAverage struct {
	amount map[string]decimal.Decimal
	qty    map[string]decimal.Decimal
}

func newWeightedAverage() *weightedAverage {
	return &weightedAverage{
		amount: make(map[string]decimal.Decimal),
		qty:    make(map[string]decimal.Decimal),
	}
}

func (w *weightedAverage) add(key string, price, qty float64) {
	if key == "" || price <= 0 || qty <= 0 {
		return
	}
	p := decimal.NewFromFloat(price)
	q := decimal.NewFromFloat(qty)
	w.amount[key] = w.amount[key].Add(p.Mul(q))
	w.qty[key] = w.qty[key].Add(q)
}

func (w *weightedAverage) result() map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(w.qty))
	for key, q := range w.qty {
		if q.IsZero() {
			continue
		}
		out[key] = w.amount[key].Div(q)
	}
	return out
}

// Reconciler derives unit prices and purchased cost from purchasing records.
type Reconciler struct {
	source    PurchaseSource
	scanLimit int
}

// NewReconciler creates a reconciler reading at most scanLimit purchase lines
// for code averages.
func NewReconciler(source PurchaseSource, scanLimit int) *Reconciler {
	if scanLimit <= 0 {
		scanLimit = DefaultPriceScanLimit
	}
	return &Reconciler{source: source, scanLimit: scanLimit}
}

// PriceByCode returns the weighted-average price per material code.
// A failed scan yields an empty map.
func (r *Reconciler) PriceByCode(ctx context.Context) map[string]decimal.Decimal {
	lines, err := r.source.PurchaseLines(ctx, PurchaseQuery{Limit: r.scanLimit})
	if err != nil {
		logger.Warn(ctx, "price scan failed", "error", err)
		return map[string]decimal.Decimal{}
	}

	avg := newWeightedAverage()
	for _, l := range lines {
		avg.add(normalizeCode(l.MaterialCode), l.Price, l.Quantity)
	}
	return avg.result()
}

// PriceByRequestLine returns weighted-average prices for the given request
// lines. Failed chunks are skipped.
func (r *Reconciler) PriceByRequestLine(ctx context.Context, ids []string) map[string]decimal.Decimal {
	avg := newWeightedAverage()
	ids = lo.Uniq(lo.Compact(ids))

	for i, chunk := range lo.Chunk(ids, LookupChunkSize) {
		lines, err := r.source.PurchaseLinesByRequestLines(ctx, chunk)
		if err != nil {
			logger.Warn(ctx, "request line prices failed", "chunk", i, "error", err)
			continue
		}
		for _, l := range lines {
			if l.RequestLineID == nil || normalizeCode(l.MaterialCode) == "" {
				continue
			}
			avg.add(strings.TrimSpace(*l.RequestLineID), l.Price, l.Quantity)
		}
	}
	return avg.result()
}

// PriceBook builds the prices needed for a set of fact rows.
func (r *Reconciler) PriceBook(ctx context.Context, rows []FactRow) PriceBook {
	ids := lo.FilterMap(rows, func(row FactRow, _ int) (string, bool) {
		return row.RequestLineID, row.RequestLineID != ""
	})
	return PriceBook{
		ByCode:        r.PriceByCode(ctx),
		ByRequestLine: r.PriceByRequestLine(ctx, ids),
	}
}

// PurchaseCostInPeriod sums purchased cost in [from, to). A non-empty
// objectName restricts lines to requests whose canonical object matches.
// Lines without their own price are valued at the code average.
func (r *Reconciler) PurchaseCostInPeriod(ctx context.Context, from, to time.Time, objectName string, priceByCode map[string]decimal.Decimal) decimal.Decimal {
	lines, err := r.source.PurchaseLines(ctx, PurchaseQuery{From: from, To: to})
	if err != nil {
		logger.Warn(ctx, "purchase cost scan failed", "error", err)
		return decimal.Zero
	}

	total := decimal.Zero
	for _, l := range lines {
		if objectName != "" && CanonicalObjectName(l.ObjectName) != objectName {
			continue
		}
		if l.Quantity <= 0 {
			continue
		}
		price := decimal.NewFromFloat(l.Price)
		if !price.IsPositive() {
			price = priceByCode[normalizeCode(l.MaterialCode)]
		}
		total = total.Add(price.Mul(decimal.NewFromFloat(l.Quantity)))
	}
	return total
}
