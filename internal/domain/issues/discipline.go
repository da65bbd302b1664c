package issues

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// positionStats accumulates the counters shared by every discipline node.
type positionStats struct {
	qty       decimal.Decimal
	docs      idSet
	positions int
	req       int
	free      int
}

func newPositionStats() positionStats { return positionStats{docs: idSet{}} }

func (s *positionStats) add(r FactRow) {
	s.qty = s.qty.Add(qty(r.Quantity))
	s.docs.add(r.IssueID)
	s.positions++
	if r.IsWithoutRequest {
		s.free++
	} else {
		s.req++
	}
}

type disciplineMaterialAcc struct {
	positionStats
	code, name, unit string
	amount           decimal.Decimal
}

type disciplineLevelAcc struct {
	positionStats
	name      string
	materials map[materialKey]*disciplineMaterialAcc
}

type disciplineWorkAcc struct {
	positionStats
	name   string
	levels map[string]*disciplineLevelAcc
}

// BuildDiscipline builds the work → level → material hierarchy. Amounts use
// the price book; purchaseCost feeds the issue-to-purchase ratio.
func BuildDiscipline(rows []FactRow, prices PriceBook, purchaseCost decimal.Decimal) DisciplineReport {
	total := newPositionStats()
	issueCost := decimal.Zero
	unpriced := 0

	works := make(map[string]*disciplineWorkAcc)
	for _, r := range rows {
		w, ok := works[r.WorkName]
		if !ok {
			w = &disciplineWorkAcc{
				positionStats: newPositionStats(),
				name:          r.WorkName,
				levels:        make(map[string]*disciplineLevelAcc),
			}
			works[r.WorkName] = w
		}
		l, ok := w.levels[r.LevelName]
		if !ok {
			l = &disciplineLevelAcc{
				positionStats: newPositionStats(),
				name:          r.LevelName,
				materials:     make(map[materialKey]*disciplineMaterialAcc),
			}
			w.levels[r.LevelName] = l
		}
		key := materialKey{code: r.MaterialCode, unit: r.Unit}
		m, ok := l.materials[key]
		if !ok {
			m = &disciplineMaterialAcc{
				positionStats: newPositionStats(),
				code:          r.MaterialCode,
				name:          r.MaterialName,
				unit:          r.Unit,
			}
			l.materials[key] = m
		}

		price := prices.For(r)
		amount := price.Mul(qty(r.Quantity))
		if price.IsZero() {
			unpriced++
		}

		total.add(r)
		w.add(r)
		l.add(r)
		m.add(r)
		m.amount = m.amount.Add(amount)
		issueCost = issueCost.Add(amount)
	}

	report := DisciplineReport{
		Summary: DisciplineSummary{
			TotalQty:           total.qty.InexactFloat64(),
			TotalDocs:          len(total.docs),
			TotalPositions:     total.positions,
			ReqPositions:       total.req,
			FreePositions:      total.free,
			IssueCostTotal:     issueCost.Round(2).InexactFloat64(),
			PurchaseCostTotal:  purchaseCost.Round(2).InexactFloat64(),
			IssueToPurchasePct: pct(issueCost, purchaseCost),
			UnpricedIssuePct:   pct(decimal.NewFromInt(int64(unpriced)), decimal.NewFromInt(int64(total.positions))),
		},
		Works: make([]DisciplineWork, 0, len(works)),
	}

	for _, w := range works {
		report.Works = append(report.Works, w.build(total.qty))
	}
	slices.SortFunc(report.Works, func(a, b DisciplineWork) int {
		return cmp.Or(cmp.Compare(b.TotalQty, a.TotalQty), cmp.Compare(a.WorkTypeName, b.WorkTypeName))
	})
	return report
}

func (w *disciplineWorkAcc) build(totalQty decimal.Decimal) DisciplineWork {
	out := DisciplineWork{
		WorkTypeName:   w.name,
		TotalQty:       w.qty.InexactFloat64(),
		TotalDocs:      len(w.docs),
		TotalPositions: w.positions,
		ReqPositions:   w.req,
		FreePositions:  w.free,
		ShareTotalPct:  pct(w.qty, totalQty),
		Levels:         make([]DisciplineLevel, 0, len(w.levels)),
	}
	for _, l := range w.levels {
		out.Levels = append(out.Levels, l.build(w.qty))
	}
	slices.SortFunc(out.Levels, func(a, b DisciplineLevel) int {
		return cmp.Or(cmp.Compare(b.TotalQty, a.TotalQty), cmp.Compare(a.LevelName, b.LevelName))
	})
	return out
}

func (l *disciplineLevelAcc) build(workQty decimal.Decimal) DisciplineLevel {
	out := DisciplineLevel{
		LevelName:      l.name,
		TotalQty:       l.qty.InexactFloat64(),
		TotalDocs:      len(l.docs),
		TotalPositions: l.positions,
		ReqPositions:   l.req,
		FreePositions:  l.free,
		ShareInWorkPct: pct(l.qty, workQty),
		Materials:      make([]DisciplineMaterial, 0, len(l.materials)),
	}
	for _, m := range l.materials {
		unitPrice := decimal.Zero
		if !m.qty.IsZero() {
			unitPrice = m.amount.Div(m.qty)
		}
		out.Materials = append(out.Materials, DisciplineMaterial{
			MaterialCode:    m.code,
			MaterialName:    m.name,
			Unit:            m.unit,
			QtySum:          m.qty.InexactFloat64(),
			DocsCount:       len(m.docs),
			LinesCount:      m.positions,
			UnitPrice:       unitPrice.Round(2).InexactFloat64(),
			AmountSum:       m.amount.Round(2).InexactFloat64(),
			ShareInLevelPct: pct(m.qty, l.qty),
		})
	}
	slices.SortFunc(out.Materials, func(a, b DisciplineMaterial) int {
		return cmp.Or(
			cmp.Compare(b.QtySum, a.QtySum),
			cmp.Compare(a.MaterialCode, b.MaterialCode),
			cmp.Compare(a.Unit, b.Unit),
		)
	})
	return out
}
