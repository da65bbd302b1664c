package issues

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// pct returns part/whole as a percentage with two decimals, rounded half
// away from zero. A zero whole gives 0.
func pct(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(hundred).Round(2).InexactFloat64()
}

func qty(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

// idSet counts distinct issue ids.
type idSet map[string]struct{}

func (s idSet) add(id string) { s[id] = struct{}{} }

// BuildKPI computes the headline counts.
func BuildKPI(rows []FactRow) KPI {
	issues := idSet{}
	withoutObject := idSet{}
	var kpi KPI
	for _, r := range rows {
		issues.add(r.IssueID)
		if r.ObjectName == UnknownObject {
			withoutObject.add(r.IssueID)
		}
		if r.IsWithoutRequest {
			kpi.ItemsWithoutRequest++
		}
	}
	kpi.IssuesTotal = len(issues)
	kpi.IssuesWithoutObject = len(withoutObject)
	kpi.ItemsTotal = len(rows)
	return kpi
}

type materialKey struct {
	code string
	unit string
}

type materialAcc struct {
	row      MaterialRow
	qty      decimal.Decimal
	free     decimal.Decimal
	docs     idSet
	freeDocs idSet
}

// BuildMaterialRows groups rows by (code, unit), sorted by quantity desc.
func BuildMaterialRows(rows []FactRow) []MaterialRow {
	accs := make(map[materialKey]*materialAcc)
	for _, r := range rows {
		key := materialKey{code: r.MaterialCode, unit: r.Unit}
		acc, ok := accs[key]
		if !ok {
			acc = &materialAcc{
				row:      MaterialRow{MaterialCode: r.MaterialCode, MaterialName: r.MaterialName, Unit: r.Unit},
				docs:     idSet{},
				freeDocs: idSet{},
			}
			accs[key] = acc
		}
		acc.qty = acc.qty.Add(qty(r.Quantity))
		acc.docs.add(r.IssueID)
		if r.IsWithoutRequest {
			acc.free = acc.free.Add(qty(r.Quantity))
			acc.freeDocs.add(r.IssueID)
		}
	}

	out := make([]MaterialRow, 0, len(accs))
	for _, acc := range accs {
		row := acc.row
		row.QtyTotal = acc.qty.InexactFloat64()
		row.DocsCount = len(acc.docs)
		row.QtyWithoutRequest = acc.free.InexactFloat64()
		row.DocsWithoutRequest = len(acc.freeDocs)
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b MaterialRow) int {
		return cmp.Or(
			cmp.Compare(b.QtyTotal, a.QtyTotal),
			cmp.Compare(a.MaterialCode, b.MaterialCode),
			cmp.Compare(a.Unit, b.Unit),
		)
	})
	return out
}

// BuildObjectRows groups rows by canonical object, sorted by quantity desc.
func BuildObjectRows(rows []FactRow) []ObjectRow {
	type acc struct {
		positions int
		qty       decimal.Decimal
		docs      idSet
	}
	accs := make(map[string]*acc)
	for _, r := range rows {
		a, ok := accs[r.ObjectName]
		if !ok {
			a = &acc{docs: idSet{}}
			accs[r.ObjectName] = a
		}
		a.positions++
		a.qty = a.qty.Add(qty(r.Quantity))
		a.docs.add(r.IssueID)
	}

	out := make([]ObjectRow, 0, len(accs))
	for name, a := range accs {
		out = append(out, ObjectRow{
			ObjectName: name,
			DocsCount:  len(a.docs),
			Positions:  a.positions,
			QtyTotal:   a.qty.InexactFloat64(),
		})
	}
	slices.SortFunc(out, func(a, b ObjectRow) int {
		return cmp.Or(cmp.Compare(b.QtyTotal, a.QtyTotal), cmp.Compare(a.ObjectName, b.ObjectName))
	})
	return out
}

// BuildPayload derives KPI, material, object and discipline rollups from
// fact rows. The discipline rollup carries no purchased cost.
func BuildPayload(rows []FactRow, prices PriceBook) Payload {
	return Payload{
		KPI:        BuildKPI(rows),
		Materials:  BuildMaterialRows(rows),
		Objects:    BuildObjectRows(rows),
		Discipline: BuildDiscipline(rows, prices, decimal.Zero),
	}
}
