package issue_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"

	"prorab/internal/domain/issues"
	"prorab/internal/infrastructure/storage/postgres"
)

// lookupTable describes where a named collection keeps code and name.
type lookupTable struct {
	table    string
	codeExpr string
	nameExpr string
}

var lookupTables = map[string]lookupTable{
	"catalog_items":      {table: "catalog_items", codeExpr: "rik_code", nameExpr: "name_human"},
	"rik_items":          {table: "rik_items", codeExpr: "rik_code", nameExpr: "COALESCE(name_human_ru, name_human)"},
	"rik_name_overrides": {table: "rik_name_overrides", codeExpr: "code", nameExpr: "name_ru"},
	"ref_systems":        {table: "ref_systems", codeExpr: "code", nameExpr: "COALESCE(name_human_ru, alias_ru, name)"},
	"ref_levels":         {table: "ref_levels", codeExpr: "code", nameExpr: "COALESCE(name_human_ru, name)"},
	"ref_object_types":   {table: "ref_object_types", codeExpr: "code", nameExpr: "COALESCE(name_human_ru, name)"},
}

func (r *IssueRepo) lookupQuery(t lookupTable, codes []string) squirrel.SelectBuilder {
	code := "upper(" + t.codeExpr + ")"
	return r.builder.
		Select(code+" AS code", t.nameExpr+" AS name").
		From(t.table).
		Where(squirrel.Eq{code: codes}).
		Where(squirrel.Expr(t.nameExpr + " IS NOT NULL"))
}

// LookupNames resolves upper-cased codes in one named collection. A missing
// table is reported as issues.ErrCollectionMissing.
func (r *IssueRepo) LookupNames(ctx context.Context, collection string, codes []string) (map[string]string, error) {
	t, ok := lookupTables[collection]
	if !ok {
		return nil, fmt.Errorf("%s: %w", collection, issues.ErrCollectionMissing)
	}
	if len(codes) == 0 {
		return map[string]string{}, nil
	}

	sql, args, err := r.lookupQuery(t, codes).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build lookup query: %w", err)
	}

	var rows []namedRow
	err = r.txm.ReadOnlyWithName(ctx, "lookup_"+collection, func(ctx context.Context) error {
		return pgxscanSelect(ctx, r, &rows, sql, args...)
	})
	if postgres.IsUndefinedTable(err) {
		return nil, fmt.Errorf("%s: %w", collection, issues.ErrCollectionMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", collection, postgres.ClassifyError(err))
	}
	return toNameMap(rows), nil
}

// --- Purchases ---

func (r *IssueRepo) purchaseLinesQuery(q issues.PurchaseQuery) squirrel.SelectBuilder {
	sb := r.builder.
		Select(
			"pi.request_item_id",
			"upper(COALESCE(pi.rik_code, '')) AS rik_code",
			"COALESCE(pi.price, 0)::float8 AS price",
			"COALESCE(pi.qty, 0)::float8 AS qty",
			"COALESCE(o.name, '') AS object_name",
			"p.created_at AS purchased_at",
		).
		From("purchase_items pi").
		Join("purchases p ON p.id = pi.purchase_id").
		LeftJoin("request_items ri ON ri.id = pi.request_item_id").
		LeftJoin("requests rq ON rq.id = ri.request_id").
		LeftJoin("objects o ON o.id = rq.object_id").
		Where(squirrel.Gt{"pi.price": 0}).
		OrderBy("p.created_at DESC", "pi.id")
	if !q.From.IsZero() {
		sb = sb.Where(squirrel.GtOrEq{"p.created_at": q.From})
	}
	if !q.To.IsZero() {
		sb = sb.Where(squirrel.Lt{"p.created_at": q.To})
	}
	if q.Limit > 0 {
		sb = sb.Limit(uint64(q.Limit))
	}
	return sb
}

// PurchaseLines reads priced purchase lines, newest first.
func (r *IssueRepo) PurchaseLines(ctx context.Context, q issues.PurchaseQuery) ([]issues.PurchaseLine, error) {
	return selectAll[issues.PurchaseLine](ctx, r, "purchase_lines", r.purchaseLinesQuery(q))
}

func (r *IssueRepo) purchaseByRequestLinesQuery(ids []string) squirrel.SelectBuilder {
	return r.purchaseLinesQuery(issues.PurchaseQuery{}).
		Where(squirrel.Eq{"pi.request_item_id": ids})
}

// PurchaseLinesByRequestLines reads the purchases allocated to request lines.
func (r *IssueRepo) PurchaseLinesByRequestLines(ctx context.Context, ids []string) ([]issues.PurchaseLine, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return selectAll[issues.PurchaseLine](ctx, r, "purchase_by_request_lines", r.purchaseByRequestLinesQuery(ids))
}
