package issue_repo

import (
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"

	"prorab/internal/domain/issues"
)

func TestQueries_ToSql(t *testing.T) {
	repo := NewIssueRepo(nil)
	from := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		query    squirrel.Sqlizer
		wantSQL  string
		wantArgs []any
	}{
		{
			name:  "IssueHeaders",
			query: repo.issueHeadersQuery(from, to, 1000, 1000),
			wantSQL: "SELECT i.id, i.issued_at, i.object_id, COALESCE(i.object_name, '') AS object_name, " +
				"COALESCE(i.work_name, '') AS work_name, COALESCE(i.note, '') AS note FROM wh_issues i " +
				"WHERE i.issued_at >= $1 AND i.issued_at < $2 ORDER BY i.issued_at, i.id LIMIT 1000 OFFSET 1000",
			wantArgs: []any{from, to},
		},
		{
			name:  "IssueLines",
			query: repo.issueLinesQuery([]string{"I1", "I2"}),
			wantSQL: "SELECT li.issue_id, li.request_item_id, COALESCE(li.rik_code, '') AS rik_code, " +
				"COALESCE(li.name_human, '') AS name_human, COALESCE(li.uom, '') AS uom, " +
				"COALESCE(li.qty, 0)::float8 AS qty FROM wh_issue_items li " +
				"WHERE li.issue_id IN ($1,$2) ORDER BY li.issue_id, li.id",
			wantArgs: []any{"I1", "I2"},
		},
		{
			name:  "RequestLines",
			query: repo.requestLinesQuery([]string{"RL-1"}),
			wantSQL: "SELECT ri.id, ri.request_id, rq.object_id, COALESCE(rq.object_type_code, '') AS object_type_code, " +
				"COALESCE(rq.system_code, '') AS system_code, COALESCE(rq.level_code, '') AS level_code " +
				"FROM request_items ri JOIN requests rq ON rq.id = ri.request_id WHERE ri.id IN ($1)",
			wantArgs: []any{"RL-1"},
		},
		{
			name:  "IssueObjects",
			query: repo.issueObjectsQuery(from, to),
			wantSQL: "SELECT DISTINCT o.id::text AS object_id, COALESCE(o.name, i.object_name, '') AS object_name " +
				"FROM wh_issues i LEFT JOIN objects o ON o.id = i.object_id " +
				"WHERE i.issued_at >= $1 AND i.issued_at < $2",
			wantArgs: []any{from, to},
		},
		{
			name:  "LookupOverrides",
			query: repo.lookupQuery(lookupTables["rik_name_overrides"], []string{"MAT-1", "MAT-2"}),
			wantSQL: "SELECT upper(code) AS code, name_ru AS name FROM rik_name_overrides " +
				"WHERE upper(code) IN ($1,$2) AND name_ru IS NOT NULL",
			wantArgs: []any{"MAT-1", "MAT-2"},
		},
		{
			name:  "PurchaseLinesWindow",
			query: repo.purchaseLinesQuery(issues.PurchaseQuery{From: from, To: to}),
			wantSQL: "SELECT pi.request_item_id, upper(COALESCE(pi.rik_code, '')) AS rik_code, " +
				"COALESCE(pi.price, 0)::float8 AS price, COALESCE(pi.qty, 0)::float8 AS qty, " +
				"COALESCE(o.name, '') AS object_name, p.created_at AS purchased_at " +
				"FROM purchase_items pi JOIN purchases p ON p.id = pi.purchase_id " +
				"LEFT JOIN request_items ri ON ri.id = pi.request_item_id " +
				"LEFT JOIN requests rq ON rq.id = ri.request_id " +
				"LEFT JOIN objects o ON o.id = rq.object_id " +
				"WHERE pi.price > $1 AND p.created_at >= $2 AND p.created_at < $3 " +
				"ORDER BY p.created_at DESC, pi.id",
			wantArgs: []any{0, from, to},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.query.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}

			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("Args count mismatch\nwant: %d\ngot:  %d", len(tt.wantArgs), len(args))
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("Arg %d mismatch\nwant: %v\ngot:  %v", i, tt.wantArgs[i], args[i])
				}
			}
		})
	}
}

func TestPurchaseLinesQuery_Limit(t *testing.T) {
	repo := NewIssueRepo(nil)

	sql, args, err := repo.purchaseLinesQuery(issues.PurchaseQuery{Limit: 20000}).ToSql()
	if err != nil {
		t.Fatalf("ToSql failed: %v", err)
	}
	want := "WHERE pi.price > $1 ORDER BY p.created_at DESC, pi.id LIMIT 20000"
	if !strings.HasSuffix(sql, want) {
		t.Errorf("unexpected tail\nwant suffix: %s\ngot: %s", want, sql)
	}
	if len(args) != 1 {
		t.Errorf("Args count mismatch: got %d", len(args))
	}
}

func TestLookupTables_CoverCollections(t *testing.T) {
	for _, kind := range []string{"catalog_items", "rik_items", "rik_name_overrides", "ref_systems", "ref_levels", "ref_object_types"} {
		if _, ok := lookupTables[kind]; !ok {
			t.Errorf("lookup table %q not configured", kind)
		}
	}
}
