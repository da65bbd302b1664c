// Package issue_repo provides the PostgreSQL backend for issuance reports.
// It implements every capability shape of issues.Backend over the warehouse
// tables, views and procedures.
package issue_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"prorab/internal/domain/issues"
	"prorab/internal/infrastructure/storage/postgres"
)

// IssueRepo implements issues.Backend.
type IssueRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ issues.Backend = (*IssueRepo)(nil)

// NewIssueRepo creates a new issuance report repository.
func NewIssueRepo(txm *postgres.TxManager) *IssueRepo {
	return &IssueRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// selectAll runs a builder inside a traced read-only transaction.
func selectAll[T any](ctx context.Context, r *IssueRepo, name string, q squirrel.Sqlizer) ([]T, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build %s query: %w", name, err)
	}
	return selectRaw[T](ctx, r, name, sql, args...)
}

func selectRaw[T any](ctx context.Context, r *IssueRepo, name, sql string, args ...any) ([]T, error) {
	var items []T
	err := r.txm.ReadOnlyWithName(ctx, name, func(ctx context.Context) error {
		return pgxscanSelect(ctx, r, &items, sql, args...)
	})
	if err != nil {
		return nil, classify(name, err)
	}
	return items, nil
}

// classify reports a missing procedure as issues.ErrProcedureMissing and
// maps everything else to an AppError.
func classify(name string, err error) error {
	if postgres.IsUndefinedFunction(err) {
		return fmt.Errorf("%s: %w", name, issues.ErrProcedureMissing)
	}
	return fmt.Errorf("%s: %w", name, postgres.ClassifyError(err))
}

// --- Optimized aggregate procedure ---

const issuedSummarySQL = `SELECT wh_report_issued_summary_fast($1::timestamptz, $2::timestamptz, $3::uuid)`

type aggregatedPayload struct {
	KPI       issues.KPI           `json:"kpi"`
	Materials []issues.MaterialRow `json:"materials"`
	Objects   []issues.ObjectRow   `json:"objects"`
}

// IssuedSummary calls the pre-aggregated summary procedure.
func (r *IssueRepo) IssuedSummary(ctx context.Context, from, to time.Time, objectID *string) (*issues.AggregatedIssues, error) {
	var raw []byte
	err := r.txm.ReadOnlyWithName(ctx, "issued_summary", func(ctx context.Context) error {
		return r.txm.GetQuerier(ctx).QueryRow(ctx, issuedSummarySQL, from, to, objectID).Scan(&raw)
	})
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && len(raw) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("issued_summary", err)
	}

	var payload aggregatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode issued summary: %w", err)
	}
	return &issues.AggregatedIssues{
		KPI:       payload.KPI,
		Materials: payload.Materials,
		Objects:   payload.Objects,
	}, nil
}

// --- Bulk record queries (detailed join) ---

func (r *IssueRepo) issueHeadersQuery(from, to time.Time, offset, limit int) squirrel.SelectBuilder {
	return r.builder.
		Select(
			"i.id",
			"i.issued_at",
			"i.object_id",
			"COALESCE(i.object_name, '') AS object_name",
			"COALESCE(i.work_name, '') AS work_name",
			"COALESCE(i.note, '') AS note",
		).
		From("wh_issues i").
		Where(squirrel.GtOrEq{"i.issued_at": from}).
		Where(squirrel.Lt{"i.issued_at": to}).
		OrderBy("i.issued_at", "i.id").
		Offset(uint64(offset)).
		Limit(uint64(limit))
}

// IssueHeaders reads one page of issue headers in [from, to).
func (r *IssueRepo) IssueHeaders(ctx context.Context, from, to time.Time, offset, limit int) ([]issues.IssueHeader, error) {
	return selectAll[issues.IssueHeader](ctx, r, "issue_headers", r.issueHeadersQuery(from, to, offset, limit))
}

func (r *IssueRepo) issueLinesQuery(issueIDs []string) squirrel.SelectBuilder {
	return r.builder.
		Select(
			"li.issue_id",
			"li.request_item_id",
			"COALESCE(li.rik_code, '') AS rik_code",
			"COALESCE(li.name_human, '') AS name_human",
			"COALESCE(li.uom, '') AS uom",
			"COALESCE(li.qty, 0)::float8 AS qty",
		).
		From("wh_issue_items li").
		Where(squirrel.Eq{"li.issue_id": issueIDs}).
		OrderBy("li.issue_id", "li.id")
}

// IssueLines reads the lines of the given issues.
func (r *IssueRepo) IssueLines(ctx context.Context, issueIDs []string) ([]issues.IssueLine, error) {
	if len(issueIDs) == 0 {
		return nil, nil
	}
	return selectAll[issues.IssueLine](ctx, r, "issue_lines", r.issueLinesQuery(issueIDs))
}

func (r *IssueRepo) requestLinesQuery(ids []string) squirrel.SelectBuilder {
	return r.builder.
		Select(
			"ri.id",
			"ri.request_id",
			"rq.object_id",
			"COALESCE(rq.object_type_code, '') AS object_type_code",
			"COALESCE(rq.system_code, '') AS system_code",
			"COALESCE(rq.level_code, '') AS level_code",
		).
		From("request_items ri").
		Join("requests rq ON rq.id = ri.request_id").
		Where(squirrel.Eq{"ri.id": ids})
}

// RequestLines reads the originating request context of request lines.
func (r *IssueRepo) RequestLines(ctx context.Context, ids []string) ([]issues.RequestLineContext, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return selectAll[issues.RequestLineContext](ctx, r, "request_lines", r.requestLinesQuery(ids))
}

type namedRow struct {
	Code string `db:"code"`
	Name string `db:"name"`
}

// ObjectNames maps object ids to names.
func (r *IssueRepo) ObjectNames(ctx context.Context, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	q := r.builder.
		Select("id::text AS code", "COALESCE(name, '') AS name").
		From("objects").
		Where(squirrel.Eq{"id": ids})
	rows, err := selectAll[namedRow](ctx, r, "object_names", q)
	if err != nil {
		return nil, err
	}
	return toNameMap(rows), nil
}

// --- Header + lines procedures ---

const (
	issueHeadersByRangeSQL = `
		SELECT issue_id, issued_at, COALESCE(object_name, '') AS object_name, COALESCE(note, '') AS note
		FROM wh_issue_headers($1::timestamptz, $2::timestamptz)
		ORDER BY issued_at, issue_id`

	issueLinesByIssueSQL = `
		SELECT request_item_id,
			COALESCE(object_name, '') AS object_name,
			COALESCE(work_name, '') AS work_name,
			COALESCE(level_name, '') AS level_name,
			COALESCE(rik_code, '') AS rik_code,
			COALESCE(name_human, '') AS name_human,
			COALESCE(uom, '') AS uom,
			COALESCE(qty, 0)::float8 AS qty
		FROM wh_issue_lines($1::uuid)`
)

// IssueHeadersByRange calls the header procedure.
func (r *IssueRepo) IssueHeadersByRange(ctx context.Context, from, to time.Time) ([]issues.HeaderRecord, error) {
	return selectRaw[issues.HeaderRecord](ctx, r, "issue_headers_by_range", issueHeadersByRangeSQL, from, to)
}

// IssueLinesByIssue calls the per-issue line procedure.
func (r *IssueRepo) IssueLinesByIssue(ctx context.Context, issueID string) ([]issues.HeaderLineRecord, error) {
	return selectRaw[issues.HeaderLineRecord](ctx, r, "issue_lines_by_issue", issueLinesByIssueSQL, issueID)
}

// --- Denormalized view ---

func (r *IssueRepo) issueViewQuery(from, to time.Time, offset, limit int) squirrel.SelectBuilder {
	return r.builder.
		Select(
			"issue_id",
			"issued_at",
			"COALESCE(object_name, '') AS object_name",
			"COALESCE(work_name, '') AS work_name",
			"COALESCE(level_name, '') AS level_name",
			"COALESCE(note, '') AS note",
			"request_item_id",
			"COALESCE(rik_code, '') AS rik_code",
			"COALESCE(name_human, '') AS name_human",
			"COALESCE(uom, '') AS uom",
			"COALESCE(qty, 0)::float8 AS qty",
		).
		From("v_wh_issue_report_flat").
		Where(squirrel.GtOrEq{"issued_at": from}).
		Where(squirrel.Lt{"issued_at": to}).
		OrderBy("issued_at", "issue_id", "line_id").
		Offset(uint64(offset)).
		Limit(uint64(limit))
}

// IssueViewPage reads one page of the flattened reporting view.
func (r *IssueRepo) IssueViewPage(ctx context.Context, from, to time.Time, offset, limit int) ([]issues.ViewRow, error) {
	return selectAll[issues.ViewRow](ctx, r, "issue_view", r.issueViewQuery(from, to, offset, limit))
}

// --- Options ---

func (r *IssueRepo) issueObjectsQuery(from, to time.Time) squirrel.SelectBuilder {
	return r.builder.
		Select(
			"o.id::text AS object_id",
			"COALESCE(o.name, i.object_name, '') AS object_name",
		).
		Distinct().
		From("wh_issues i").
		LeftJoin("objects o ON o.id = i.object_id").
		Where(squirrel.GtOrEq{"i.issued_at": from}).
		Where(squirrel.Lt{"i.issued_at": to})
}

// IssueObjects lists the objects that had issuances in [from, to).
func (r *IssueRepo) IssueObjects(ctx context.Context, from, to time.Time) ([]issues.IssueObject, error) {
	return selectAll[issues.IssueObject](ctx, r, "issue_objects", r.issueObjectsQuery(from, to))
}

func pgxscanSelect(ctx context.Context, r *IssueRepo, dst any, sql string, args ...any) error {
	return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...)
}

func toNameMap(rows []namedRow) map[string]string {
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Code] = row.Name
	}
	return out
}
