// Package issues builds warehouse issuance reports: which materials left the
// warehouse for which object, work type and floor, how much of it had no
// originating request, and how issued cost compares with purchasing.
package issues

import (
	"errors"
	"time"
)

// Bucket sentinels used when no source value resolves.
const (
	UnknownObject = "Без объекта"
	UnknownWork   = "Без вида работ"
	UnknownLevel  = "Без этажа"
)

var (
	// ErrCollectionMissing is returned by a LookupSource when the lookup
	// collection does not exist in the backend. The name resolver stops
	// querying such a collection.
	ErrCollectionMissing = errors.New("lookup collection missing")

	// ErrProcedureMissing is returned by a backend when a reporting
	// procedure does not exist. The caller stops invoking it.
	ErrProcedureMissing = errors.New("reporting procedure missing")

	// ErrSourcesUnavailable is returned when every fact source failed, as
	// opposed to every source answering with nothing.
	ErrSourcesUnavailable = errors.New("all fact sources failed")

	// ErrInvalidRange is returned when from is after to.
	ErrInvalidRange = errors.New("invalid report range")
)

// FactRow is one issued material line with its full context.
type FactRow struct {
	IssueID   string    `json:"issue_id"`
	IssueDate time.Time `json:"issue_date"`

	ObjectName string `json:"object_name"`
	WorkName   string `json:"work_name"`
	LevelName  string `json:"level_name"`

	// RequestLineID is empty for free issuances.
	RequestLineID    string `json:"request_line_id,omitempty"`
	IsWithoutRequest bool   `json:"is_without_request"`

	MaterialCode string  `json:"material_code"`
	MaterialName string  `json:"material_name"`
	Unit         string  `json:"unit"`
	Quantity     float64 `json:"quantity"`
}

// Params identifies one report request.
type Params struct {
	// From and To are calendar dates, both inclusive.
	From time.Time
	To   time.Time

	// ObjectName is the raw object filter; empty means all objects.
	ObjectName string
}

// Validate checks the period.
func (p Params) Validate() error {
	if p.From.IsZero() || p.To.IsZero() {
		return ErrInvalidRange
	}
	if p.From.After(p.To) {
		return ErrInvalidRange
	}
	return nil
}

// Query is what fact strategies receive: the period as a half-open
// interval plus the resolved object filter.
type Query struct {
	From time.Time // inclusive
	To   time.Time // exclusive

	// ObjectName is the canonical object filter, empty when unfiltered.
	ObjectName string
	// ObjectID is set when ObjectName maps to a known backend id.
	ObjectID string
}

// lastDay returns the inclusive end date.
func (q Query) lastDay() time.Time { return q.To.AddDate(0, 0, -1) }

// Filtered reports whether an object filter is set.
func (q Query) Filtered() bool { return q.ObjectName != "" }

// NameOnly reports whether the filter is a name without a backend id.
func (q Query) NameOnly() bool { return q.ObjectName != "" && q.ObjectID == "" }

// matchesObject checks a canonical object bucket against the filter.
func (q Query) matchesObject(object string) bool {
	return q.ObjectName == "" || q.ObjectName == object
}

// ReportOptions lists the objects that had issuances in a period.
type ReportOptions struct {
	Objects []string `json:"objects"`
	// ObjectIDByName maps canonical names to backend ids; nil means the
	// object is known only by name.
	ObjectIDByName map[string]*string `json:"object_id_by_name"`
}

// ObjectID returns the backend id for a canonical object name.
func (o *ReportOptions) ObjectID(name string) string {
	if o == nil {
		return ""
	}
	if id, ok := o.ObjectIDByName[name]; ok && id != nil {
		return *id
	}
	return ""
}

// --- Summary report ---

// KPI holds headline counts.
type KPI struct {
	IssuesTotal         int `json:"issues_total"`
	IssuesWithoutObject int `json:"issues_without_object"`
	ItemsTotal          int `json:"items_total"`
	ItemsWithoutRequest int `json:"items_without_request"`
}

// MaterialRow is one (code, unit) line of the material rollup.
type MaterialRow struct {
	MaterialCode       string  `json:"material_code"`
	MaterialName       string  `json:"material_name"`
	Unit               string  `json:"unit"`
	QtyTotal           float64 `json:"qty_total"`
	DocsCount          int     `json:"docs_count"`
	QtyWithoutRequest  float64 `json:"qty_without_request"`
	DocsWithoutRequest int     `json:"docs_without_request"`
}

// ObjectRow is one object bucket of the summary report.
type ObjectRow struct {
	ObjectName string  `json:"object_name"`
	DocsCount  int     `json:"docs_count"`
	Positions  int     `json:"positions"`
	QtyTotal   float64 `json:"qty_total"`
}

// Summary is the headline report: KPI, material rollup, per-object rollup.
type Summary struct {
	From       string        `json:"from"`
	To         string        `json:"to"`
	ObjectName string        `json:"object_name,omitempty"`
	Source     string        `json:"source"`
	KPI        KPI           `json:"kpi"`
	Materials  []MaterialRow `json:"materials"`
	Objects    []ObjectRow   `json:"objects"`
}

// AggregatedIssues is the pre-aggregated shape returned by the optimized
// backend procedure.
type AggregatedIssues struct {
	KPI       KPI
	Materials []MaterialRow
	Objects   []ObjectRow
}

// Empty reports whether the procedure returned nothing usable.
func (a *AggregatedIssues) Empty() bool {
	return a == nil || (a.KPI.IssuesTotal == 0 && len(a.Materials) == 0)
}

// --- Discipline report ---

// DisciplineMaterial is the leaf of the work → level → material hierarchy.
type DisciplineMaterial struct {
	MaterialCode    string  `json:"material_code"`
	MaterialName    string  `json:"material_name"`
	Unit            string  `json:"unit"`
	QtySum          float64 `json:"qty_sum"`
	DocsCount       int     `json:"docs_count"`
	LinesCount      int     `json:"lines_count"`
	UnitPrice       float64 `json:"unit_price"`
	AmountSum       float64 `json:"amount_sum"`
	ShareInLevelPct float64 `json:"share_in_level_pct"`
}

// DisciplineLevel groups materials of one floor/level inside a work type.
type DisciplineLevel struct {
	LevelName      string               `json:"level_name"`
	TotalQty       float64              `json:"total_qty"`
	TotalDocs      int                  `json:"total_docs"`
	TotalPositions int                  `json:"total_positions"`
	ReqPositions   int                  `json:"req_positions"`
	FreePositions  int                  `json:"free_positions"`
	ShareInWorkPct float64              `json:"share_in_work_pct"`
	Materials      []DisciplineMaterial `json:"materials"`
}

// DisciplineWork is the top level of the hierarchy.
type DisciplineWork struct {
	WorkTypeName   string            `json:"work_type_name"`
	TotalQty       float64           `json:"total_qty"`
	TotalDocs      int               `json:"total_docs"`
	TotalPositions int               `json:"total_positions"`
	ReqPositions   int               `json:"req_positions"`
	FreePositions  int               `json:"free_positions"`
	ShareTotalPct  float64           `json:"share_total_pct"`
	Levels         []DisciplineLevel `json:"levels"`
}

// DisciplineSummary carries totals and the cost reconciliation ratios.
type DisciplineSummary struct {
	TotalQty           float64 `json:"total_qty"`
	TotalDocs          int     `json:"total_docs"`
	TotalPositions     int     `json:"total_positions"`
	ReqPositions       int     `json:"req_positions"`
	FreePositions      int     `json:"free_positions"`
	IssueCostTotal     float64 `json:"issue_cost_total"`
	PurchaseCostTotal  float64 `json:"purchase_cost_total"`
	IssueToPurchasePct float64 `json:"issue_to_purchase_pct"`
	UnpricedIssuePct   float64 `json:"unpriced_issue_pct"`
}

// DisciplineReport is the hierarchical view.
type DisciplineReport struct {
	From       string            `json:"from"`
	To         string            `json:"to"`
	ObjectName string            `json:"object_name,omitempty"`
	Summary    DisciplineSummary `json:"summary"`
	Works      []DisciplineWork  `json:"works"`
}

// Payload bundles everything the aggregation engine derives from fact rows.
type Payload struct {
	KPI        KPI              `json:"kpi"`
	Materials  []MaterialRow    `json:"material_rows"`
	Objects    []ObjectRow      `json:"objects"`
	Discipline DisciplineReport `json:"discipline_rollup"`
}
