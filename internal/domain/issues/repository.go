package issues

import (
	"context"
	"time"
)

// The report core reads from a generic data backend through the capability
// shapes below. internal/infrastructure/storage/postgres/issue_repo implements
// all of them.

// AggregateSource is the optimized pre-aggregated procedure.
type AggregateSource interface {
	// IssuedSummary returns KPI, material and per-object rollups for [from, to).
	// objectID nil means all objects.
	IssuedSummary(ctx context.Context, from, to time.Time, objectID *string) (*AggregatedIssues, error)
}

// IssueHeader is an issuance document header from the normalized tables.
type IssueHeader struct {
	ID         string    `db:"id"`
	IssuedAt   time.Time `db:"issued_at"`
	ObjectID   *string   `db:"object_id"`
	ObjectName string    `db:"object_name"`
	WorkName   string    `db:"work_name"`
	Note       string    `db:"note"`
}

// IssueLine is one issued material line.
type IssueLine struct {
	IssueID       string  `db:"issue_id"`
	RequestLineID *string `db:"request_item_id"`
	MaterialCode  string  `db:"rik_code"`
	MaterialName  string  `db:"name_human"`
	Unit          string  `db:"uom"`
	Quantity      float64 `db:"qty"`
}

// RequestLineContext is the originating request context of an issued line.
type RequestLineContext struct {
	ID             string  `db:"id"`
	RequestID      string  `db:"request_id"`
	ObjectID       *string `db:"object_id"`
	ObjectTypeCode string  `db:"object_type_code"`
	WorkCode       string  `db:"system_code"`
	LevelCode      string  `db:"level_code"`
}

// RecordSource is the bulk record query capability used by the detailed join.
type RecordSource interface {
	IssueHeaders(ctx context.Context, from, to time.Time, offset, limit int) ([]IssueHeader, error)
	IssueLines(ctx context.Context, issueIDs []string) ([]IssueLine, error)
	RequestLines(ctx context.Context, ids []string) ([]RequestLineContext, error)
	ObjectNames(ctx context.Context, ids []string) (map[string]string, error)
}

// HeaderRecord is an issuance header returned by the header procedure.
type HeaderRecord struct {
	IssueID    string    `db:"issue_id"`
	IssuedAt   time.Time `db:"issued_at"`
	ObjectName string    `db:"object_name"`
	Note       string    `db:"note"`
}

// HeaderLineRecord is a line returned by the per-issue line procedure with
// request context already resolved server side (empty when no request).
type HeaderLineRecord struct {
	RequestLineID *string `db:"request_item_id"`
	ObjectName    string  `db:"object_name"`
	WorkName      string  `db:"work_name"`
	LevelName     string  `db:"level_name"`
	MaterialCode  string  `db:"rik_code"`
	MaterialName  string  `db:"name_human"`
	Unit          string  `db:"uom"`
	Quantity      float64 `db:"qty"`
}

// HeaderSource is the legacy header+lines remote procedure pair.
type HeaderSource interface {
	IssueHeadersByRange(ctx context.Context, from, to time.Time) ([]HeaderRecord, error)
	IssueLinesByIssue(ctx context.Context, issueID string) ([]HeaderLineRecord, error)
}

// ViewRow is one row of the flattened reporting view.
type ViewRow struct {
	IssueID       string    `db:"issue_id"`
	IssuedAt      time.Time `db:"issued_at"`
	ObjectName    string    `db:"object_name"`
	WorkName      string    `db:"work_name"`
	LevelName     string    `db:"level_name"`
	Note          string    `db:"note"`
	RequestLineID *string   `db:"request_item_id"`
	MaterialCode  string    `db:"rik_code"`
	MaterialName  string    `db:"name_human"`
	Unit          string    `db:"uom"`
	Quantity      float64   `db:"qty"`
}

// ViewSource is the denormalized reporting view, read page by page.
type ViewSource interface {
	IssueViewPage(ctx context.Context, from, to time.Time, offset, limit int) ([]ViewRow, error)
}

// LookupSource resolves codes to display names in a named collection.
// Unknown codes are simply absent from the result.
type LookupSource interface {
	LookupNames(ctx context.Context, collection string, codes []string) (map[string]string, error)
}

// IssueObject is one object that had issuances in a period.
type IssueObject struct {
	ObjectID   *string `db:"object_id"`
	ObjectName string  `db:"object_name"`
}

// OptionsSource lists objects with issuances in a period.
type OptionsSource interface {
	IssueObjects(ctx context.Context, from, to time.Time) ([]IssueObject, error)
}

// PurchaseLine is a priced purchase/allocation line.
type PurchaseLine struct {
	RequestLineID *string   `db:"request_item_id"`
	MaterialCode  string    `db:"rik_code"`
	Price         float64   `db:"price"`
	Quantity      float64   `db:"qty"`
	ObjectName    string    `db:"object_name"`
	PurchasedAt   time.Time `db:"purchased_at"`
}

// PurchaseQuery selects purchase lines. Zero times leave that bound open.
type PurchaseQuery struct {
	From  time.Time
	To    time.Time
	Limit int
}

// PurchaseSource reads purchasing records.
type PurchaseSource interface {
	PurchaseLines(ctx context.Context, q PurchaseQuery) ([]PurchaseLine, error)
	PurchaseLinesByRequestLines(ctx context.Context, requestLineIDs []string) ([]PurchaseLine, error)
}

// Backend groups every capability the report service needs.
type Backend interface {
	AggregateSource
	RecordSource
	HeaderSource
	ViewSource
	LookupSource
	OptionsSource
	PurchaseSource
}
