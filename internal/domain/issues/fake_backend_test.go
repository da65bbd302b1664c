package issues

import (
	"context"
	"sync"
	"time"

	"prorab/pkg/logger"
)

// fakeBackend implements Backend with overridable functions. Unset
// functions return empty results.
type fakeBackend struct {
	mu    sync.Mutex
	calls map[string]int

	issuedSummary  func(ctx context.Context, from, to time.Time, objectID *string) (*AggregatedIssues, error)
	issueHeaders   func(ctx context.Context, from, to time.Time, offset, limit int) ([]IssueHeader, error)
	issueLines     func(ctx context.Context, ids []string) ([]IssueLine, error)
	requestLines   func(ctx context.Context, ids []string) ([]RequestLineContext, error)
	objectNames    func(ctx context.Context, ids []string) (map[string]string, error)
	headersByRange func(ctx context.Context, from, to time.Time) ([]HeaderRecord, error)
	linesByIssue   func(ctx context.Context, issueID string) ([]HeaderLineRecord, error)
	viewPage       func(ctx context.Context, from, to time.Time, offset, limit int) ([]ViewRow, error)
	lookupNames    func(ctx context.Context, collection string, codes []string) (map[string]string, error)
	issueObjects   func(ctx context.Context, from, to time.Time) ([]IssueObject, error)
	purchaseLines  func(ctx context.Context, q PurchaseQuery) ([]PurchaseLine, error)
	purchaseByReq  func(ctx context.Context, ids []string) ([]PurchaseLine, error)
}

var _ Backend = (*fakeBackend)(nil)

func (f *fakeBackend) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeBackend) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeBackend) IssuedSummary(ctx context.Context, from, to time.Time, objectID *string) (*AggregatedIssues, error) {
	f.record("IssuedSummary")
	if f.issuedSummary == nil {
		return nil, nil
	}
	return f.issuedSummary(ctx, from, to, objectID)
}

func (f *fakeBackend) IssueHeaders(ctx context.Context, from, to time.Time, offset, limit int) ([]IssueHeader, error) {
	f.record("IssueHeaders")
	if f.issueHeaders == nil {
		return nil, nil
	}
	return f.issueHeaders(ctx, from, to, offset, limit)
}

func (f *fakeBackend) IssueLines(ctx context.Context, ids []string) ([]IssueLine, error) {
	f.record("IssueLines")
	if f.issueLines == nil {
		return nil, nil
	}
	return f.issueLines(ctx, ids)
}

func (f *fakeBackend) RequestLines(ctx context.Context, ids []string) ([]RequestLineContext, error) {
	f.record("RequestLines")
	if f.requestLines == nil {
		return nil, nil
	}
	return f.requestLines(ctx, ids)
}

func (f *fakeBackend) ObjectNames(ctx context.Context, ids []string) (map[string]string, error) {
	f.record("ObjectNames")
	if f.objectNames == nil {
		return map[string]string{}, nil
	}
	return f.objectNames(ctx, ids)
}

func (f *fakeBackend) IssueHeadersByRange(ctx context.Context, from, to time.Time) ([]HeaderRecord, error) {
	f.record("IssueHeadersByRange")
	if f.headersByRange == nil {
		return nil, nil
	}
	return f.headersByRange(ctx, from, to)
}

func (f *fakeBackend) IssueLinesByIssue(ctx context.Context, issueID string) ([]HeaderLineRecord, error) {
	f.record("IssueLinesByIssue")
	if f.linesByIssue == nil {
		return nil, nil
	}
	return f.linesByIssue(ctx, issueID)
}

func (f *fakeBackend) IssueViewPage(ctx context.Context, from, to time.Time, offset, limit int) ([]ViewRow, error) {
	f.record("IssueViewPage")
	if f.viewPage == nil {
		return nil, nil
	}
	return f.viewPage(ctx, from, to, offset, limit)
}

func (f *fakeBackend) LookupNames(ctx context.Context, collection string, codes []string) (map[string]string, error) {
	f.record("LookupNames:" + collection)
	if f.lookupNames == nil {
		return map[string]string{}, nil
	}
	return f.lookupNames(ctx, collection, codes)
}

func (f *fakeBackend) IssueObjects(ctx context.Context, from, to time.Time) ([]IssueObject, error) {
	f.record("IssueObjects")
	if f.issueObjects == nil {
		return nil, nil
	}
	return f.issueObjects(ctx, from, to)
}

func (f *fakeBackend) PurchaseLines(ctx context.Context, q PurchaseQuery) ([]PurchaseLine, error) {
	f.record("PurchaseLines")
	if f.purchaseLines == nil {
		return nil, nil
	}
	return f.purchaseLines(ctx, q)
}

func (f *fakeBackend) PurchaseLinesByRequestLines(ctx context.Context, ids []string) ([]PurchaseLine, error) {
	f.record("PurchaseLinesByRequestLines")
	if f.purchaseByReq == nil {
		return nil, nil
	}
	return f.purchaseByReq(ctx, ids)
}

// testCtx carries a no-op logger so report code stays quiet under test.
func testCtx() context.Context {
	return logger.WithLogger(context.Background(), logger.Nop())
}

func strPtr(s string) *string { return &s }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}
