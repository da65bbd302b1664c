package issues

import (
	"context"
	"fmt"
)

// ViewStrategy scans the flattened reporting view page by page.
type ViewStrategy struct {
	source ViewSource
	limits Limits
}

// NewViewStrategy creates the denormalized view strategy.
func NewViewStrategy(source ViewSource, limits Limits) *ViewStrategy {
	return &ViewStrategy{source: source, limits: limits}
}

func (s *ViewStrategy) Name() string { return StrategyView }

func (s *ViewStrategy) Facts(ctx context.Context, q Query) ([]FactRow, error) {
	page, err := collectPages(ctx, s.limits, func(ctx context.Context, offset, limit int) ([]ViewRow, error) {
		return s.source.IssueViewPage(ctx, q.From, q.To, offset, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("issue view: %w", err)
	}

	rows := make([]FactRow, 0, len(page))
	for _, v := range page {
		note := ParseFreeIssueContext(v.Note)
		row, ok := rawFact{
			IssueID:       v.IssueID,
			IssueDate:     v.IssuedAt,
			Object:        firstNonEmpty(v.ObjectName, known(note.ObjectName, UnknownObject)),
			Work:          firstNonEmpty(v.WorkName, known(note.WorkName, UnknownWork)),
			Level:         firstNonEmpty(v.LevelName, known(note.LevelName, UnknownLevel)),
			RequestLineID: v.RequestLineID,
			Code:          v.MaterialCode,
			Name:          v.MaterialName,
			Unit:          v.Unit,
			Qty:           v.Quantity,
		}.toFactRow()
		if !ok || !q.matchesObject(row.ObjectName) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var _ FactStrategy = (*ViewStrategy)(nil)
