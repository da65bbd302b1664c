package issues

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeaderBatchSize bounds concurrent per-issue line calls.
const HeaderBatchSize = 20

// HeaderStrategy reads issue headers and per-issue lines through the legacy
// procedures. Request context comes resolved from the backend; free
// issuances fall back to the header note.
type HeaderStrategy struct {
	source  HeaderSource
	missing atomic.Bool
}

// NewHeaderStrategy creates the header/notes strategy.
func NewHeaderStrategy(source HeaderSource) *HeaderStrategy {
	return &HeaderStrategy{source: source}
}

func (s *HeaderStrategy) Name() string { return StrategyHeaders }

func (s *HeaderStrategy) Facts(ctx context.Context, q Query) ([]FactRow, error) {
	if s.missing.Load() {
		return nil, ErrProcedureMissing
	}

	headers, err := s.source.IssueHeadersByRange(ctx, q.From, q.To)
	if errors.Is(err, ErrProcedureMissing) {
		s.missing.Store(true)
	}
	if err != nil {
		return nil, fmt.Errorf("issue headers by range: %w", err)
	}
	if len(headers) == 0 {
		return nil, nil
	}

	lines := make([][]HeaderLineRecord, len(headers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(HeaderBatchSize)
	for i, h := range headers {
		g.Go(func() error {
			batch, err := s.source.IssueLinesByIssue(gctx, h.IssueID)
			if err != nil {
				return fmt.Errorf("issue lines %s: %w", h.IssueID, err)
			}
			lines[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var rows []FactRow
	for i, h := range headers {
		if !issuedBetween(h.IssuedAt, q.From, q.To) {
			continue
		}
		note := ParseFreeIssueContext(h.Note)
		for _, line := range lines[i] {
			raw := rawFact{
				IssueID:       h.IssueID,
				IssueDate:     h.IssuedAt,
				RequestLineID: line.RequestLineID,
				Code:          line.MaterialCode,
				Name:          line.MaterialName,
				Unit:          line.Unit,
				Qty:           line.Quantity,
			}
			if line.RequestLineID != nil && *line.RequestLineID != "" {
				raw.Object = firstNonEmpty(line.ObjectName, h.ObjectName)
				raw.Work = line.WorkName
				raw.Level = line.LevelName
			} else {
				raw.Object = firstNonEmpty(known(note.ObjectName, UnknownObject), h.ObjectName, line.ObjectName)
				raw.Work = firstNonEmpty(known(note.WorkName, UnknownWork), line.WorkName)
				raw.Level = firstNonEmpty(known(note.LevelName, UnknownLevel), line.LevelName)
			}

			row, ok := raw.toFactRow()
			if !ok || !q.matchesObject(row.ObjectName) {
				continue
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

var _ FactStrategy = (*HeaderStrategy)(nil)

// issuedBetween reports whether t falls into the half-open period.
func issuedBetween(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}
