package issues

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"prorab/pkg/logger"
)

// JoinStrategy walks issue headers → lines → request lines → object, work
// and level lookups over the normalized tables.
type JoinStrategy struct {
	records RecordSource
	names   *NameResolver
	limits  Limits
}

// NewJoinStrategy creates the detailed join strategy.
func NewJoinStrategy(records RecordSource, names *NameResolver, limits Limits) *JoinStrategy {
	return &JoinStrategy{records: records, names: names, limits: limits}
}

func (s *JoinStrategy) Name() string { return StrategyJoin }

// joinLookups holds the independent name lookups of one resolution.
type joinLookups struct {
	objects     map[string]string
	works       map[string]string
	levels      map[string]string
	objectTypes map[string]string
}

func (s *JoinStrategy) Facts(ctx context.Context, q Query) ([]FactRow, error) {
	headers, err := collectPages(ctx, s.limits, func(ctx context.Context, offset, limit int) ([]IssueHeader, error) {
		return s.records.IssueHeaders(ctx, q.From, q.To, offset, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("issue headers: %w", err)
	}
	if len(headers) == 0 {
		return nil, nil
	}

	lines, err := s.issueLines(ctx, lo.Map(headers, func(h IssueHeader, _ int) string { return h.ID }))
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, nil
	}

	requests, err := s.requestLines(ctx, lines)
	if err != nil {
		return nil, err
	}

	lookups := s.lookups(ctx, headers, requests)

	byID := lo.KeyBy(headers, func(h IssueHeader) string { return h.ID })
	rows := make([]FactRow, 0, len(lines))
	for _, line := range lines {
		header, ok := byID[line.IssueID]
		if !ok {
			continue
		}

		var req *RequestLineContext
		if line.RequestLineID != nil {
			if r, ok := requests[*line.RequestLineID]; ok {
				req = &r
			}
		}

		row, ok := s.mapRow(header, line, req, lookups)
		if !ok {
			continue
		}
		if !s.matches(q, header, req, row) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *JoinStrategy) issueLines(ctx context.Context, issueIDs []string) ([]IssueLine, error) {
	var lines []IssueLine
	for _, chunk := range lo.Chunk(issueIDs, LookupChunkSize) {
		batch, err := s.records.IssueLines(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("issue lines: %w", err)
		}
		lines = append(lines, batch...)
	}
	return lines, nil
}

func (s *JoinStrategy) requestLines(ctx context.Context, lines []IssueLine) (map[string]RequestLineContext, error) {
	ids := lo.Uniq(lo.FilterMap(lines, func(l IssueLine, _ int) (string, bool) {
		if l.RequestLineID == nil || *l.RequestLineID == "" {
			return "", false
		}
		return *l.RequestLineID, true
	}))

	out := make(map[string]RequestLineContext, len(ids))
	for _, chunk := range lo.Chunk(ids, LookupChunkSize) {
		batch, err := s.records.RequestLines(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("request lines: %w", err)
		}
		for _, r := range batch {
			out[r.ID] = r
		}
	}
	return out, nil
}

// lookups resolves object, work, level and object type names concurrently;
// the id sets are disjoint and have no ordering dependency. Lookup failures
// only reduce coverage.
func (s *JoinStrategy) lookups(ctx context.Context, headers []IssueHeader, requests map[string]RequestLineContext) joinLookups {
	var objectIDs, workCodes, levelCodes, typeCodes []string
	for _, h := range headers {
		if h.ObjectID != nil {
			objectIDs = append(objectIDs, *h.ObjectID)
		}
	}
	for _, r := range requests {
		if r.ObjectID != nil {
			objectIDs = append(objectIDs, *r.ObjectID)
		}
		workCodes = append(workCodes, r.WorkCode)
		levelCodes = append(levelCodes, r.LevelCode)
		typeCodes = append(typeCodes, r.ObjectTypeCode)
	}
	objectIDs = lo.Uniq(lo.Compact(objectIDs))

	var out joinLookups
	var g errgroup.Group
	g.Go(func() error {
		out.objects = s.objectNames(ctx, objectIDs)
		return nil
	})
	g.Go(func() error {
		out.works = s.names.Resolve(ctx, LookupWorks, workCodes)
		return nil
	})
	g.Go(func() error {
		out.levels = s.names.Resolve(ctx, LookupLevels, levelCodes)
		return nil
	})
	g.Go(func() error {
		out.objectTypes = s.names.Resolve(ctx, LookupObjectType, typeCodes)
		return nil
	})
	_ = g.Wait()
	return out
}

// objectNames resolves object ids in chunks. A failed chunk only loses its
// names; rows fall back to the header's own object fields.
func (s *JoinStrategy) objectNames(ctx context.Context, ids []string) map[string]string {
	names := make(map[string]string, len(ids))
	for i, chunk := range lo.Chunk(ids, LookupChunkSize) {
		found, err := s.records.ObjectNames(ctx, chunk)
		if err != nil {
			err = &EnrichmentError{Collection: "objects", Chunk: i, Err: err}
			logger.Warn(ctx, "name enrichment failed", "collection", "objects", "chunk", i, "error", err)
			continue
		}
		for id, name := range found {
			names[id] = name
		}
	}
	return names
}

func (s *JoinStrategy) mapRow(h IssueHeader, line IssueLine, req *RequestLineContext, lk joinLookups) (FactRow, bool) {
	note := ParseFreeIssueContext(h.Note)

	var reqObject, workCode, levelCode, typeCode string
	if req != nil {
		reqObject = lookupID(lk.objects, req.ObjectID)
		workCode = req.WorkCode
		levelCode = req.LevelCode
		typeCode = req.ObjectTypeCode
	}

	raw := rawFact{
		IssueID:   h.ID,
		IssueDate: h.IssuedAt,
		Object: firstNonEmpty(
			reqObject,
			lookupID(lk.objects, h.ObjectID),
			h.ObjectName,
			lk.objectTypes[normalizeCode(typeCode)],
			known(note.ObjectName, UnknownObject),
		),
		Work: firstNonEmpty(
			lk.works[normalizeCode(workCode)],
			workCode,
			h.WorkName,
			known(note.WorkName, UnknownWork),
		),
		Level: firstNonEmpty(
			lk.levels[normalizeCode(levelCode)],
			levelCode,
			known(note.LevelName, UnknownLevel),
		),
		RequestLineID: line.RequestLineID,
		Code:          line.MaterialCode,
		Name:          line.MaterialName,
		Unit:          line.Unit,
		Qty:           line.Quantity,
	}
	return raw.toFactRow()
}

// matches applies the object filter by id when one is known, else by
// canonical name.
func (s *JoinStrategy) matches(q Query, h IssueHeader, req *RequestLineContext, row FactRow) bool {
	if !q.Filtered() {
		return true
	}
	if q.ObjectID != "" {
		if req != nil && req.ObjectID != nil {
			return *req.ObjectID == q.ObjectID
		}
		if h.ObjectID != nil {
			return *h.ObjectID == q.ObjectID
		}
	}
	return q.matchesObject(row.ObjectName)
}

func lookupID(names map[string]string, id *string) string {
	if id == nil {
		return ""
	}
	return names[*id]
}

var _ FactStrategy = (*JoinStrategy)(nil)
