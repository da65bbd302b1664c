package issues

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/samber/lo"

	"prorab/pkg/logger"
)

// LookupChunkSize bounds the number of codes sent in one lookup query.
const LookupChunkSize = 500

// LookupKind selects the family of lookup collections to query.
type LookupKind string

const (
	LookupMaterials  LookupKind = "materials"
	LookupWorks      LookupKind = "works"
	LookupLevels     LookupKind = "levels"
	LookupObjectType LookupKind = "object_types"
)

// lookupCollection is one name source. Overwrite collections replace names
// already found by earlier collections; the others only fill gaps.
type lookupCollection struct {
	Name      string
	Overwrite bool
}

// Collections per kind, richest first, overrides last.
var lookupCollections = map[LookupKind][]lookupCollection{
	LookupMaterials: {
		{Name: "catalog_items"},
		{Name: "rik_items"},
		{Name: "rik_name_overrides", Overwrite: true},
	},
	LookupWorks: {
		{Name: "ref_systems"},
	},
	LookupLevels: {
		{Name: "ref_levels"},
	},
	LookupObjectType: {
		{Name: "ref_object_types"},
	},
}

// EnrichmentError is a failed lookup chunk. It is logged by the resolver and
// never returned to report callers.
type EnrichmentError struct {
	Collection string
	Chunk      int
	Err        error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("lookup %s chunk %d: %v", e.Collection, e.Chunk, e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

var (
	codePrefixes = []string{"MAT-", "RIK-", "WRK-", "SRV-", "KIT-", "LVL-", "SYS-", "OBJ-"}

	// Upper-case token with separators, e.g. "AB-12.3" or "FL_02".
	codeShapeRe = regexp.MustCompile(`^[A-Z0-9]+(?:[-_./][A-Z0-9]+)+$`)
	// Letter prefix followed by digits, e.g. "M10234".
	codeDigitsRe = regexp.MustCompile(`^[A-Z]{1,6}[0-9]{2,}$`)
)

// LooksLikeCode reports whether a display value is still an opaque code that
// needs resolving. Blank values count as codes.
func LooksLikeCode(value string) bool {
	v := strings.TrimSpace(value)
	if v == "" {
		return true
	}
	if strings.ContainsAny(v, " \t\n") {
		return false
	}
	upper := strings.ToUpper(v)
	for _, p := range codePrefixes {
		if strings.HasPrefix(upper, p) {
			return true
		}
	}
	return codeShapeRe.MatchString(v) || codeDigitsRe.MatchString(v)
}

// NameResolver resolves codes to display names through the lookup
// collections. A collection reported missing by the backend is skipped for
// the lifetime of the resolver.
type NameResolver struct {
	source    LookupSource
	chunkSize int

	mu       sync.Mutex
	disabled map[string]struct{}
}

// NewNameResolver creates a resolver over a lookup backend.
func NewNameResolver(source LookupSource) *NameResolver {
	return &NameResolver{
		source:    source,
		chunkSize: LookupChunkSize,
		disabled:  make(map[string]struct{}),
	}
}

// Resolve returns names for the given codes. Codes without a name are absent
// from the result. Lookup failures only reduce coverage.
func (r *NameResolver) Resolve(ctx context.Context, kind LookupKind, codes []string) map[string]string {
	keys := lo.Uniq(lo.Compact(lo.Map(codes, func(c string, _ int) string {
		return normalizeCode(c)
	})))
	names := make(map[string]string, len(keys))
	if r == nil || r.source == nil || len(keys) == 0 {
		return names
	}

	for _, coll := range lookupCollections[kind] {
		if r.isDisabled(coll.Name) {
			continue
		}

		pending := keys
		if !coll.Overwrite {
			pending = lo.Filter(keys, func(code string, _ int) bool {
				return LooksLikeCode(names[code])
			})
		}
		if len(pending) == 0 {
			continue
		}

		for i, chunk := range lo.Chunk(pending, r.chunkSize) {
			found, err := r.lookupChunk(ctx, coll.Name, i, chunk)
			if err != nil {
				if errors.Is(err, ErrCollectionMissing) {
					r.disable(coll.Name)
					logger.Warn(ctx, "lookup collection disabled", "collection", coll.Name)
					break
				}
				logger.Warn(ctx, "name enrichment failed", "collection", coll.Name, "chunk", i, "error", err)
				continue
			}
			mergeNames(names, found, coll.Overwrite)
		}
	}

	return names
}

func (r *NameResolver) lookupChunk(ctx context.Context, collection string, idx int, chunk []string) (map[string]string, error) {
	found, err := r.source.LookupNames(ctx, collection, chunk)
	if err != nil {
		return nil, &EnrichmentError{Collection: collection, Chunk: idx, Err: err}
	}
	return found, nil
}

func mergeNames(dst, found map[string]string, overwrite bool) {
	for code, name := range found {
		name = collapseSpaces(name)
		if name == "" {
			continue
		}
		code = normalizeCode(code)
		if current, ok := dst[code]; ok && !overwrite && !LooksLikeCode(current) {
			continue
		}
		dst[code] = name
	}
}

func (r *NameResolver) isDisabled(collection string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.disabled[collection]
	return ok
}

func (r *NameResolver) disable(collection string) {
	r.mu.Lock()
	r.disabled[collection] = struct{}{}
	r.mu.Unlock()
}

// EnrichRows replaces material and level names that are still codes.
// Materials are resolved first, then levels. Rows are modified in place.
func (r *NameResolver) EnrichRows(ctx context.Context, rows []FactRow) {
	if len(rows) == 0 {
		return
	}

	var materialCodes []string
	for _, row := range rows {
		if LooksLikeCode(row.MaterialName) {
			materialCodes = append(materialCodes, row.MaterialCode)
		}
	}
	if len(materialCodes) > 0 {
		names := r.Resolve(ctx, LookupMaterials, materialCodes)
		for i := range rows {
			if !LooksLikeCode(rows[i].MaterialName) {
				continue
			}
			if name, ok := names[rows[i].MaterialCode]; ok {
				rows[i].MaterialName = name
			}
		}
	}
	for i := range rows {
		if strings.TrimSpace(rows[i].MaterialName) == "" {
			rows[i].MaterialName = rows[i].MaterialCode
		}
	}

	var levelCodes []string
	for _, row := range rows {
		if row.LevelName != UnknownLevel && LooksLikeCode(row.LevelName) {
			levelCodes = append(levelCodes, row.LevelName)
		}
	}
	if len(levelCodes) == 0 {
		return
	}
	levels := r.Resolve(ctx, LookupLevels, levelCodes)
	for i := range rows {
		if rows[i].LevelName == UnknownLevel || !LooksLikeCode(rows[i].LevelName) {
			continue
		}
		if name, ok := levels[normalizeCode(rows[i].LevelName)]; ok {
			rows[i].LevelName = NormalizeLevelName(name)
		}
	}
}
