package issues

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksLikeCode(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"MAT-1", true},
		{"mat-0001", true},
		{"AB-12.3", true},
		{"FL_02", true},
		{"M10234", true},
		{"Кабель ВВГнг 3x2.5", false},
		{"Труба", false},
		{"2 этаж", false},
		{"ABC", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			assert.Equal(t, tt.want, LooksLikeCode(tt.value))
		})
	}
}

func TestNameResolver_PriorityAndOverwrite(t *testing.T) {
	backend := &fakeBackend{
		lookupNames: func(_ context.Context, collection string, codes []string) (map[string]string, error) {
			switch collection {
			case "catalog_items":
				return map[string]string{"MAT-1": "Кабель", "MAT-2": "MAT-2"}, nil
			case "rik_items":
				out := map[string]string{}
				for _, c := range codes {
					out[c] = "Рик " + c
				}
				return out, nil
			case "rik_name_overrides":
				return map[string]string{"MAT-3": "Переименовано"}, nil
			}
			return nil, nil
		},
	}
	r := NewNameResolver(backend)

	got := r.Resolve(testCtx(), LookupMaterials, []string{"mat-1", "MAT-2", "MAT-3", "", "MAT-1"})

	assert.Equal(t, map[string]string{
		"MAT-1": "Кабель",
		"MAT-2": "Рик MAT-2",
		"MAT-3": "Переименовано",
	}, got)
}

func TestNameResolver_GapFillOnlyQueriesUnresolved(t *testing.T) {
	var rikCodes []string
	backend := &fakeBackend{
		lookupNames: func(_ context.Context, collection string, codes []string) (map[string]string, error) {
			if collection == "catalog_items" {
				return map[string]string{"MAT-1": "Кабель"}, nil
			}
			if collection == "rik_items" {
				rikCodes = append(rikCodes, codes...)
			}
			return nil, nil
		},
	}
	NewNameResolver(backend).Resolve(testCtx(), LookupMaterials, []string{"MAT-1", "MAT-2"})

	assert.Equal(t, []string{"MAT-2"}, rikCodes)
}

func TestNameResolver_ChunksAndSwallowsFailures(t *testing.T) {
	var chunkSizes []int
	backend := &fakeBackend{
		lookupNames: func(_ context.Context, collection string, codes []string) (map[string]string, error) {
			if collection != "ref_levels" {
				return nil, nil
			}
			chunkSizes = append(chunkSizes, len(codes))
			if len(chunkSizes) == 2 {
				return nil, errors.New("statement timeout")
			}
			out := map[string]string{}
			for _, c := range codes {
				out[c] = "Этаж " + c
			}
			return out, nil
		},
	}

	codes := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		codes = append(codes, fmt.Sprintf("LVL-%04d", i))
	}
	got := NewNameResolver(backend).Resolve(testCtx(), LookupLevels, codes)

	assert.Equal(t, []int{500, 500, 200}, chunkSizes)
	assert.Len(t, got, 700)
	assert.Equal(t, "Этаж LVL-0000", got["LVL-0000"])
	assert.NotContains(t, got, "LVL-0500")
}

func TestNameResolver_DisablesMissingCollection(t *testing.T) {
	backend := &fakeBackend{
		lookupNames: func(_ context.Context, collection string, _ []string) (map[string]string, error) {
			if collection == "catalog_items" {
				return nil, fmt.Errorf("relation catalog_items: %w", ErrCollectionMissing)
			}
			return map[string]string{"MAT-1": "Кабель"}, nil
		},
	}
	r := NewNameResolver(backend)

	first := r.Resolve(testCtx(), LookupMaterials, []string{"MAT-1"})
	second := r.Resolve(testCtx(), LookupMaterials, []string{"MAT-1"})

	assert.Equal(t, "Кабель", first["MAT-1"])
	assert.Equal(t, "Кабель", second["MAT-1"])
	assert.Equal(t, 1, backend.count("LookupNames:catalog_items"))
	assert.Equal(t, 2, backend.count("LookupNames:rik_items"))
}

func TestEnrichmentError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&EnrichmentError{Collection: "rik_items", Chunk: 2, Err: cause})

	require.ErrorIs(t, err, cause)
	assert.Equal(t, "lookup rik_items chunk 2: boom", err.Error())
}

func TestNameResolver_EnrichRows(t *testing.T) {
	backend := &fakeBackend{
		lookupNames: func(_ context.Context, collection string, _ []string) (map[string]string, error) {
			switch collection {
			case "catalog_items":
				return map[string]string{"MAT-1": "Кабель"}, nil
			case "ref_levels":
				return map[string]string{"LVL-02": "2 этаж"}, nil
			}
			return nil, nil
		},
	}
	rows := []FactRow{
		{MaterialCode: "MAT-1", MaterialName: "MAT-1", LevelName: "LVL-02"},
		{MaterialCode: "MAT-9", MaterialName: "", LevelName: UnknownLevel},
		{MaterialCode: "MAT-5", MaterialName: "Труба", LevelName: "Кровля"},
	}

	NewNameResolver(backend).EnrichRows(testCtx(), rows)

	assert.Equal(t, "Кабель", rows[0].MaterialName)
	assert.Equal(t, "2 этаж", rows[0].LevelName)
	assert.Equal(t, "MAT-9", rows[1].MaterialName)
	assert.Equal(t, UnknownLevel, rows[1].LevelName)
	assert.Equal(t, "Труба", rows[2].MaterialName)
	assert.Equal(t, "Кровля", rows[2].LevelName)
}
