package issues

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	calls []string
}

func (o *recordingObserver) ObserveStrategy(strategy, outcome string, _ time.Duration) {
	o.calls = append(o.calls, strategy+":"+outcome)
}

func testQuery() Query {
	return Query{From: day("2024-03-01"), To: day("2024-04-01")}
}

func viewBackend(rows ...ViewRow) *fakeBackend {
	return &fakeBackend{
		viewPage: func(_ context.Context, _, _ time.Time, offset, limit int) ([]ViewRow, error) {
			if offset >= len(rows) {
				return nil, nil
			}
			end := min(offset+limit, len(rows))
			return rows[offset:end], nil
		},
	}
}

func TestFactResolver_AllStrategiesFailOrEmpty(t *testing.T) {
	backend := &fakeBackend{
		issueHeaders: func(context.Context, time.Time, time.Time, int, int) ([]IssueHeader, error) {
			return nil, errors.New("connection refused")
		},
		headersByRange: func(context.Context, time.Time, time.Time) ([]HeaderRecord, error) {
			return nil, nil
		},
		viewPage: func(context.Context, time.Time, time.Time, int, int) ([]ViewRow, error) {
			return nil, errors.New("view missing")
		},
	}
	obs := &recordingObserver{}
	r := NewFactResolver(backend, NewNameResolver(backend), DefaultLimits(), obs)

	rows, source, err := r.Resolve(testCtx(), testQuery())

	require.NoError(t, err)
	require.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.Equal(t, StrategyNone, source)
	assert.Equal(t, []string{"join:error", "headers:empty", "view:error"}, obs.calls)
}

func TestFactResolver_EveryStrategyFails(t *testing.T) {
	refused := errors.New("connection refused")
	backend := &fakeBackend{
		issueHeaders: func(context.Context, time.Time, time.Time, int, int) ([]IssueHeader, error) {
			return nil, refused
		},
		headersByRange: func(context.Context, time.Time, time.Time) ([]HeaderRecord, error) {
			return nil, refused
		},
		viewPage: func(context.Context, time.Time, time.Time, int, int) ([]ViewRow, error) {
			return nil, refused
		},
	}
	r := NewFactResolver(backend, NewNameResolver(backend), DefaultLimits(), nil)

	rows, source, err := r.Resolve(testCtx(), testQuery())

	require.ErrorIs(t, err, ErrSourcesUnavailable)
	assert.ErrorIs(t, err, refused)
	require.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.Equal(t, StrategyNone, source)
}

func TestFactResolver_OrderDependsOnFilter(t *testing.T) {
	backend := &fakeBackend{}
	r := NewFactResolver(backend, nil, DefaultLimits(), nil)

	names := func(q Query) []string {
		var out []string
		for _, s := range r.order(q) {
			out = append(out, s.Name())
		}
		return out
	}

	assert.Equal(t, []string{StrategyJoin, StrategyHeaders, StrategyView}, names(testQuery()))

	byID := testQuery()
	byID.ObjectName, byID.ObjectID = "ЖК Север", "obj-1"
	assert.Equal(t, []string{StrategyJoin, StrategyHeaders, StrategyView}, names(byID))

	byName := testQuery()
	byName.ObjectName = "ЖК Север"
	assert.Equal(t, []string{StrategyHeaders, StrategyJoin, StrategyView}, names(byName))
}

func TestFactResolver_StopsAtFirstStrategyWithRows(t *testing.T) {
	issued := day("2024-03-05")
	backend := &fakeBackend{
		issueHeaders: func(_ context.Context, _, _ time.Time, offset, _ int) ([]IssueHeader, error) {
			if offset > 0 {
				return nil, nil
			}
			return []IssueHeader{{ID: "I1", IssuedAt: issued, ObjectID: strPtr("obj-1")}}, nil
		},
		issueLines: func(context.Context, []string) ([]IssueLine, error) {
			return []IssueLine{
				{IssueID: "I1", RequestLineID: strPtr("RL-1"), MaterialCode: " mat-1 ", MaterialName: "Кабель", Unit: "м", Quantity: 5},
				{IssueID: "I1", MaterialCode: "  ", MaterialName: "Без кода", Unit: "шт", Quantity: 1},
			}, nil
		},
		requestLines: func(context.Context, []string) ([]RequestLineContext, error) {
			return []RequestLineContext{{ID: "RL-1", ObjectID: strPtr("obj-1"), WorkCode: "EL", LevelCode: "L2"}}, nil
		},
		objectNames: func(context.Context, []string) (map[string]string, error) {
			return map[string]string{"obj-1": "ЖК Север · Зона: А"}, nil
		},
		lookupNames: func(_ context.Context, collection string, _ []string) (map[string]string, error) {
			switch collection {
			case "ref_systems":
				return map[string]string{"EL": "Электрика"}, nil
			case "ref_levels":
				return map[string]string{"L2": "2 этаж"}, nil
			}
			return nil, nil
		},
	}
	r := NewFactResolver(backend, NewNameResolver(backend), DefaultLimits(), nil)

	rows, source, err := r.Resolve(testCtx(), testQuery())

	require.NoError(t, err)
	assert.Equal(t, StrategyJoin, source)
	require.Len(t, rows, 1)
	assert.Equal(t, FactRow{
		IssueID:       "I1",
		IssueDate:     issued,
		ObjectName:    "ЖК Север",
		WorkName:      "Электрика",
		LevelName:     "2 этаж",
		RequestLineID: "RL-1",
		MaterialCode:  "MAT-1",
		MaterialName:  "Кабель",
		Unit:          "м",
		Quantity:      5,
	}, rows[0])
	assert.Zero(t, backend.count("IssueHeadersByRange"))
	assert.Zero(t, backend.count("IssueViewPage"))
}

func TestFactResolver_NameOnlyFilterUsesHeaderNotes(t *testing.T) {
	issued := day("2024-03-10")
	backend := &fakeBackend{
		headersByRange: func(context.Context, time.Time, time.Time) ([]HeaderRecord, error) {
			return []HeaderRecord{
				{IssueID: "I1", IssuedAt: issued, Note: "Объект: Склад у дороги · Система: Сантехника · Этаж: Подвал"},
				{IssueID: "I2", IssuedAt: issued, Note: "Объект: Другой объект"},
				{IssueID: "I3", IssuedAt: day("2024-05-01"), Note: "Объект: Склад у дороги"},
			}, nil
		},
		linesByIssue: func(_ context.Context, issueID string) ([]HeaderLineRecord, error) {
			return []HeaderLineRecord{{MaterialCode: "pipe-20", MaterialName: "Труба 20", Unit: "м", Quantity: 12}}, nil
		},
	}
	r := NewFactResolver(backend, NewNameResolver(backend), DefaultLimits(), nil)

	q := testQuery()
	q.ObjectName = "Склад у дороги"
	rows, source, err := r.Resolve(testCtx(), q)

	require.NoError(t, err)
	assert.Equal(t, StrategyHeaders, source)
	require.Len(t, rows, 1)
	assert.Equal(t, "I1", rows[0].IssueID)
	assert.Equal(t, "Сантехника", rows[0].WorkName)
	assert.Equal(t, "Подвал", rows[0].LevelName)
	assert.True(t, rows[0].IsWithoutRequest)
	assert.Equal(t, "PIPE-20", rows[0].MaterialCode)
	assert.Zero(t, backend.count("IssueHeaders"))
}

func TestFactResolver_FallsBackToView(t *testing.T) {
	backend := viewBackend(
		ViewRow{IssueID: "I1", ObjectName: "Школа", WorkName: "ОВ", MaterialCode: "a-1", MaterialName: "Воздуховод", Unit: "м", Quantity: 3, RequestLineID: strPtr("RL-1")},
		ViewRow{IssueID: "I2", Note: "Объект: Школа · Этаж: 1", MaterialCode: "a-2", MaterialName: "Решетка", Unit: "шт", Quantity: 1},
	)
	r := NewFactResolver(backend, NewNameResolver(backend), DefaultLimits(), nil)

	rows, source, err := r.Resolve(testCtx(), testQuery())

	require.NoError(t, err)
	assert.Equal(t, StrategyView, source)
	require.Len(t, rows, 2)
	assert.Equal(t, "Школа", rows[1].ObjectName)
	assert.Equal(t, "1", rows[1].LevelName)
	assert.Equal(t, UnknownWork, rows[1].WorkName)
	assert.False(t, rows[0].IsWithoutRequest)
	assert.True(t, rows[1].IsWithoutRequest)
}

func TestCollectPages_StopsAtCaps(t *testing.T) {
	fetches := 0
	fetch := func(_ context.Context, offset, limit int) ([]int, error) {
		fetches++
		page := make([]int, limit)
		for i := range page {
			page[i] = offset + i
		}
		return page, nil
	}

	got, err := collectPages(testCtx(), Limits{PageSize: 10, MaxRows: 35, MaxPages: 100}, fetch)
	require.NoError(t, err)
	assert.Len(t, got, 35)
	assert.Equal(t, 4, fetches)

	fetches = 0
	got, err = collectPages(testCtx(), Limits{PageSize: 10, MaxRows: 1000, MaxPages: 3}, fetch)
	require.NoError(t, err)
	assert.Len(t, got, 30)
	assert.Equal(t, 3, fetches)
}

func TestCollectPages_ShortPageEnds(t *testing.T) {
	calls := 0
	got, err := collectPages(testCtx(), Limits{PageSize: 5}, func(_ context.Context, offset, _ int) ([]string, error) {
		calls++
		if offset == 0 {
			return []string{"a", "b", "c", "d", "e"}, nil
		}
		return []string{"f"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f"}, got)
	assert.Equal(t, 2, calls)
}
