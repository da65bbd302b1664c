package issues

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalObjectName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "ЖК Север", "ЖК Север"},
		{"collapses whitespace", "  ЖК   Север\t корпус 2 ", "ЖК Север корпус 2"},
		{"non-breaking space", "ЖК Север", "ЖК Север"},
		{"strips diagnostic tail", "ЖК Север · Система: ОВ · Этаж: 3", "ЖК Север"},
		{"strips bullet tail", "ЖК Север • Контекст: склад", "ЖК Север"},
		{"strips pipe tail", "ЖК Север | Оси: А-Б", "ЖК Север"},
		{"case insensitive label", "ЖК Север · этаж: 3", "ЖК Север"},
		{"trailing separators", "ЖК Север ·", "ЖК Север"},
		{"empty", "", UnknownObject},
		{"only tail", "· Зона: 1", UnknownObject},
		{"only separators", " | ; ", UnknownObject},
		{"label without separator kept", "Вид: фасад", "Вид: фасад"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalObjectName(tt.raw))
		})
	}
}

func TestCanonicalObjectName_Idempotent(t *testing.T) {
	inputs := []string{
		"", " ", "ЖК Север", "ЖК Север · Система: ОВ", "a|b|", "x · Вид: y · Этаж: 2",
		"·", "Без объекта", "Объект: Школа №5; Этаж: 2", "    A   B ,;",
	}
	for _, in := range inputs {
		once := CanonicalObjectName(in)
		assert.Equal(t, once, CanonicalObjectName(once), "input %q", in)
	}
}

func TestNormalizeWorkAndLevel(t *testing.T) {
	assert.Equal(t, UnknownWork, NormalizeWorkName("   "))
	assert.Equal(t, "Электрика", NormalizeWorkName(" Электрика "))
	assert.Equal(t, UnknownLevel, NormalizeLevelName(""))
	assert.Equal(t, "2 этаж", NormalizeLevelName("2   этаж"))
}

func TestParseFreeIssueContext(t *testing.T) {
	got := ParseFreeIssueContext("Выдача без заявки · Объект: ЖК Север · Система: Электрика · Этаж: 2 этаж")
	assert.Equal(t, IssueContext{ObjectName: "ЖК Север", WorkName: "Электрика", LevelName: "2 этаж"}, got)

	got = ParseFreeIssueContext("объект: Школа; контекст: ОВ; уровень: кровля")
	assert.Equal(t, IssueContext{ObjectName: "Школа", WorkName: "ОВ", LevelName: "кровля"}, got)

	got = ParseFreeIssueContext("просто примечание")
	assert.Equal(t, IssueContext{ObjectName: UnknownObject, WorkName: UnknownWork, LevelName: UnknownLevel}, got)
}
