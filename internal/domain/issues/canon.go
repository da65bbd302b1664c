package issues

import (
	"regexp"
	"strings"
)

// Free-text issuance notes pack several labelled fields into one string,
// e.g. "ЖК Север · Система: ОВ · Этаж: 3". Only the leading object segment
// is used for bucketing.
var (
	diagnosticTailRe = regexp.MustCompile(`(?i)\s*[·•|]\s*(?:Контекст|Система|Зона|Вид|Этаж|Оси)\s*:.*$`)
	trailingSepRe    = regexp.MustCompile(`[\s·•|,;]+$`)

	noteObjectRe = regexp.MustCompile(`(?i)Объект\s*:\s*([^·•|;\n]+)`)
	noteWorkRe   = regexp.MustCompile(`(?i)(?:Система|Контекст)\s*:\s*([^·•|;\n]+)`)
	noteLevelRe  = regexp.MustCompile(`(?i)(?:Этаж|Уровень)\s*:\s*([^·•|;\n]+)`)
)

// collapseSpaces trims and folds every whitespace run (including NBSP) into one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalObjectName turns a raw object/site name into its bucket key.
func CanonicalObjectName(raw string) string {
	s := collapseSpaces(raw)
	s = diagnosticTailRe.ReplaceAllString(s, "")
	s = trailingSepRe.ReplaceAllString(s, "")
	s = collapseSpaces(s)
	if s == "" {
		return UnknownObject
	}
	return s
}

// NormalizeWorkName turns a raw work type name into its bucket key.
func NormalizeWorkName(raw string) string {
	if s := collapseSpaces(raw); s != "" {
		return s
	}
	return UnknownWork
}

// NormalizeLevelName turns a raw level/floor name into its bucket key.
func NormalizeLevelName(raw string) string {
	if s := collapseSpaces(raw); s != "" {
		return s
	}
	return UnknownLevel
}

// IssueContext is the object/work/level recovered from a free-text note.
type IssueContext struct {
	ObjectName string
	WorkName   string
	LevelName  string
}

// ParseFreeIssueContext extracts labelled segments from an issuance note.
// Missing segments resolve to the bucket sentinels.
func ParseFreeIssueContext(note string) IssueContext {
	return IssueContext{
		ObjectName: CanonicalObjectName(firstGroup(noteObjectRe, note)),
		WorkName:   NormalizeWorkName(firstGroup(noteWorkRe, note)),
		LevelName:  NormalizeLevelName(firstGroup(noteLevelRe, note)),
	}
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// firstNonEmpty returns the first value that is non-blank after trimming.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// normalizeCode upper-cases and trims a material code.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
