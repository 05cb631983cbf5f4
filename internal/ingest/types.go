package ingest

import (
	"fmt"
	"strings"
)

// Type is the closed set of inconsistency categories.
type Type string

const (
	NumericalConflict    Type = "Numerical Conflict"
	TextualContradiction Type = "Textual Contradiction"
	TimelineMismatch     Type = "Timeline Mismatch"
	LogicalInconsistency Type = "Logical Inconsistency"
	DataMismatch         Type = "Data Mismatch"
	PercentageError      Type = "Percentage Error"
	FactualContradiction Type = "Factual Contradiction"
)

// Types lists every Type in declaration order.
var Types = []Type{
	NumericalConflict,
	TextualContradiction,
	TimelineMismatch,
	LogicalInconsistency,
	DataMismatch,
	PercentageError,
	FactualContradiction,
}

var typeByKey = func() map[string]Type {
	m := make(map[string]Type, len(Types))
	for _, t := range Types {
		m[typeKey(string(t))] = t
	}
	return m
}()

// typeKey folds case and separators so "numerical_conflict" and
// "Numerical Conflict" compare equal.
func typeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// ParseType matches s against the enumeration, tolerating a plural suffix.
// It never invents a type.
func ParseType(s string) (Type, bool) {
	key := typeKey(s)
	for _, k := range []string{key, strings.TrimSuffix(key, "s"), strings.TrimSuffix(key, "es")} {
		if t, ok := typeByKey[k]; ok {
			return t, true
		}
	}
	return "", false
}

// Severity is totally ordered: Low < Medium < High < Critical.
type Severity int

const (
	Low Severity = iota + 1
	Medium
	High
	Critical
)

// Severities lists every level from most to least severe.
var Severities = []Severity{Critical, High, Medium, Low}

func (s Severity) String() string {
	switch s {
	case Low:
		return "Low"
	case Medium:
		return "Medium"
	case High:
		return "High"
	case Critical:
		return "Critical"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity matches s case-insensitively.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, true
	case "medium":
		return Medium, true
	case "high":
		return High, true
	case "critical":
		return Critical, true
	}
	return 0, false
}

func (s Severity) MarshalText() ([]byte, error) {
	if s < Low || s > Critical {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, ok := ParseSeverity(string(b))
	if !ok {
		return fmt.Errorf("invalid severity %q", b)
	}
	*s = v
	return nil
}

// Evidence is a quotation attributed to one slide.
type Evidence struct {
	Slide int    `json:"slide"`
	Text  string `json:"text"`
}

// Inconsistency is a validated finding.
type Inconsistency struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Type           Type       `json:"type"`
	Severity       Severity   `json:"severity"`
	Confidence     float64    `json:"confidence"`
	AffectedSlides []int      `json:"affected_slides"`
	Evidence       []Evidence `json:"evidence"`
	Explanation    string     `json:"explanation"`
}

// MinSlide is the lowest affected slide index.
func (f Inconsistency) MinSlide() int {
	if len(f.AffectedSlides) == 0 {
		return 0
	}
	return f.AffectedSlides[0]
}
