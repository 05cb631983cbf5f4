package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SlideSet reports which slide indices exist in the analyzed deck.
type SlideSet interface {
	HasSlide(index int) bool
}

// Drop records a raw finding rejected during field coercion.
type Drop struct {
	Index  int    `json:"index"` // position in the response array
	Reason string `json:"reason"`
}

// coercer validates raw findings field by field against an allow-list.
type coercer struct {
	slides  SlideSet
	neutral float64
}

// coerce converts one raw finding, or returns the reason it was dropped.
func (c *coercer) coerce(raw any) (Inconsistency, string) {
	obj, ok := raw.(map[string]any)
	if !ok {
		return Inconsistency{}, fmt.Sprintf("finding is %s, not an object", jsonKind(raw))
	}

	var f Inconsistency

	typeLabel, ok := stringField(obj, "type")
	if !ok || typeLabel == "" {
		return f, "missing type"
	}
	if f.Type, ok = ParseType(typeLabel); !ok {
		return f, fmt.Sprintf("unknown type %q", typeLabel)
	}

	f.Severity = Medium
	if v, present := obj["severity"]; present && v != nil {
		label, isString := v.(string)
		if !isString {
			return f, fmt.Sprintf("severity is %s", jsonKind(v))
		}
		if strings.TrimSpace(label) == "" {
			return f, "severity is empty"
		}
		if f.Severity, ok = ParseSeverity(label); !ok {
			return f, fmt.Sprintf("invalid severity %q", label)
		}
	}

	f.Confidence = c.neutral
	if v, present := firstPresent(obj, "confidence", "confidence_score"); present {
		if conf, ok := toConfidence(v); ok {
			f.Confidence = conf
		}
	}

	rawSlides, present := firstPresent(obj, "affected_slides", "slides")
	if !present || rawSlides == nil {
		return f, "missing affected_slides"
	}
	refs, ok := slideRefs(rawSlides)
	if !ok || len(refs) == 0 {
		return f, "affected_slides is empty or malformed"
	}
	f.AffectedSlides = c.validSlides(refs)
	if len(f.AffectedSlides) == 0 {
		return f, fmt.Sprintf("no valid slide references in %v", refs)
	}

	description, _ := stringField(obj, "description")
	f.Explanation, _ = stringField(obj, "explanation")
	if f.Explanation == "" {
		f.Explanation = description
	}
	if f.Explanation == "" {
		return f, "missing explanation"
	}
	f.Title, _ = stringField(obj, "title")
	if f.Title == "" {
		f.Title = description
	}
	if f.Title == "" {
		f.Title = string(f.Type)
	}

	f.Evidence = evidence(obj["evidence"], f.AffectedSlides)
	return f, ""
}

// validSlides keeps references present in the deck, sorted and unique.
func (c *coercer) validSlides(refs []int) []int {
	seen := make(map[int]bool, len(refs))
	out := make([]int, 0, len(refs))
	for _, n := range refs {
		if seen[n] || !c.slides.HasSlide(n) {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func firstPresent(obj map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func stringField(obj map[string]any, key string) (string, bool) {
	s, ok := obj[key].(string)
	return strings.TrimSpace(s), ok
}

// toConfidence accepts numbers, numeric strings and percentages, clamped to
// [0,1]. Non-numeric values report false.
func toConfidence(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		pct := strings.HasSuffix(s, "%")
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
		if err != nil {
			return 0, false
		}
		if pct {
			n /= 100
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return math.Min(1, math.Max(0, f)), true
}

var slideNumRe = regexp.MustCompile(`^(?i:slide[\s_#-]*)?(\d+)$`)

// slideRef parses 3, 3.0, "3" and "Slide 3". Fractions are rejected.
func slideRef(v any) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case float64:
		if t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	case string:
		m := slideNumRe.FindStringSubmatch(strings.TrimSpace(t))
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	return 0, false
}

// slideRefs accepts an array of references or a single reference. Entries
// that do not parse are skipped; ok is false only when v has the wrong shape.
func slideRefs(v any) ([]int, bool) {
	arr, isArray := v.([]any)
	if !isArray {
		n, ok := slideRef(v)
		if !ok {
			return nil, false
		}
		return []int{n}, true
	}
	out := make([]int, 0, len(arr))
	for _, item := range arr {
		if n, ok := slideRef(item); ok {
			out = append(out, n)
		}
	}
	return out, true
}

// evidence accepts [{slide, text}] arrays and {"slide_N": text} maps.
// Entries attributed to slides outside affected are dropped.
func evidence(v any, affected []int) []Evidence {
	allowed := make(map[int]bool, len(affected))
	for _, n := range affected {
		allowed[n] = true
	}
	var out []Evidence
	add := func(slide int, text string) {
		text = strings.TrimSpace(text)
		if text == "" || !allowed[slide] {
			return
		}
		for _, e := range out {
			if e.Slide == slide && e.Text == text {
				return
			}
		}
		out = append(out, Evidence{Slide: slide, Text: text})
	}

	switch t := v.(type) {
	case []any:
		for _, item := range t {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			rawSlide, _ := firstPresent(obj, "slide", "slide_index", "slide_number")
			slide, ok := slideRef(rawSlide)
			if !ok {
				continue
			}
			text, _ := firstPresent(obj, "text", "quote", "content")
			if s, ok := text.(string); ok {
				add(slide, s)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, _ := slideRef(keys[i])
			b, _ := slideRef(keys[j])
			if a != b {
				return a < b
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			slide, ok := slideRef(k)
			if !ok {
				continue
			}
			if s, ok := t[k].(string); ok {
				add(slide, s)
			}
		}
	}
	return out
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number, float64:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	case map[string]any:
		return "an object"
	}
	return fmt.Sprintf("%T", v)
}
