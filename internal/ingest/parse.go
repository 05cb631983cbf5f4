package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

// containerKeys are the object keys models wrap finding arrays in.
var containerKeys = []string{"inconsistencies", "findings", "results"}

// decodeStrict parses s as exactly one JSON value and returns its findings.
func decodeStrict(s string) ([]any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return findingItems(v)
}

// findingItems accepts a top-level array, an object wrapping an array under a
// known key, or a single finding object.
func findingItems(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		for _, k := range containerKeys {
			raw, ok := t[k]
			if !ok {
				continue
			}
			items, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("%q is not an array", k)
			}
			return items, nil
		}
		if _, ok := t["type"]; ok {
			return []any{t}, nil
		}
		return nil, errors.New("object has no findings array")
	case nil:
		return nil, errors.New("null response")
	}
	return nil, fmt.Errorf("unexpected JSON %T", v)
}

var codeFenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// recoverCandidates lists the spans of a prose- or fence-wrapped response
// that may hold the JSON payload, most likely first: the widest span from
// the first opener to the last closer, then each balanced group in turn.
func recoverCandidates(text string) []string {
	sources := []string{text}
	if m := codeFenceRe.FindStringSubmatch(text); len(m) > 1 && m[1] != "" {
		sources = []string{m[1], text}
	}
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, src := range sources {
		add(widestSpan(src, '[', ']'))
		if start := strings.IndexAny(src, "[{"); start >= 0 && src[start] == '{' {
			add(widestSpan(src, '{', '}'))
		}
		for _, g := range balancedGroups(src) {
			add(g)
		}
	}
	return out
}

func widestSpan(text string, opener, closer byte) string {
	start := strings.IndexByte(text, opener)
	end := strings.LastIndexByte(text, closer)
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// balancedGroups returns the top-level balanced [...] and {...} groups of
// text in order.
func balancedGroups(text string) []string {
	var out []string
	for i := 0; i < len(text); {
		j := strings.IndexAny(text[i:], "[{")
		if j < 0 {
			break
		}
		start := i + j
		if end, ok := balancedEnd(text, start); ok {
			out = append(out, text[start:end+1])
			i = end + 1
			continue
		}
		i = start + 1
	}
	return out
}

// holdsFindings rejects arrays of bare values such as a "[1]" citation.
func holdsFindings(items []any) bool {
	if len(items) == 0 {
		return true
	}
	for _, item := range items {
		if _, ok := item.(map[string]any); ok {
			return true
		}
	}
	return false
}

// balancedEnd returns the index of the delimiter closing the one at start,
// skipping over JSON string contents.
func balancedEnd(text string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return 0, false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
