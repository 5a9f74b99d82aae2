// Package report renders a completed analysis for the terminal and for
// export as plain text or an XLSX workbook.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Section is one top-level entry of the analysis payload.
type Section struct {
	Key  string
	Body string
}

// Title is the export heading of the section: underscores become spaces and
// the key is upper-cased.
func (s Section) Title() string {
	return strings.ToUpper(strings.ReplaceAll(s.Key, "_", " "))
}

// Label is the short display name used in the terminal view.
func (s Section) Label() string {
	if l, ok := labels[s.Key]; ok {
		return l
	}
	words := strings.Fields(strings.ReplaceAll(s.Key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// Keys are the sections the service produces, in display order.
var Keys = []string{
	"overview",
	"category_diagnosis",
	"market_reality",
	"competitive_landscape",
	"user_pain_and_desires",
	"strategy_and_positioning",
	"mvp_blueprint",
	"pricing_and_monetization",
	"go_to_market",
	"risks_and_unknowns",
}

var labels = map[string]string{
	"overview":                 "Overview",
	"category_diagnosis":       "Category",
	"market_reality":           "Market Reality",
	"competitive_landscape":    "Competitors",
	"user_pain_and_desires":    "User Needs",
	"strategy_and_positioning": "Strategy",
	"mvp_blueprint":            "MVP Blueprint",
	"pricing_and_monetization": "Pricing",
	"go_to_market":             "Go-to-Market",
	"risks_and_unknowns":       "Risks",
}

// ErrNotObject is returned when the analysis payload is not a JSON object.
var ErrNotObject = errors.New("analysis payload is not a JSON object")

// Sections splits the analysis object into sections in document order.
// String values are used as-is; any other value, null included, is rendered
// as compact JSON.
func Sections(analysis json.RawMessage) ([]Section, error) {
	trimmed := bytes.TrimSpace(analysis)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("reading analysis: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, ErrNotObject
	}

	var out []Section
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("reading analysis key: %w", err)
		}
		key, _ := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("reading analysis.%s: %w", key, err)
		}
		out = append(out, Section{Key: key, Body: renderValue(raw)})
	}
	return out, nil
}

func renderValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// Lookup returns the body of key, if present.
func Lookup(sections []Section, key string) (string, bool) {
	for _, s := range sections {
		if s.Key == key {
			return s.Body, true
		}
	}
	return "", false
}
