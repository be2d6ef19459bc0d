// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package redact scrubs credentials out of observation content before it is
// persisted.
package redact

import (
	"regexp"
	"slices"
	"strings"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

// Mode selects what happens when content matches a rule.
type Mode string

const (
	// ModeOff stores content untouched.
	ModeOff Mode = "off"
	// ModeRedact replaces every match with Placeholder.
	ModeRedact Mode = "redact"
	// ModeBlock refuses the write.
	ModeBlock Mode = "block"
)

// Placeholder replaces redacted spans.
const Placeholder = "[REDACTED]"

// ParseMode maps "" to ModeRedact.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeRedact, nil
	case ModeOff, ModeRedact, ModeBlock:
		return m, nil
	default:
		return "", engramerr.Errorf(engramerr.CodeConfigValidateInvalidValue, "invalid redaction mode %q", s)
	}
}

// Rule is a named credential pattern.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match is one rule hit. Offsets are bytes into the normalized content.
type Match struct {
	Rule     string
	Location int
	Length   int
}

// Redactor applies a rule set in a fixed mode.
type Redactor struct {
	rules []Rule
	mode  Mode
}

// New builds a Redactor. A nil rules slice selects DefaultRules.
func New(mode Mode, rules []Rule) (*Redactor, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	for i, r := range rules {
		if r.Name == "" {
			return nil, engramerr.Errorf(engramerr.CodeRedactRuleInvalid, "rule %d has empty name", i)
		}
		if r.Pattern == nil {
			return nil, engramerr.Errorf(engramerr.CodeRedactRuleInvalid, "rule %d (%s) has nil pattern", i, r.Name)
		}
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if mode == "" {
		mode = ModeRedact
	}
	return &Redactor{rules: rules, mode: mode}, nil
}

// Mode reports the configured mode.
func (r *Redactor) Mode() Mode { return r.mode }

// Scan returns the normalized content and every rule hit in it.
func (r *Redactor) Scan(content string) (string, []Match) {
	content = normalize(content)
	var matches []Match
	for _, rule := range r.rules {
		for _, loc := range rule.Pattern.FindAllStringIndex(content, -1) {
			matches = append(matches, Match{
				Rule:     rule.Name,
				Location: loc[0],
				Length:   loc[1] - loc[0],
			})
		}
	}
	return content, matches
}

// Redact applies the mode to content. Clean content is returned unchanged,
// not normalized.
func (r *Redactor) Redact(content string) (string, error) {
	if r.mode == ModeOff {
		return content, nil
	}
	normalized, matches := r.Scan(content)
	if len(matches) == 0 {
		return content, nil
	}
	if r.mode == ModeBlock {
		return "", engramerr.New(engramerr.CodeRedactContentBlocked,
			"content contains a credential",
			engramerr.Field("rule", matches[0].Rule),
			engramerr.Field("matches", len(matches)),
		)
	}
	return replace(normalized, matches), nil
}

// invisible strips zero-width and formatting characters that would otherwise
// split a key past the patterns.
var invisible = strings.NewReplacer(
	"\u200b", "", // zero-width space
	"\u200c", "",
	"\u200d", "",
	"\ufeff", "",
	"\u00ad", "", // soft hyphen
	"\u2060", "", // word joiner
	"\u2061", "",
	"\u2062", "",
	"\u2063", "",
	"\u2064", "",
)

func normalize(s string) string {
	return norm.NFKC.String(invisible.Replace(s))
}

// replace merges overlapping matches and substitutes each span.
func replace(content string, matches []Match) string {
	sorted := slices.Clone(matches)
	slices.SortFunc(sorted, func(a, b Match) int { return a.Location - b.Location })

	type span struct{ start, end int }
	spans := []span{{sorted[0].Location, sorted[0].Location + sorted[0].Length}}
	for _, m := range sorted[1:] {
		last := &spans[len(spans)-1]
		end := m.Location + m.Length
		if m.Location <= last.end {
			last.end = max(last.end, end)
			continue
		}
		spans = append(spans, span{m.Location, end})
	}

	var b strings.Builder
	b.Grow(len(content))
	pos := 0
	for _, s := range spans {
		b.WriteString(content[pos:s.start])
		b.WriteString(Placeholder)
		pos = min(s.end, len(content))
	}
	b.WriteString(content[pos:])
	return b.String()
}
