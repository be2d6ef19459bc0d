// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package summarize

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

// DefaultMaxChars bounds the length of an extractive summary.
const DefaultMaxChars = 2000

// Extractive builds a summary from the first sentence of each source, one
// bullet per source in chronological order. It needs no model and is
// deterministic.
type Extractive struct {
	MaxChars int
}

var _ Summarizer = Extractive{}

func (Extractive) Name() string { return "extractive" }

func (e Extractive) Summarize(ctx context.Context, sources []store.Observation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return "", engramerr.New(engramerr.CodeMemoryCompressFailure, "nothing to summarize")
	}
	limit := e.MaxChars
	if limit <= 0 {
		limit = DefaultMaxChars
	}

	ordered := slices.Clone(sources)
	slices.SortStableFunc(ordered, func(a, b store.Observation) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Session summary of %d observations", len(sources))
	if sid := sources[0].SessionID; sid != "" {
		fmt.Fprintf(&b, " from session %s", sid)
	}
	b.WriteString(".")

	seen := make(map[string]bool, len(ordered))
	for _, o := range ordered {
		line := firstSentence(o.Content)
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		fmt.Fprintf(&b, "\n- (%s) %s", o.Type, line)
	}
	return truncate(b.String(), limit), nil
}

// firstSentence returns the content up to the first sentence terminator
// followed by whitespace, with whitespace collapsed.
func firstSentence(content string) string {
	s := oneLine(content)
	for i := 0; i < len(s)-1; i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' {
				return s[:i+1]
			}
		}
	}
	return s
}

// truncate cuts s to at most n bytes on a rune boundary, marking the cut.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	const marker = "..."
	cut := max(n-len(marker), 0)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}
