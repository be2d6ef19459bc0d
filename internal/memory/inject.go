// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/engram-dev/engram/internal/store"
	engramerr "github.com/engram-dev/engram/pkg/errors"
)

const (
	DefaultContextLimit    = 5
	DefaultContextMaxChars = 4000
	maxEntryChars          = 400
	seedObservations       = 3
)

// InjectorConfig tunes an Injector.
type InjectorConfig struct {
	Limit    int
	MaxChars int
	Mode     Mode
}

// InjectRequest is a session-start event.
type InjectRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Project   string `json:"project,omitempty"`
	// Query overrides the query derived from the project's recent history.
	Query string `json:"query,omitempty"`
}

// Injection is the context handed back to the host session.
type Injection struct {
	Query    string   `json:"query"`
	Results  []Result `json:"-"`
	Text     string   `json:"text"`
	Degraded bool     `json:"degraded"`
}

// Injector builds session-start context from the memory most related to what
// the project has been doing lately.
type Injector struct {
	engine   *Engine
	store    *ObservationStore
	limit    int
	maxChars int
	mode     Mode
}

func NewInjector(engine *Engine, s *ObservationStore, cfg InjectorConfig) *Injector {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultContextLimit
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultContextMaxChars
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeHybrid
	}
	return &Injector{engine: engine, store: s, limit: cfg.Limit, maxChars: cfg.MaxChars, mode: cfg.Mode}
}

// Inject returns formatted context for a starting session. With no explicit
// query it searches with the project's newest observations; with no history
// at all it returns an empty injection.
func (i *Injector) Inject(ctx context.Context, req InjectRequest) (*Injection, error) {
	filters := store.Filters{Project: req.Project}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		var err error
		query, err = i.deriveQuery(ctx, filters)
		if err != nil {
			return nil, err
		}
	}
	if query == "" {
		return &Injection{}, nil
	}

	report, err := i.engine.SearchReport(ctx, Query{
		Text:    query,
		Mode:    i.mode,
		K:       i.limit,
		Filters: filters,
	})
	if err != nil {
		return nil, engramerr.With(err, engramerr.FieldSessionID(req.SessionID))
	}

	return &Injection{
		Query:    query,
		Results:  report.Results,
		Text:     i.format(req.Project, report.Results),
		Degraded: report.Degraded,
	}, nil
}

func (i *Injector) deriveQuery(ctx context.Context, filters store.Filters) (string, error) {
	recent, err := i.store.Recent(ctx, filters, seedObservations)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(recent))
	for _, o := range recent {
		parts = append(parts, clip(o.Content, maxEntryChars))
	}
	return strings.Join(parts, " "), nil
}

// format renders results as a fenced block, dropping entries that would
// exceed the character budget.
func (i *Injector) format(project string, results []Result) string {
	if len(results) == 0 {
		return ""
	}

	header := "## Relevant memory"
	if project != "" {
		header += " (" + filepath.Base(project) + ")"
	}
	const open, closing = "<engram-context>\n", "</engram-context>\n"

	var b strings.Builder
	b.WriteString(open)
	b.WriteString(header)
	b.WriteString("\n")
	budget := i.maxChars - b.Len() - len(closing)

	for _, r := range results {
		o := r.Observation
		line := fmt.Sprintf("- [%s] #%d %s: %s\n",
			o.Type, o.ID, o.CreatedAt.Format("2006-01-02"), clip(o.Content, maxEntryChars))
		if len(line) > budget {
			break
		}
		b.WriteString(line)
		budget -= len(line)
	}
	b.WriteString(closing)
	return b.String()
}

// clip collapses whitespace and cuts s to n bytes on a rune boundary.
func clip(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
