// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/engram-dev/engram/internal/store"
)

// --- lipgloss styles ---

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// row pads each cell to its column width.
func row(widths []int, cells ...string) string {
	parts := make([]string, len(cells))
	for i, c := range cells {
		if i < len(widths) && i < len(cells)-1 {
			c = fmt.Sprintf("%-*s", widths[i], c)
		}
		parts[i] = c
	}
	return strings.Join(parts, "  ")
}

func snippet(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t).Round(time.Minute)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Local().Format("2006-01-02")
	}
}

func writeObservation(w io.Writer, o *store.Observation) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("#%d %s", o.ID, o.Type)))
	fmt.Fprintf(w, "%-10s %s\n", "Session:", o.SessionID)
	if o.Project != "" {
		fmt.Fprintf(w, "%-10s %s\n", "Project:", o.Project)
	}
	fmt.Fprintf(w, "%-10s %s\n", "Created:", o.CreatedAt.Local().Format(time.RFC3339))
	status := string(o.Status)
	if o.SupersededBy != 0 {
		status = fmt.Sprintf("%s by #%d", status, o.SupersededBy)
	}
	fmt.Fprintf(w, "%-10s %s\n", "Status:", status)
	fmt.Fprintf(w, "%-10s %d\n", "Tokens:", o.TokenCount)
	if len(o.FileRefs) > 0 {
		fmt.Fprintf(w, "%-10s %s\n", "Files:", strings.Join(o.FileRefs, ", "))
	}
	if len(o.SourceIDs) > 0 {
		ids := make([]string, len(o.SourceIDs))
		for i, id := range o.SourceIDs {
			ids[i] = fmt.Sprintf("#%d", id)
		}
		fmt.Fprintf(w, "%-10s %s\n", "Sources:", strings.Join(ids, " "))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, o.Content)
}
