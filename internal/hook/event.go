// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

// Package hook turns host session lifecycle events into memory operations and
// manages the hook entries that make the host send them.
package hook

import (
	"fmt"
	"slices"
	"strings"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/tidwall/gjson"
)

// Kind names an inbound event.
type Kind string

const (
	KindCapture      Kind = "capture"
	KindSessionEnd   Kind = "session_end"
	KindSessionStart Kind = "session_start"
)

var Kinds = []Kind{KindCapture, KindSessionEnd, KindSessionStart}

// ParseKind accepts the event names with either '_' or '-' separators.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !slices.Contains(Kinds, k) {
		return "", engramerr.Errorf(engramerr.CodeHookEventInvalid, "unknown hook event %q", s)
	}
	return k, nil
}

// Event is one inbound host event.
type Event struct {
	Kind      Kind     `json:"kind"`
	SessionID string   `json:"session_id,omitempty"`
	Project   string   `json:"project,omitempty"`
	Content   string   `json:"content,omitempty"`
	Type      string   `json:"type,omitempty"`
	FileRefs  []string `json:"file_refs,omitempty"`
	Query     string   `json:"query,omitempty"`
}

// maxToolInputChars bounds how much of a tool's input is kept in a capture
// derived from a tool-use payload.
const maxToolInputChars = 2000

// Parse decodes a payload for kind. Besides the plain schema
// ({content, type, session_id, project, query}) it accepts the payloads Claude
// Code hands to its PostToolUse, Stop and SessionStart hooks, taking the
// project from cwd and building capture content from the tool call.
func Parse(kind Kind, payload []byte) (Event, error) {
	ev := Event{Kind: kind}
	if len(strings.TrimSpace(string(payload))) == 0 {
		payload = []byte("{}")
	}
	if !gjson.ValidBytes(payload) {
		return ev, engramerr.New(engramerr.CodeHookEventInvalid, "hook payload is not valid JSON")
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return ev, engramerr.New(engramerr.CodeHookEventInvalid, "hook payload must be a JSON object")
	}

	ev.SessionID = strings.TrimSpace(doc.Get("session_id").String())
	ev.Project = firstString(doc, "project", "cwd")

	switch kind {
	case KindCapture:
		ev.Type = strings.TrimSpace(doc.Get("type").String())
		ev.Content = strings.TrimSpace(doc.Get("content").String())
		for _, r := range doc.Get("file_refs").Array() {
			if s := strings.TrimSpace(r.String()); s != "" {
				ev.FileRefs = append(ev.FileRefs, s)
			}
		}
		if ev.Content == "" && doc.Get("tool_name").Exists() {
			ev.Content, ev.FileRefs = describeToolUse(doc)
		}
		if ev.Content == "" {
			return ev, engramerr.New(engramerr.CodeHookEventInvalid, "capture event has no content",
				engramerr.FieldSessionID(ev.SessionID))
		}
	case KindSessionEnd:
		if ev.SessionID == "" {
			return ev, engramerr.New(engramerr.CodeHookEventInvalid, "session_end event needs a session_id")
		}
	case KindSessionStart:
		ev.Query = strings.TrimSpace(doc.Get("query").String())
	default:
		return ev, engramerr.Errorf(engramerr.CodeHookEventInvalid, "unknown hook event %q", kind)
	}
	return ev, nil
}

// describeToolUse renders a tool call as one line of capture content.
func describeToolUse(doc gjson.Result) (string, []string) {
	tool := doc.Get("tool_name").String()
	input := doc.Get("tool_input")

	var refs []string
	if p := input.Get("file_path").String(); p != "" {
		refs = append(refs, p)
	}

	var detail string
	switch {
	case input.Get("description").String() != "" && input.Get("command").String() != "":
		detail = fmt.Sprintf("%s: %s", input.Get("description").String(), input.Get("command").String())
	case input.Get("command").String() != "":
		detail = input.Get("command").String()
	case len(refs) > 0:
		detail = refs[0]
	default:
		detail = input.Raw
	}
	detail = strings.Join(strings.Fields(detail), " ")
	if len(detail) > maxToolInputChars {
		detail = strings.ToValidUTF8(detail[:maxToolInputChars], "")
	}
	if detail == "" {
		return "", refs
	}
	return fmt.Sprintf("%s %s", tool, detail), refs
}

func firstString(doc gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(doc.Get(p).String()); s != "" {
			return s
		}
	}
	return ""
}
