// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package hook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
)

// marker identifies hook commands owned by engram.
const marker = "engram"

// Entry is one hook group in the host settings file.
type Entry struct {
	Event   string
	Matcher string
	Command string
}

// Entries returns the hook groups that feed engram, invoking bin.
func Entries(bin string) []Entry {
	if bin == "" {
		bin = marker
	}
	return []Entry{
		{Event: "PostToolUse", Matcher: "Bash|Edit|Write", Command: bin + " hook capture"},
		{Event: "Stop", Command: bin + " hook session-end"},
		{Event: "SessionStart", Command: bin + " hook session-start"},
	}
}

// DefaultSettingsPath is the user-level Claude Code settings file.
func DefaultSettingsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "resolving home directory")
	}
	return filepath.Join(home, ".claude", "settings.json"), nil
}

// Change reports what Install did for one hook event.
type Change struct {
	Event string `json:"event"`
	Added bool   `json:"added"`
}

// Install adds the missing entries to the settings file at path, creating it
// when absent. Events that already carry an engram command are left alone.
// Unrelated settings and hooks are preserved. With dryRun nothing is written.
func Install(path string, entries []Entry, dryRun bool) ([]Change, error) {
	data, err := readSettings(path)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for _, e := range entries {
		key := "hooks." + e.Event
		if installed(gjson.GetBytes(data, key)) {
			changes = append(changes, Change{Event: e.Event})
			continue
		}

		group, err := json.Marshal(map[string]any{
			"matcher": e.Matcher,
			"hooks":   []map[string]string{{"type": "command", "command": e.Command}},
		})
		if err != nil {
			return nil, engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "encoding hook entry")
		}
		data, err = sjson.SetRawBytes(data, key+".-1", group)
		if err != nil {
			return nil, engramerr.Wrapf(err, engramerr.CodeCLISetupFailure, "adding %s hook", e.Event)
		}
		changes = append(changes, Change{Event: e.Event, Added: true})
	}

	if dryRun || !anyAdded(changes) {
		return changes, nil
	}
	return changes, writeSettings(path, data)
}

// Uninstall removes every hook group holding an engram command and drops
// events left empty. It returns the events that changed.
func Uninstall(path string) ([]string, error) {
	data, err := readSettings(path)
	if err != nil {
		return nil, err
	}

	var removed []string
	gjson.GetBytes(data, "hooks").ForEach(func(event, groups gjson.Result) bool {
		var keep []string
		groups.ForEach(func(_, g gjson.Result) bool {
			if !owned(g) {
				keep = append(keep, g.Raw)
			}
			return true
		})
		if len(keep) == len(groups.Array()) {
			return true
		}
		removed = append(removed, event.String())

		key := "hooks." + event.String()
		if len(keep) == 0 {
			data, err = sjson.DeleteBytes(data, key)
		} else {
			data, err = sjson.SetRawBytes(data, key, []byte("["+strings.Join(keep, ",")+"]"))
		}
		return err == nil
	})
	if err != nil {
		return nil, engramerr.Wrap(err, engramerr.CodeCLISetupFailure, "removing hooks")
	}

	if len(removed) == 0 {
		return nil, nil
	}
	return removed, writeSettings(path, data)
}

// Installed reports, per event of entries, whether an engram hook is present.
func Installed(path string, entries []Entry) (map[string]bool, error) {
	data, err := readSettings(path)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(entries))
	for _, e := range entries {
		out[e.Event] = installed(gjson.GetBytes(data, "hooks."+e.Event))
	}
	return out, nil
}

func installed(groups gjson.Result) bool {
	found := false
	groups.ForEach(func(_, g gjson.Result) bool {
		found = owned(g)
		return !found
	})
	return found
}

func owned(group gjson.Result) bool {
	found := false
	group.Get("hooks").ForEach(func(_, h gjson.Result) bool {
		found = strings.Contains(h.Get("command").String(), marker)
		return !found
	})
	return found
}

func anyAdded(changes []Change) bool {
	for _, c := range changes {
		if c.Added {
			return true
		}
	}
	return false
}

// readSettings returns the settings document, or an empty object when the
// file does not exist. A file that is not a JSON object is refused rather
// than overwritten.
func readSettings(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []byte("{}"), nil
	}
	if err != nil {
		return nil, engramerr.Wrapf(err, engramerr.CodeCLISetupFailure, "reading %s", path)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []byte("{}"), nil
	}
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, engramerr.Errorf(engramerr.CodeConfigParseInvalidFormat, "%s is not a JSON object", path)
	}
	return data, nil
}

func writeSettings(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeCLISetupFailure, "creating %s", filepath.Dir(path))
	}
	out := pretty.PrettyOptions(data, &pretty.Options{Width: 80, Indent: "  "})
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return engramerr.Wrapf(err, engramerr.CodeCLISetupFailure, "writing %s", path)
	}
	return nil
}
