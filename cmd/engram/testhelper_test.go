// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/engram-dev/engram/internal/secrets"
	engramerr "github.com/engram-dev/engram/pkg/errors"
	"github.com/stretchr/testify/require"
)

// writeTestConfig writes a config using the offline hash embedder and a
// fresh data directory. extra is appended verbatim, so indented lines land
// in the compression section.
func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "engram.yaml")
	body := fmt.Sprintf(`data_dir: %s
logging:
  level: error
embedding:
  provider: hash
  dimensions: 64
compression:
  threshold: 2
%s`, filepath.Join(dir, "data"), extra)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// runCmd executes the root command with --config cfgPath and returns stdout.
func runCmd(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(new(bytes.Buffer))
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, cfgPath, stdin string, args ...string) string {
	t.Helper()
	out, err := runCmd(t, cfgPath, stdin, args...)
	require.NoError(t, err, "engram %s", strings.Join(args, " "))
	return out
}

var savedID = regexp.MustCompile(`Saved observation #(\d+)`)

func save(t *testing.T, cfgPath string, args ...string) int64 {
	t.Helper()
	out := mustRun(t, cfgPath, "", append([]string{"save"}, args...)...)
	m := savedID.FindStringSubmatch(out)
	require.Len(t, m, 2, out)
	id, err := strconv.ParseInt(m[1], 10, 64)
	require.NoError(t, err)
	return id
}

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string
}

var _ secrets.Store = (*mockSecretStore)(nil)

func newMockSecretStore(kv ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for i := 0; i+1 < len(kv); i += 2 {
		m.data[kv[i]] = kv[i+1]
	}
	return m
}

func (m *mockSecretStore) Set(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Get(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", engramerr.Errorf(engramerr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return engramerr.Errorf(engramerr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func useSecretStore(t *testing.T, s secrets.Store) {
	t.Helper()
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return s }
	t.Cleanup(func() { secretStoreFactory = old })
}
