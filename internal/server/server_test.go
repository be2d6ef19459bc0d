// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Engram Contributors

package server_test

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/engram-dev/engram/internal/embedding"
	"github.com/engram-dev/engram/internal/memory"
	"github.com/engram-dev/engram/internal/server"
	"github.com/engram-dev/engram/internal/store"
	_ "github.com/engram-dev/engram/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	stores, err := store.Open(&store.StorageConfig{VectorDimensions: 64}, t.TempDir())
	require.NoError(t, err)

	client, err := embedding.NewClient(embedding.NewHashEmbedder(64), embedding.ClientConfig{CacheBytes: -1})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	svc, err := memory.New(stores, client, nil, memory.Config{
		Compressor: memory.CompressorConfig{Threshold: 2},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	srv, err := server.New(server.Config{ListenAddr: "127.0.0.1:0"}, svc, client, nil)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *server.Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestNew_RequiresListenAddr(t *testing.T) {
	_, err := server.New(server.Config{}, &memory.Service{}, nil, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", gjson.Get(w.Body.String(), "status").String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_Echoed(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
}

func TestObservation_WriteReadDelete(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/observations",
		`{"content":"switched the cache to ristretto","type":"decision","session_id":"s1","project":"/src/app","file_refs":["cache.go"]}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := gjson.Get(w.Body.String(), "id").Int()
	require.Positive(t, id)

	path := "/api/v1/observations/" + strconv.FormatInt(id, 10)
	w = do(t, srv, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, "switched the cache to ristretto", gjson.Get(body, "content").String())
	assert.Equal(t, "decision", gjson.Get(body, "type").String())
	assert.Equal(t, "active", gjson.Get(body, "status").String())
	assert.Equal(t, "cache.go", gjson.Get(body, "file_refs.0").String())

	w = do(t, srv, http.MethodDelete, path, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, path, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestObservation_WriteDefaultsSession(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/v1/observations", `{"content":"loose note"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, srv, http.MethodGet, "/api/v1/sessions/manual/observations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "loose note", gjson.Get(w.Body.String(), "observations.0.content").String())
}

func TestObservation_WriteRejectsBadType(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/v1/observations", `{"content":"x","type":"gossip"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)
	for _, c := range []string{"sqlite busy timeout tuned to five seconds", "the login page uses tailwind"} {
		w := do(t, srv, http.MethodPost, "/api/v1/observations", `{"content":"`+c+`","session_id":"s1"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, srv, http.MethodPost, "/api/v1/search", `{"query":"sqlite timeout","mode":"keyword"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, "keyword", gjson.Get(body, "mode").String())
	assert.Equal(t, int64(1), gjson.Get(body, "results.#").Int())
	assert.Contains(t, gjson.Get(body, "results.0.observation.content").String(), "sqlite")

	w = do(t, srv, http.MethodPost, "/api/v1/search", `{"query":"sqlite","types":["gossip"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_CompressAndList(t *testing.T) {
	srv := newTestServer(t)
	for _, c := range []string{"added retry to the embed queue", "documented the retry backoff"} {
		w := do(t, srv, http.MethodPost, "/api/v1/observations", `{"content":"`+c+`","session_id":"s9"}`)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := do(t, srv, http.MethodPost, "/api/v1/sessions/s9/compress", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "summary_ids.#").Int())
	assert.Equal(t, int64(2), gjson.Get(w.Body.String(), "source_ids.#").Int())

	w = do(t, srv, http.MethodGet, "/api/v1/sessions", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "s9", gjson.Get(body, "sessions.0.id").String())
	assert.Equal(t, int64(1), gjson.Get(body, "sessions.0.summaries").Int())
}

func TestHooks_Lifecycle(t *testing.T) {
	srv := newTestServer(t)

	for _, c := range []string{"moved config to viper", "keyring stores the api keys"} {
		w := do(t, srv, http.MethodPost, "/api/v1/hooks/capture",
			`{"session_id":"h1","cwd":"/src/app","content":"`+c+`"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Positive(t, gjson.Get(w.Body.String(), "observation_id").Int())
	}

	w := do(t, srv, http.MethodPost, "/api/v1/hooks/session-end", `{"session_id":"h1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, int64(1), gjson.Get(w.Body.String(), "compression.summary_ids.#").Int())

	w = do(t, srv, http.MethodPost, "/api/v1/hooks/session_start", `{"cwd":"/src/app","query":"viper config"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, gjson.Get(w.Body.String(), "context.text").String(), "<engram-context>")
}

func TestHooks_Invalid(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/hooks/teardown", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/v1/hooks/session-end", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestContext_Empty(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/v1/context", `{"project":"/src/none"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, gjson.Get(w.Body.String(), "text").String())
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t)
	w := do(t, srv, http.MethodPost, "/api/v1/observations", `{"content":"one record"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := w.Body.String()
	assert.Equal(t, int64(1), gjson.Get(body, "stats.observations").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "stats.vectors").Int())
	assert.Equal(t, "hash", gjson.Get(body, "embedder.name").String())
	assert.True(t, gjson.Get(body, "embedder.health.available").Bool())
	assert.False(t, gjson.Get(body, "index.degraded").Bool())
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
