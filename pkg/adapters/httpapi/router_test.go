package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/humus/pkg/adapters/fs"
	"github.com/aretw0/humus/pkg/adapters/httpapi"
	"github.com/aretw0/humus/pkg/core"
)

func newServer(t *testing.T, opts ...func(*fs.Config)) (http.Handler, *core.Service) {
	t.Helper()
	cfg := fs.Config{Path: filepath.Join(t.TempDir(), "store")}
	for _, opt := range opts {
		opt(&cfg)
	}
	repo := fs.NewRepository(cfg)
	require.NoError(t, repo.Initialize(context.Background()))
	svc := core.NewService(repo)
	t.Cleanup(func() { _ = svc.Close() })
	return httpapi.NewRouter(svc, nil), svc
}

func do(t *testing.T, h http.Handler, method, target, body string, header ...string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestRouter_DocumentLifecycle(t *testing.T) {
	h, _ := newServer(t)

	rec, out := do(t, h, http.MethodPost, "/docs", `{"title":"hello","n":1}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, out["ok"])
	id := out["id"].(string)
	rev1 := out["rev"].(string)
	assert.True(t, strings.HasPrefix(rev1, "1-"))

	rec, out = do(t, h, http.MethodGet, "/docs/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, out["_id"])
	assert.Equal(t, rev1, out["_rev"])
	assert.Equal(t, "hello", out["title"])
	assert.Equal(t, `"`+rev1+`"`, rec.Header().Get("ETag"))

	rec, out = do(t, h, http.MethodPut, "/docs/"+id+"?rev="+rev1, `{"title":"changed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rev2 := out["rev"].(string)
	assert.True(t, strings.HasPrefix(rev2, "2-"))

	// Stale revision, this time through If-Match.
	rec, out = do(t, h, http.MethodPut, "/docs/"+id, `{"title":"lost"}`, "If-Match", `"`+rev1+`"`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", out["error"])

	// Revision carried in the body.
	rec, _ = do(t, h, http.MethodPut, "/docs/"+id, `{"_rev":"`+rev2+`","title":"third"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, out = do(t, h, http.MethodGet, "/docs/"+id, "")
	rev3 := out["_rev"].(string)
	assert.Equal(t, "third", out["title"])

	rec, _ = do(t, h, http.MethodDelete, "/docs/"+id+"?rev="+rev3, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, out = do(t, h, http.MethodGet, "/docs/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", out["error"])
}

func TestRouter_PutCreatesWithID(t *testing.T) {
	h, _ := newServer(t)

	rec, out := do(t, h, http.MethodPut, "/docs/settings", `{"theme":"dark"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "settings", out["id"])

	rec, _ = do(t, h, http.MethodPut, "/docs/settings", `{"theme":"light"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = do(t, h, http.MethodPut, "/docs/settings", `{"_id":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_IDsWithSlashes(t *testing.T) {
	h, _ := newServer(t)

	rec, out := do(t, h, http.MethodPut, "/docs/users/1", `{"name":"ada"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "users/1", out["id"])
	rev1 := out["rev"].(string)

	for _, target := range []string{"/docs/users/1", "/docs/users%2F1"} {
		rec, out = do(t, h, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "users/1", out["_id"], target)
		assert.Equal(t, "ada", out["name"], target)
	}

	rec, out = do(t, h, http.MethodPut, "/docs/users%2F1?rev="+rev1, `{"name":"grace"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "users/1", out["id"])
	rev2 := out["rev"].(string)

	rec, _ = do(t, h, http.MethodGet, "/docs/users/2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, h, http.MethodDelete, "/docs/users/1?rev="+rev2, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/docs/users%2F1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, out = do(t, h, http.MethodPut, "/docs/100%25", `{}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "100%", out["id"])
}

func TestRouter_BadRequests(t *testing.T) {
	h, _ := newServer(t)

	cases := []struct {
		name, method, target, body string
	}{
		{"invalid json", http.MethodPost, "/docs", `{"a":`},
		{"array body", http.MethodPost, "/docs", `[1,2]`},
		{"reserved member", http.MethodPost, "/docs", `{"_attachments":{}}`},
		{"reserved id", http.MethodPut, "/docs/_design", `{}`},
		{"malformed rev", http.MethodPut, "/docs/x?rev=nope", `{}`},
		{"bad limit", http.MethodGet, "/docs?limit=-1", ``},
		{"bad pattern", http.MethodGet, "/docs?pattern=%5B", ``},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, out := do(t, h, tc.method, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "bad_request", out["error"])
			assert.NotEmpty(t, out["reason"])
		})
	}
}

func TestRouter_ListAndInfo(t *testing.T) {
	h, _ := newServer(t)
	for _, id := range []string{"b", "a", "c"} {
		rec, _ := do(t, h, http.MethodPut, "/docs/"+id, `{"name":"`+id+`"}`)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec, out := do(t, h, http.MethodGet, "/docs?limit=2&include_docs=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["total_rows"])
	rows := out["rows"].([]any)
	first := rows[0].(map[string]any)
	assert.Equal(t, "a", first["id"])
	assert.Equal(t, "a", first["doc"].(map[string]any)["name"])

	_, out = do(t, h, http.MethodGet, "/docs", "")
	rows = out["rows"].([]any)
	assert.Len(t, rows, 3)
	assert.Nil(t, rows[0].(map[string]any)["doc"])

	rec, out = do(t, h, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), out["doc_count"])
	assert.Equal(t, float64(3), out["update_seq"])
}

func TestRouter_ReadOnlyIsForbidden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store")
	writer := fs.NewRepository(fs.Config{Path: path})
	require.NoError(t, writer.Initialize(context.Background()))
	t.Cleanup(func() { _ = writer.Close() })

	reader := fs.NewRepository(fs.Config{Path: path, ReadOnly: true})
	require.NoError(t, reader.Initialize(context.Background()))
	t.Cleanup(func() { _ = reader.Close() })

	h := httpapi.NewRouter(core.NewService(reader), nil)
	rec, out := do(t, h, http.MethodPost, "/docs", `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", out["error"])
}

func TestRouter_Changes(t *testing.T) {
	h, svc := newServer(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/changes?pattern=jobs/*", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription is registered before headers are flushed.
	_, _, err = svc.Create(ctx, core.Null(), "other")
	require.NoError(t, err)
	_, _, err = svc.Create(ctx, core.Null(), "jobs/1")
	require.NoError(t, err)

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream ended early")
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var change map[string]any
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &change))
			assert.Equal(t, "jobs/1", change["id"])
			assert.Equal(t, "CREATE", change["type"])
			return
		case <-deadline:
			t.Fatal("timeout waiting for change event")
		}
	}
}
