package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var todos = []map[string]any{
	{"_id": "4JMjeO737e", "title": "Buy milk", "done": false},
	{"_id": "Bk3a9d0xQe", "title": "Write report", "done": true},
	{"_id": "C8s2lAq0pe", "title": "Call mom", "done": false},
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()

	writeHAL := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/hal+json")
		_ = json.NewEncoder(w).Encode(v)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/58b9a1f5", func(w http.ResponseWriter, r *http.Request) {
		writeHAL(w, map[string]any{
			"_links": map[string]any{
				"self":                link("/api/58b9a1f5"),
				"58b9a1f5:to-do-list": link("/api/58b9a1f5/to-do-list"),
			},
			"models": []any{map[string]any{
				"title":      "to-do-list",
				"titleField": "title",
				"hasEntries": true,
				"fields":     []any{map[string]any{"title": "title", "type": "text"}},
			}},
		})
	})
	mux.HandleFunc("GET /api/58b9a1f5/to-do-list", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		items := []any{}
		for _, e := range todos {
			if id := q.Get("_id"); id != "" && e["_id"] != id {
				continue
			}
			if done := q.Get("done"); done != "" && fmt.Sprint(e["done"]) != done {
				continue
			}
			doc := map[string]any{
				"_links": map[string]any{"self": link("/api/58b9a1f5/to-do-list?_id=" + e["_id"].(string))},
			}
			for k, v := range e {
				doc[k] = v
			}
			items = append(items, doc)
		}
		writeHAL(w, map[string]any{
			"count":     len(items),
			"total":     len(items),
			"_links":    map[string]any{"self": link(r.URL.String())},
			"_embedded": map[string]any{"58b9a1f5:to-do-list": items},
		})
	})
	mux.HandleFunc("GET /files/{id}/url", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"url": fmt.Sprintf("https://cdn.example/%s?size=%s", r.PathValue("id"), r.URL.Query().Get("size")),
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func link(href string) map[string]any {
	return map[string]any{"href": href}
}

type harness struct {
	t   *testing.T
	fs  afero.Fs
	ui  *cli.MockUi
	api *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("DM_TOKEN", "")
	t.Setenv("DM_CONFIG", "")

	h := &harness{
		t:   t,
		fs:  afero.NewMemMapFs(),
		api: newAPI(t),
	}

	dbPath := filepath.Join(t.TempDir(), "cache.db")
	cfg := fmt.Sprintf(`
datamanager {
  url     = "%s/api/58b9a1f5"
  timeout = "5s"
}

cache {
  path    = %q
  max_age = "1h"
}
`, h.api.URL, dbPath)
	require.NoError(t, afero.WriteFile(h.fs, "dm.hcl", []byte(cfg), 0o644))
	return h
}

func (h *harness) run(args ...string) (int, string, string) {
	h.ui = cli.NewMockUi()
	code := run(append([]string{"dm"}, args...), hclog.NewNullLogger(), h.ui, h.fs)
	return code, h.ui.OutputWriter.String(), h.ui.ErrorWriter.String()
}

func TestCommands(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  []string
		wantErr  string
	}{
		{
			name:    "version",
			args:    []string{"version"},
			wantOut: []string{"dm 0.1.0"},
		},
		{
			name:    "version flag",
			args:    []string{"-v"},
			wantOut: []string{"dm 0.1.0"},
		},
		{
			name:    "models",
			args:    []string{"models"},
			wantOut: []string{`"title": "to-do-list"`, `"hasEntries": true`},
		},
		{
			name:    "entries filtered",
			args:    []string{"entries", "-filter", "done=false", "to-do-list"},
			wantOut: []string{`"total": 2`, "Buy milk", "Call mom"},
		},
		{
			name:    "entries yaml",
			args:    []string{"entries", "-format", "yaml", "to-do-list"},
			wantOut: []string{"total: 3", "title: Write report"},
		},
		{
			name:    "entry",
			args:    []string{"entry", "to-do-list", "4JMjeO737e"},
			wantOut: []string{`"_id": "4JMjeO737e"`, `"title": "Buy milk"`},
		},
		{
			name:     "entry not found",
			args:     []string{"entry", "to-do-list", "missing"},
			wantCode: 1,
			wantErr:  "ec_sdk_no_match_due_to_filter",
		},
		{
			name:     "entries without model",
			args:     []string{"entries"},
			wantCode: 1,
			wantErr:  "expected one argument",
		},
		{
			name:     "bad filter",
			args:     []string{"entries", "-filter", "nope", "to-do-list"},
			wantCode: 1,
			wantErr:  "filter must be field=value",
		},
		{
			name:     "bad mode",
			args:     []string{"entries", "-cached", "-mode", "sometimes", "to-do-list"},
			wantCode: 1,
			wantErr:  "unknown cache mode",
		},
		{
			name:     "missing config",
			args:     []string{"models", "-config", "nope.hcl"},
			wantCode: 1,
			wantErr:  "error reading config file",
		},
		{
			name:    "asset url",
			args:    []string{"asset-url", "-size", "200", "abc"},
			wantOut: []string{"https://cdn.example/abc?size=200"},
		},
		{
			name:     "asset url conflicting flags",
			args:     []string{"asset-url", "-image", "-thumb", "abc"},
			wantCode: 1,
			wantErr:  "mutually exclusive",
		},
		{
			name:     "cache clear without models",
			args:     []string{"cache", "clear"},
			wantCode: 1,
			wantErr:  "expected model titles or -all",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out, errOut := h.run(tt.args...)
			assert.Equal(t, tt.wantCode, code, "stderr: %s", errOut)
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
			if tt.wantErr != "" {
				assert.Contains(t, errOut, tt.wantErr)
			}
		})
	}
}

func TestCacheCommands(t *testing.T) {
	h := newHarness(t)

	code, out, errOut := h.run("entries", "-cached", "-filter", "done=true", "to-do-list")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Write report")
	assert.NotContains(t, out, "Buy milk")

	code, out, errOut = h.run("cache", "status")
	require.Equal(t, 0, code, errOut)

	var status []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Len(t, status, 1)
	assert.Equal(t, "to-do-list", status[0]["model"])
	assert.Equal(t, float64(3), status[0]["count"])
	assert.Equal(t, false, status[0]["stale"])

	code, out, errOut = h.run("cache", "clear", "-all")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Cleared to-do-list")

	code, out, errOut = h.run("cache", "status")
	require.Equal(t, 0, code, errOut)
	assert.JSONEq(t, `[]`, out)
}
