package datamanager

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testID     = "58b9a1f5"
	testRoot   = "/api/" + testID
	entriesURL = testRoot + "/to-do-list"
)

// fakeDM is an in-memory Data Manager API with one model, "to-do-list".
type fakeDM struct {
	t   *testing.T
	srv *httptest.Server

	mu          sync.Mutex
	entries     []map[string]any
	listQueries []url.Values
	noContent   bool
	token       string
	permissions []string
	authHeaders []string
}

func newFakeDM(t *testing.T) *fakeDM {
	t.Helper()
	f := &fakeDM{
		t: t,
		entries: []map[string]any{
			{"_id": "4JMjeO737e", "title": "Buy milk", "done": false, "tags": []any{"home"}},
			{"_id": "Bk3a9d0xQe", "title": "Write report", "done": true, "tags": []any{"work"}},
			{"_id": "C8s2lAq0pe", "title": "Call mom", "done": false, "tags": []any{"home"}},
			{"_id": "Dq2ma7xK1e", "title": "Fix bike", "done": false},
			{"_id": "E9jaq1mZ2e", "title": "Pay rent", "done": true, "parent": map[string]any{"_id": "4JMjeO737e"}},
		},
		permissions: []string{"dm-entry:58b9a1f5:to-do-list:read,update"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+testRoot, f.handleRoot)
	mux.HandleFunc(entriesURL, f.handleEntries)
	mux.HandleFunc("GET "+testRoot+"/assets", f.handleAssets)
	mux.HandleFunc("DELETE "+testRoot+"/assets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET "+testRoot+"/tags", f.handleTags)
	mux.HandleFunc("PUT "+testRoot+"/tags/{name}", f.handleTagPut)
	mux.HandleFunc("POST "+testRoot+"/_auth/anonymous", f.handleAnonymous)
	mux.HandleFunc("GET "+testRoot+"/_auth/account", f.handleAccount)
	mux.HandleFunc("POST "+testRoot+"/_auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /api/schema/"+testID+"/{model}", f.handleSchema)
	mux.HandleFunc("GET /files/{id}/url", f.handleFileURL)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDM) rootURL() string {
	return f.srv.URL + testRoot
}

func (f *fakeDM) client(t *testing.T, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := Config{URL: f.rootURL()}
	for _, m := range mutate {
		m(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

func (f *fakeDM) listRequests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.listQueries)
}

func (f *fakeDM) entry(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return maps.Clone(f.entries[i])
}

func (f *fakeDM) addEntry(e map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
}

func (f *fakeDM) setNoContent(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noContent = v
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeHAL(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, "application/hal+json", v)
}

func writeError(w http.ResponseWriter, status, code int, title string) {
	writeJSON(w, status, "application/json", map[string]any{
		"status": status,
		"code":   code,
		"title":  title,
	})
}

func link(href string) map[string]any {
	return map[string]any{"href": href}
}

func (f *fakeDM) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeHAL(w, http.StatusOK, map[string]any{
		"_links": map[string]any{
			"self":                        link(testRoot),
			testID + ":to-do-list":        link(entriesURL),
			testID + ":_auth/anonymous":   link(testRoot + "/_auth/anonymous"),
			testID + ":_auth/account":     link(testRoot + "/_auth/account"),
			testID + ":_auth/logout":      link(testRoot + "/_auth/logout"),
			"ec:api/assets":               link(testRoot + "/assets"),
			"ec:api/tags":                 link(testRoot + "/tags"),
			"curies": []any{map[string]any{
				"name":      "ec",
				"href":      "https://doc.entrecode.de/{rel}",
				"templated": true,
			}},
		},
		"shortID": testID,
		"models": []any{
			map[string]any{
				"title":      "to-do-list",
				"titleField": "title",
				"hasEntries": true,
				"fields": []any{
					map[string]any{"title": "title", "type": "text", "required": true},
					map[string]any{"title": "done", "type": "boolean"},
					map[string]any{"title": "tags", "type": "json"},
				},
			},
		},
	})
}

func (f *fakeDM) entryDoc(e map[string]any) map[string]any {
	doc := maps.Clone(e)
	id := e["_id"].(string)
	doc["id"] = id
	doc["_modelTitle"] = "to-do-list"
	doc["_entryTitle"] = e["title"]
	doc["_created"] = "2024-01-02T10:00:00.000Z"
	doc["_modified"] = "2024-01-03T10:00:00.000Z"
	doc["_links"] = map[string]any{
		"self": link(entriesURL + "?_id=" + id),
	}
	return doc
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (f *fakeDM) handleEntries(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	q := r.URL.Query()
	switch r.Method {
	case http.MethodGet:
		f.listQueries = append(f.listQueries, q)
		if q.Get("title~") == "fail" {
			writeError(w, http.StatusBadRequest, 2201, "invalid filter")
			return
		}

		var matched []map[string]any
		for _, e := range f.entries {
			if id := q.Get("_id"); id != "" && e["_id"] != id {
				continue
			}
			matched = append(matched, e)
		}

		size := atoiDefault(q.Get("size"), 10)
		page := atoiDefault(q.Get("page"), 1)
		start := min((page-1)*size, len(matched))
		end := min(start+size, len(matched))

		items := make([]any, 0, end-start)
		for _, e := range matched[start:end] {
			items = append(items, f.entryDoc(e))
		}

		pageLink := func(p int) map[string]any {
			return link(fmt.Sprintf("%s?size=%d&page=%d", entriesURL, size, p))
		}
		links := map[string]any{"self": pageLink(page)}
		if end < len(matched) {
			links["next"] = pageLink(page + 1)
		}
		if page > 1 {
			links["prev"] = pageLink(page - 1)
			links["first"] = pageLink(1)
		}

		w.Header().Set("ETag", `W/"list-1"`)
		writeHAL(w, http.StatusOK, map[string]any{
			"count":     len(items),
			"total":     len(matched),
			"_links":    links,
			"_embedded": map[string]any{testID + ":to-do-list": items},
		})

	case http.MethodPost:
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, 2000, "invalid body")
			return
		}
		body["_id"] = fmt.Sprintf("new%d", len(f.entries))
		f.entries = append(f.entries, body)
		writeHAL(w, http.StatusCreated, f.entryDoc(body))

	case http.MethodPut:
		id := q.Get("_id")
		i := slices.IndexFunc(f.entries, func(e map[string]any) bool { return e["_id"] == id })
		if i < 0 {
			writeError(w, http.StatusNotFound, 2102, "entry not found")
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, 2000, "invalid body")
			return
		}
		for k := range body {
			if strings.HasPrefix(k, "_") {
				writeError(w, http.StatusBadRequest, 2211, "system field in body: "+k)
				return
			}
		}
		maps.Copy(f.entries[i], body)
		if f.noContent {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		doc := f.entryDoc(f.entries[i])
		doc["_modified"] = "2024-02-01T10:00:00.000Z"
		writeHAL(w, http.StatusOK, doc)

	case http.MethodDelete:
		id := q.Get("_id")
		f.entries = slices.DeleteFunc(f.entries, func(e map[string]any) bool { return e["_id"] == id })
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeDM) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets := []any{
		map[string]any{
			"assetID": "a1b2c3d4-0000-4000-8000-000000000001",
			"title":   "Logo",
			"type":    "image",
			"tags":    []any{"brand", map[string]any{"tag": "web"}},
			"files": []any{
				map[string]any{"url": "https://cdn.example/a_thumb.jpg", "resolution": map[string]any{"width": 100, "height": 100}},
				map[string]any{"url": "https://cdn.example/b.jpg", "resolution": map[string]any{"width": 400, "height": 400}},
				map[string]any{"url": "https://cdn.example/c.svg", "resolution": nil},
			},
			"_links": map[string]any{"self": link(testRoot + "/assets/a1b2c3d4")},
		},
		map[string]any{
			"assetID": "a1b2c3d4-0000-4000-8000-000000000002",
			"title":   "Manual",
			"type":    "document",
			"files": []any{
				map[string]any{"url": "https://cdn.example/manual-en.pdf", "locale": "en_US"},
				map[string]any{"url": "https://cdn.example/manual-de.pdf", "locale": "de_DE"},
			},
			"_links": map[string]any{"self": link(testRoot + "/assets/manual")},
		},
	}

	if id := r.URL.Query().Get("assetID"); id != "" {
		assets = slices.DeleteFunc(assets, func(a any) bool {
			return a.(map[string]any)["assetID"] != id
		})
	}

	writeHAL(w, http.StatusOK, map[string]any{
		"count":     len(assets),
		"total":     len(assets),
		"_links":    map[string]any{"self": link(testRoot + "/assets")},
		"_embedded": map[string]any{"ec:api/asset": assets},
	})
}

func (f *fakeDM) handleTags(w http.ResponseWriter, r *http.Request) {
	tags := []any{
		map[string]any{"tag": "brand", "count": 3, "_links": map[string]any{"self": link(testRoot + "/tags/brand")}},
		map[string]any{"tag": "web", "count": 1, "_links": map[string]any{"self": link(testRoot + "/tags/web")}},
	}
	if name := r.URL.Query().Get("tag"); name != "" {
		tags = slices.DeleteFunc(tags, func(t any) bool {
			return t.(map[string]any)["tag"] != name
		})
	}
	writeHAL(w, http.StatusOK, map[string]any{
		"count":     len(tags),
		"total":     len(tags),
		"_links":    map[string]any{"self": link(testRoot + "/tags")},
		"_embedded": map[string]any{"ec:api/tag": tags},
	})
}

func (f *fakeDM) handleTagPut(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, 2000, "invalid body")
		return
	}
	name, _ := body["tag"].(string)
	writeHAL(w, http.StatusOK, map[string]any{
		"tag":    name,
		"count":  3,
		"_links": map[string]any{"self": link(testRoot + "/tags/" + name)},
	})
}

func (f *fakeDM) issueToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "anon-account",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func (f *fakeDM) handleAnonymous(w http.ResponseWriter, r *http.Request) {
	token := f.issueToken(f.t, time.Now().Add(time.Hour).Truncate(time.Second))
	f.mu.Lock()
	f.token = token
	f.mu.Unlock()

	assert.Equal(f.t, "my-client", r.URL.Query().Get("clientID"))
	writeJSON(w, http.StatusOK, "application/json", map[string]any{
		"jwt":       token,
		"accountID": "anon-account",
	})
}

func (f *fakeDM) handleAccount(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	auth := r.Header.Get("Authorization")
	f.authHeaders = append(f.authHeaders, auth)
	if f.token == "" || auth != "Bearer "+f.token {
		writeError(w, http.StatusUnauthorized, 2501, "unauthorized")
		return
	}
	writeHAL(w, http.StatusOK, map[string]any{
		"accountID":   "anon-account",
		"permissions": f.permissions,
		"_links":      map[string]any{"self": link(testRoot + "/_auth/account")},
	})
}

func (f *fakeDM) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "application/schema+json", map[string]any{
		"id":       r.URL.String(),
		"model":    r.PathValue("model"),
		"template": r.URL.Query().Get("template"),
		"type":     "object",
	})
}

func (f *fakeDM) handleFileURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u := fmt.Sprintf("https://cdn.example/%s?lang=%s&size=%s&thumb=%s",
		r.PathValue("id"), r.Header.Get("Accept-Language"), q.Get("size"), q.Get("thumb"))
	writeJSON(w, http.StatusOK, "application/json", map[string]any{"url": u})
}
