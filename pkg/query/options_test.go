package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsValues(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want map[string]string
	}{
		{
			name: "empty",
			opts: Options{},
			want: map[string]string{},
		},
		{
			name: "pagination and sort",
			opts: Options{Size: 3, Page: 2, Sort: []string{"-_created", "title"}},
			want: map[string]string{"size": "3", "page": "2", "sort": "-_created,title"},
		},
		{
			name: "levels",
			opts: Options{Levels: 2},
			want: map[string]string{"_levels": "2"},
		},
		{
			name: "exact",
			opts: Options{Filter: map[string]Filter{"_id": {Exact: "4JMjeO737e"}}},
			want: map[string]string{"_id": "4JMjeO737e"},
		},
		{
			name: "search and range",
			opts: Options{Filter: map[string]Filter{
				"title":    {Search: "mil"},
				"_created": {From: "2024-01-01", To: "2024-12-31"},
			}},
			want: map[string]string{
				"title~":       "mil",
				"_createdFrom": "2024-01-01",
				"_createdTo":   "2024-12-31",
			},
		},
		{
			name: "any and all",
			opts: Options{Filter: map[string]Filter{
				"status": {Any: []string{"open", "done"}},
				"tags":   {All: []string{"a", "b"}},
			}},
			want: map[string]string{"status": "open,done", "tags": "a+b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.opts.Values()
			got := map[string]string{}
			for k := range v {
				got[k] = v.Get(k)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptionsValidate(t *testing.T) {
	assert.NoError(t, Options{Size: 3, Page: 1, Levels: 5}.Validate())
	assert.Error(t, Options{Size: -1}.Validate())
	assert.Error(t, Options{Levels: MaxLevels + 1}.Validate())
}

func TestOptionsClone(t *testing.T) {
	orig := Options{
		Sort:   []string{"title"},
		Filter: map[string]Filter{"tags": {Any: []string{"a"}}},
	}
	c := orig.WithExact("_id", "x")
	c.Sort[0] = "changed"
	f := c.Filter["tags"]
	f.Any[0] = "changed"

	assert.Equal(t, "title", orig.Sort[0])
	assert.Equal(t, "a", orig.Filter["tags"].Any[0])
	_, ok := orig.Filter["_id"]
	assert.False(t, ok)
}

func todoDocs() []map[string]any {
	return []map[string]any{
		{"_id": "a", "title": "Buy milk", "done": false, "priority": float64(2), "_created": "2024-01-05T10:00:00Z", "tags": []any{"home"}},
		{"_id": "b", "title": "Write report", "done": true, "priority": float64(1), "_created": "2024-02-01T10:00:00Z", "tags": []any{"work", "urgent"}},
		{"_id": "c", "title": "Call mom", "done": false, "priority": float64(3), "_created": "2024-03-10T10:00:00Z", "tags": []any{"home", "urgent"}},
		{"_id": "d", "title": "Fix bike", "done": false, "priority": float64(2), "_created": "2024-04-20T10:00:00Z"},
		{"_id": "e", "title": "Milk the cow", "done": true, "priority": float64(5), "_created": "2024-05-01T10:00:00Z", "tags": []any{map[string]any{"_id": "farm"}}},
	}
}

func ids(p Page) []string {
	out := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		out = append(out, it["_id"].(string))
	}
	return out
}

func TestOptionsApply(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		want  []string
		total int
	}{
		{
			name:  "no options",
			want:  []string{"a", "b", "c", "d", "e"},
			total: 5,
		},
		{
			name:  "exact bool",
			opts:  Options{Filter: map[string]Filter{"done": {Exact: "true"}}},
			want:  []string{"b", "e"},
			total: 2,
		},
		{
			name:  "search is case insensitive",
			opts:  Options{Filter: map[string]Filter{"title": {Search: "MILK"}}},
			want:  []string{"a", "e"},
			total: 2,
		},
		{
			name:  "date range",
			opts:  Options{Filter: map[string]Filter{"_created": {From: "2024-02-01", To: "2024-04-01"}}},
			want:  []string{"b", "c"},
			total: 2,
		},
		{
			name:  "numeric range",
			opts:  Options{Filter: map[string]Filter{"priority": {From: "2", To: "3"}}},
			want:  []string{"a", "c", "d"},
			total: 3,
		},
		{
			name:  "any",
			opts:  Options{Filter: map[string]Filter{"_id": {Any: []string{"a", "d", "zz"}}}},
			want:  []string{"a", "d"},
			total: 2,
		},
		{
			name:  "all on array field",
			opts:  Options{Filter: map[string]Filter{"tags": {All: []string{"home", "urgent"}}}},
			want:  []string{"c"},
			total: 1,
		},
		{
			name:  "linked object matches on id",
			opts:  Options{Filter: map[string]Filter{"tags": {Exact: "farm"}}},
			want:  []string{"e"},
			total: 1,
		},
		{
			name:  "stable sort by priority then descending date",
			opts:  Options{Sort: []string{"priority", "-_created"}},
			want:  []string{"b", "d", "a", "c", "e"},
			total: 5,
		},
		{
			name:  "second page",
			opts:  Options{Size: 2, Page: 2},
			want:  []string{"c", "d"},
			total: 5,
		},
		{
			name:  "page past the end",
			opts:  Options{Size: 2, Page: 9},
			want:  []string{},
			total: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.opts.Apply(todoDocs())
			assert.Equal(t, tt.want, ids(p))
			assert.Equal(t, tt.total, p.Total)
			assert.Equal(t, len(tt.want), p.Count)
		})
	}
}

func TestPageNavigation(t *testing.T) {
	docs := todoDocs()

	p := Options{Size: 2}.Apply(docs)
	require.Equal(t, 1, p.Page)
	assert.True(t, p.HasNext())
	assert.False(t, p.HasPrev())

	p = Options{Size: 2, Page: 3}.Apply(docs)
	assert.False(t, p.HasNext())
	assert.True(t, p.HasPrev())
	assert.Equal(t, []string{"e"}, ids(p))
}
