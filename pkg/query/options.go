// Package query holds the filter, sort and pagination vocabulary shared by
// every list operation. The same Options translate into server query
// parameters (Values) and evaluate against cached documents (Apply), so a
// list reads the same whether it is served from the network or the cache.
package query

import (
	"maps"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// DefaultSize is the page size the API uses when none is requested.
const DefaultSize = 10

// MaxLevels is the deepest embedding the API supports.
const MaxLevels = 5

// Filter restricts a single field. Empty members are ignored.
type Filter struct {
	// Exact matches the field value exactly.
	Exact string `json:"exact,omitempty" yaml:"exact,omitempty"`

	// Search matches a substring of the field value.
	Search string `json:"search,omitempty" yaml:"search,omitempty"`

	// From and To are inclusive range bounds.
	From string `json:"from,omitempty" yaml:"from,omitempty"`
	To   string `json:"to,omitempty" yaml:"to,omitempty"`

	// Any matches if the field equals one of the values.
	Any []string `json:"any,omitempty" yaml:"any,omitempty"`

	// All matches if the field contains every value.
	All []string `json:"all,omitempty" yaml:"all,omitempty"`
}

func (f Filter) isZero() bool {
	return f.Exact == "" && f.Search == "" && f.From == "" && f.To == "" &&
		len(f.Any) == 0 && len(f.All) == 0
}

// Options are the list options accepted by entry, asset and tag lists.
type Options struct {
	Size   int               `json:"size,omitempty" yaml:"size,omitempty"`
	Page   int               `json:"page,omitempty" yaml:"page,omitempty"`
	Sort   []string          `json:"sort,omitempty" yaml:"sort,omitempty"`
	Levels int               `json:"levels,omitempty" yaml:"levels,omitempty"`
	Filter map[string]Filter `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Validate checks the numeric options.
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.Size, validation.Min(0)),
		validation.Field(&o.Page, validation.Min(0)),
		validation.Field(&o.Levels, validation.Min(0), validation.Max(MaxLevels)),
	)
}

// Clone returns a deep copy of o.
func (o Options) Clone() Options {
	n := o
	n.Sort = slices.Clone(o.Sort)
	if o.Filter != nil {
		n.Filter = make(map[string]Filter, len(o.Filter))
		for k, f := range o.Filter {
			f.Any = slices.Clone(f.Any)
			f.All = slices.Clone(f.All)
			n.Filter[k] = f
		}
	}
	return n
}

// WithExact returns a copy of o with an exact filter on field.
func (o Options) WithExact(field, value string) Options {
	n := o.Clone()
	if n.Filter == nil {
		n.Filter = map[string]Filter{}
	}
	f := n.Filter[field]
	f.Exact = value
	n.Filter[field] = f
	return n
}

// Values translates o into API query parameters.
func (o Options) Values() url.Values {
	v := url.Values{}
	if o.Size > 0 {
		v.Set("size", strconv.Itoa(o.Size))
	}
	if o.Page > 0 {
		v.Set("page", strconv.Itoa(o.Page))
	}
	if len(o.Sort) > 0 {
		v.Set("sort", strings.Join(o.Sort, ","))
	}
	if o.Levels > 0 {
		v.Set("_levels", strconv.Itoa(o.Levels))
	}

	fields := slices.Sorted(maps.Keys(o.Filter))
	for _, field := range fields {
		f := o.Filter[field]
		if f.Exact != "" {
			v.Set(field, f.Exact)
		}
		if f.Search != "" {
			v.Set(field+"~", f.Search)
		}
		if f.From != "" {
			v.Set(field+"From", f.From)
		}
		if f.To != "" {
			v.Set(field+"To", f.To)
		}
		if len(f.Any) > 0 {
			v.Set(field, strings.Join(f.Any, ","))
		}
		if len(f.All) > 0 {
			v.Set(field, strings.Join(f.All, "+"))
		}
	}
	return v
}

// Page is a window over a filtered and sorted document set.
type Page struct {
	Items []map[string]any
	Count int
	Total int
	Page  int
	Size  int
}

// HasNext reports whether a later page exists.
func (p Page) HasNext() bool {
	return p.Page*p.Size < p.Total
}

// HasPrev reports whether an earlier page exists.
func (p Page) HasPrev() bool {
	return p.Page > 1
}

// Apply filters, sorts and paginates docs in memory. docs is not modified.
func (o Options) Apply(docs []map[string]any) Page {
	filtered := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if o.matches(doc) {
			filtered = append(filtered, doc)
		}
	}

	if keys := parseSort(o.Sort); len(keys) > 0 {
		sort.SliceStable(filtered, func(i, j int) bool {
			for _, k := range keys {
				c := compareValues(filtered[i][k.field], filtered[j][k.field])
				if c == 0 {
					continue
				}
				if k.desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	size := o.Size
	if size <= 0 {
		size = DefaultSize
	}
	page := o.Page
	if page <= 0 {
		page = 1
	}

	start := (page - 1) * size
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + size
	if end > len(filtered) {
		end = len(filtered)
	}

	items := filtered[start:end:end]
	return Page{
		Items: items,
		Count: len(items),
		Total: len(filtered),
		Page:  page,
		Size:  size,
	}
}

type sortKey struct {
	field string
	desc  bool
}

func parseSort(sortOpts []string) []sortKey {
	var keys []sortKey
	for _, raw := range sortOpts {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			switch {
			case s == "":
				continue
			case strings.HasPrefix(s, "-"):
				keys = append(keys, sortKey{field: s[1:], desc: true})
			case strings.HasPrefix(s, "+"):
				keys = append(keys, sortKey{field: s[1:]})
			default:
				keys = append(keys, sortKey{field: s})
			}
		}
	}
	return keys
}
