package datamanager

import (
	"context"
	"regexp"
	"strconv"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
	"github.com/hashicorp-forge/datamanager/pkg/query"
)

// Pager is one page of a list. Next, Prev and First are nil when the
// corresponding page does not exist.
type Pager[T any] struct {
	Items []T
	Count int
	Total int

	// Offline is set for cached lists served without reaching the API.
	Offline bool

	Next  func(ctx context.Context) (*Pager[T], error)
	Prev  func(ctx context.Context) (*Pager[T], error)
	First func(ctx context.Context) (*Pager[T], error)
}

type listFunc[T any] func(ctx context.Context, opts query.Options) (*Pager[T], error)

var (
	sizeParam = regexp.MustCompile(`[?&]size=(\d+)`)
	pageParam = regexp.MustCompile(`[?&]page=(\d+)`)
)

// linkOptions derives the options of the page a link points to. Values
// absent from the link are cleared so they do not carry over from opts.
func linkOptions(opts query.Options, href string) query.Options {
	next := opts.Clone()
	next.Size, next.Page = 0, 0
	if m := sizeParam.FindStringSubmatch(href); m != nil {
		next.Size, _ = strconv.Atoi(m[1])
	}
	if m := pageParam.FindStringSubmatch(href); m != nil {
		next.Page, _ = strconv.Atoi(m[1])
	}
	return next
}

func pageAccessor[T any](list listFunc[T], opts query.Options) func(context.Context) (*Pager[T], error) {
	return func(ctx context.Context) (*Pager[T], error) {
		return list(ctx, opts)
	}
}

// linkPages sets the accessors from the next, prev and first links of a
// list response. Each accessor closes over its own options.
func linkPages[T any](p *Pager[T], res *hal.Resource, opts query.Options, list listFunc[T]) {
	for _, rel := range []struct {
		name string
		dst  *func(context.Context) (*Pager[T], error)
	}{
		{"next", &p.Next},
		{"prev", &p.Prev},
		{"first", &p.First},
	} {
		if l := res.Link(rel.name); l != nil && l.Href != "" {
			*rel.dst = pageAccessor(list, linkOptions(opts, l.Href))
		}
	}
}

// cachedPages sets the accessors of a list served from the cache from page
// arithmetic.
func cachedPages[T any](p *Pager[T], page query.Page, opts query.Options, list listFunc[T]) {
	at := func(n int) query.Options {
		o := opts.Clone()
		o.Page = n
		o.Size = page.Size
		return o
	}
	if page.HasNext() {
		p.Next = pageAccessor(list, at(page.Page+1))
	}
	if page.HasPrev() {
		p.Prev = pageAccessor(list, at(page.Page-1))
		p.First = pageAccessor(list, at(1))
	}
}
