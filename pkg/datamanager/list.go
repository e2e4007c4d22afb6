package datamanager

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
	"github.com/hashicorp-forge/datamanager/pkg/query"
	"github.com/hashicorp-forge/datamanager/pkg/traverson"
)

// fetchList requests one page of the list behind rel.
func (c *Client) fetchList(ctx context.Context, rel string, opts query.Options) (*traverson.Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return c.traversal().
		Follow(rel).
		With(traverson.WithQuery(opts.Values())).
		Get(ctx)
}

// listPage turns a list response into a Pager with link accessors.
func listPage[T any](
	ctx context.Context,
	c *Client,
	rel, itemRel string,
	opts query.Options,
	wrap func(*hal.Resource) (T, error),
	self listFunc[T],
) (*Pager[T], error) {
	res, err := c.fetchList(ctx, rel, opts)
	if err != nil {
		return nil, c.fail(err)
	}
	doc := res.Resource

	docs := doc.EmbeddedArray(itemRel)
	p := &Pager[T]{
		Items: make([]T, 0, len(docs)),
		Count: intProperty(doc, "count", len(docs)),
		Total: intProperty(doc, "total", len(docs)),
	}
	for _, d := range docs {
		item, err := wrap(d)
		if err != nil {
			return nil, c.fail(err)
		}
		p.Items = append(p.Items, item)
	}
	linkPages(p, doc, opts, self)
	return p, nil
}

// unwrapSingle returns the one resource a filtered fetch produced. List
// envelopes, recognised by count or total, are unwrapped; zero matches is
// ErrNoMatchDueToFilter and several matches pick the first.
func unwrapSingle(doc *hal.Resource, itemRel string, logger hclog.Logger) (*hal.Resource, error) {
	_, hasCount := doc.Property("count")
	_, hasTotal := doc.Property("total")
	if !hasCount && !hasTotal {
		return doc, nil
	}

	items := doc.EmbeddedArray(itemRel)
	switch len(items) {
	case 0:
		return nil, ErrNoMatchDueToFilter
	case 1:
		return items[0], nil
	}
	logger.Warn("filter matched more than one resource, using the first",
		"rel", itemRel, "matches", len(items))
	return items[0], nil
}

func intProperty(doc *hal.Resource, name string, fallback int) int {
	v, ok := doc.Property(name)
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		i, err := n.Int64()
		if err == nil {
			return int(i)
		}
	}
	return fallback
}

func timeProperty(doc *hal.Resource, name string) time.Time {
	s := doc.StringProperty(name)
	if s == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// legacyFields are unprefixed system fields the API still returns.
var legacyFields = map[string]bool{
	"id":       true,
	"created":  true,
	"modified": true,
	"private":  true,
}

// isSystemField reports whether a property is API bookkeeping rather than
// model data.
func isSystemField(name string) bool {
	return strings.HasPrefix(name, "_") || legacyFields[name]
}

// domainFields selects the model fields of a document.
func domainFields(doc *hal.Resource) map[string]any {
	fields := map[string]any{}
	for k, v := range doc.Properties() {
		if !isSystemField(k) {
			fields[k] = v
		}
	}
	return fields
}
