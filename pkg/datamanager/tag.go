package datamanager

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hashicorp-forge/datamanager/pkg/hal"
	"github.com/hashicorp-forge/datamanager/pkg/query"
)

const (
	relTags = "ec:api/tags"
	relTag  = "ec:api/tag"
)

// Tag labels assets. Like Asset, it must not be read while Save runs.
type Tag struct {
	Name  string
	Count int

	client   *Client
	resource *hal.Resource
}

func newTag(c *Client, doc *hal.Resource) *Tag {
	return &Tag{
		Name:     doc.StringProperty("tag"),
		Count:    intProperty(doc, "count", 0),
		client:   c,
		resource: doc,
	}
}

// Save renames the tag to Name.
func (t *Tag) Save(ctx context.Context) error {
	res, err := t.client.at(t.resource).Put(ctx, map[string]any{"tag": t.Name})
	if err != nil {
		return t.client.fail(err)
	}
	if res.Response.StatusCode == http.StatusNoContent || res.Resource == nil {
		return nil
	}
	*t = *newTag(t.client, res.Resource)
	return nil
}

// Delete removes the tag from every asset.
func (t *Tag) Delete(ctx context.Context) error {
	if _, err := t.client.at(t.resource).Delete(ctx); err != nil {
		return t.client.fail(err)
	}
	return nil
}

// TagList lists tags.
func (c *Client) TagList(ctx context.Context, opts query.Options) (*Pager[*Tag], error) {
	wrap := func(doc *hal.Resource) (*Tag, error) {
		return newTag(c, doc), nil
	}
	return listPage(ctx, c, relTags, relTag, opts, wrap, c.TagList)
}

// Tag fetches one tag by name.
func (c *Client) Tag(ctx context.Context, name string) (*Tag, error) {
	if name == "" {
		return nil, c.fail(&ConfigError{Field: "name", Reason: "tag name is required"})
	}
	res, err := c.fetchList(ctx, relTags, query.Options{}.WithExact("tag", name))
	if err != nil {
		return nil, c.fail(err)
	}
	doc, err := unwrapSingle(res.Resource, relTag, c.logger)
	if err != nil {
		return nil, c.fail(fmt.Errorf("tag %q: %w", name, err))
	}
	return newTag(c, doc), nil
}
