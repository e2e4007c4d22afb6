package datamanager

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp-forge/datamanager/pkg/asset"
	"github.com/hashicorp-forge/datamanager/pkg/hal"
	"github.com/hashicorp-forge/datamanager/pkg/query"
	"github.com/hashicorp-forge/datamanager/pkg/traverson"
)

const (
	relAssets = "ec:api/assets"
	relAsset  = "ec:api/asset"

	fileURLTemplate = "{+origin}/files/{assetID}/url{?size,thumb}"
)

// Asset is a stored file with its variants. Save replaces its fields, so
// an Asset must not be shared between goroutines while it is saved.
type Asset struct {
	ID       string
	Title    string
	Type     string
	Tags     []string
	Files    []asset.File
	Created  time.Time
	Modified time.Time

	client   *Client
	resource *hal.Resource
}

func newAsset(c *Client, doc *hal.Resource) (*Asset, error) {
	a := &Asset{client: c}
	if err := a.load(doc); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Asset) load(doc *hal.Resource) error {
	rawFiles, _ := doc.Property("files")
	files, err := asset.DecodeFiles(rawFiles)
	if err != nil {
		return fmt.Errorf("asset %q: %w", doc.StringProperty("assetID"), err)
	}

	a.resource = doc
	a.ID = doc.StringProperty("assetID")
	a.Title = doc.StringProperty("title")
	a.Type = doc.StringProperty("type")
	a.Files = files
	a.Created = timeProperty(doc, "created")
	a.Modified = timeProperty(doc, "modified")

	a.Tags = nil
	rawTags, _ := doc.Property("tags")
	list, _ := rawTags.([]any)
	for _, t := range list {
		switch x := t.(type) {
		case string:
			a.Tags = append(a.Tags, x)
		case map[string]any:
			if name := stringOf(x["tag"]); name != "" {
				a.Tags = append(a.Tags, name)
			}
		}
	}
	return nil
}

// Resource returns the wire document the asset was built from.
func (a *Asset) Resource() *hal.Resource {
	return a.resource
}

// FileURL returns the best file for locale, which may be empty.
func (a *Asset) FileURL(locale string) (string, error) {
	return asset.Negotiate(a.Type, a.Files, asset.Request{Locale: locale})
}

// ImageURL returns the smallest original image with an edge of at least
// size pixels, or the largest if size is zero.
func (a *Asset) ImageURL(size int, locale string) (string, error) {
	return asset.Negotiate(a.Type, a.Files, asset.Request{Image: true, Size: size, Locale: locale})
}

// ImageThumbURL is ImageURL for generated thumbnails.
func (a *Asset) ImageThumbURL(size int, locale string) (string, error) {
	return asset.Negotiate(a.Type, a.Files, asset.Request{Thumb: true, Size: size, Locale: locale})
}

// Save writes title and tags.
func (a *Asset) Save(ctx context.Context) error {
	body := map[string]any{
		"title": a.Title,
		"tags":  a.Tags,
	}
	if a.Tags == nil {
		body["tags"] = []string{}
	}

	res, err := a.client.at(a.resource).Put(ctx, body)
	if err != nil {
		return a.client.fail(err)
	}
	if res.Response.StatusCode == http.StatusNoContent || res.Resource == nil {
		return nil
	}
	return a.load(res.Resource)
}

// Delete removes the asset.
func (a *Asset) Delete(ctx context.Context) error {
	if _, err := a.client.at(a.resource).Delete(ctx); err != nil {
		return a.client.fail(err)
	}
	return nil
}

// AssetList lists assets.
func (c *Client) AssetList(ctx context.Context, opts query.Options) (*Pager[*Asset], error) {
	wrap := func(doc *hal.Resource) (*Asset, error) {
		return newAsset(c, doc)
	}
	return listPage(ctx, c, relAssets, relAsset, opts, wrap, c.AssetList)
}

// Asset fetches one asset by ID.
func (c *Client) Asset(ctx context.Context, id string) (*Asset, error) {
	if id == "" {
		return nil, c.fail(&ConfigError{Field: "id", Reason: "asset id is required"})
	}
	res, err := c.fetchList(ctx, relAssets, query.Options{}.WithExact("assetID", id))
	if err != nil {
		return nil, c.fail(err)
	}
	doc, err := unwrapSingle(res.Resource, relAsset, c.logger)
	if err != nil {
		return nil, c.fail(fmt.Errorf("asset %q: %w", id, err))
	}
	a, err := newAsset(c, doc)
	if err != nil {
		return nil, c.fail(err)
	}
	return a, nil
}

// FileURL asks the API for the best file of an asset for locale.
func (c *Client) FileURL(ctx context.Context, assetID, locale string) (string, error) {
	return c.negotiateRemote(ctx, assetID, 0, false, locale)
}

// ImageURL asks the API for the best image of at least size pixels.
func (c *Client) ImageURL(ctx context.Context, assetID string, size int, locale string) (string, error) {
	return c.negotiateRemote(ctx, assetID, size, false, locale)
}

// ImageThumbURL asks the API for the best thumbnail of at least size pixels.
func (c *Client) ImageThumbURL(ctx context.Context, assetID string, size int, locale string) (string, error) {
	return c.negotiateRemote(ctx, assetID, size, true, locale)
}

func (c *Client) negotiateRemote(ctx context.Context, assetID string, size int, thumb bool, locale string) (string, error) {
	if assetID == "" {
		return "", c.fail(&ConfigError{Field: "id", Reason: "asset id is required"})
	}

	params := map[string]any{
		"origin":  c.origin,
		"assetID": assetID,
	}
	if size > 0 {
		params["size"] = size
	}
	if thumb {
		params["thumb"] = true
	}
	u, err := traverson.ExpandTemplate(fileURLTemplate, params)
	if err != nil {
		return "", err
	}

	opts := []traverson.Option{traverson.WithMediaType(traverson.MediaTypeJSON)}
	if locale != "" {
		opts = append(opts, traverson.WithHeader("Accept-Language", locale))
	}

	doc, err := c.traversalFrom(u, opts...).GetResource(ctx)
	if err != nil {
		return "", c.fail(err)
	}
	fileURL := doc.StringProperty("url")
	if fileURL == "" {
		return "", c.fail(fmt.Errorf("no file url for asset %q", assetID))
	}
	return fileURL, nil
}
