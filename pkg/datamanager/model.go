package datamanager

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/mapstructure"

	"github.com/hashicorp-forge/datamanager/pkg/cache"
	"github.com/hashicorp-forge/datamanager/pkg/hal"
	"github.com/hashicorp-forge/datamanager/pkg/query"
	"github.com/hashicorp-forge/datamanager/pkg/traverson"
)

// loadPageSize is the page size used to load a whole model into the cache.
const loadPageSize = 100

const schemaTemplate = "{+origin}/api/schema/{id}/{model}{?template}"

// Field is a field definition of a model.
type Field struct {
	Title       string `mapstructure:"title" json:"title"`
	Type        string `mapstructure:"type" json:"type"`
	Description string `mapstructure:"description" json:"description,omitempty"`
	Required    bool   `mapstructure:"required" json:"required"`
	Unique      bool   `mapstructure:"unique" json:"unique"`
	Localizable bool   `mapstructure:"localizable" json:"localizable"`
	Mutable     bool   `mapstructure:"mutable" json:"mutable"`
	Validation  any    `mapstructure:"validation" json:"validation,omitempty"`
}

// Model is an entry type of the Data Manager.
type Model struct {
	Title       string  `mapstructure:"title" json:"title"`
	Description string  `mapstructure:"description" json:"description,omitempty"`
	TitleField  string  `mapstructure:"titleField" json:"titleField,omitempty"`
	HasEntries  bool    `mapstructure:"hasEntries" json:"hasEntries"`
	Fields      []Field `mapstructure:"fields" json:"fields,omitempty"`

	client *Client
	logger hclog.Logger

	mu    sync.Mutex
	cache *cache.Collection
}

// modelDefinition is the decoded form of a model document. Decoding into a
// fresh value drops properties the server no longer sends.
type modelDefinition struct {
	Title       string  `mapstructure:"title"`
	Description string  `mapstructure:"description"`
	TitleField  string  `mapstructure:"titleField"`
	HasEntries  bool    `mapstructure:"hasEntries"`
	Fields      []Field `mapstructure:"fields"`
}

func (m *Model) apply(doc map[string]any) error {
	var def modelDefinition
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &def,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := dec.Decode(doc); err != nil {
		return fmt.Errorf("error decoding model %q: %w", m.Title, err)
	}

	if def.Title != "" {
		m.Title = def.Title
	}
	m.Description = def.Description
	m.TitleField = def.TitleField
	m.HasEntries = def.HasEntries
	m.Fields = def.Fields
	return nil
}

// Resolve loads the model definition from the API root.
func (m *Model) Resolve(ctx context.Context) error {
	models, err := m.client.ModelList(ctx)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(models, func(o *Model) bool { return o == m }) {
		return m.client.fail(fmt.Errorf("%w: model %q", hal.ErrRelationNotFound, m.Title))
	}
	return nil
}

// Field returns the definition of the named field.
func (m *Model) Field(title string) (Field, bool) {
	i := slices.IndexFunc(m.Fields, func(f Field) bool { return f.Title == title })
	if i < 0 {
		return Field{}, false
	}
	return m.Fields[i], true
}

func (m *Model) rel() string {
	return m.client.rel(m.Title)
}

// Entries lists entries. With the cache enabled, the list is served from
// the cache unless it is stale.
func (m *Model) Entries(ctx context.Context, opts query.Options) (*Pager[*Entry], error) {
	return m.EntriesWithMode(ctx, opts, cache.ModeDefault)
}

// EntriesWithMode lists entries, selecting the cache mode. The mode is
// ignored when the cache is not enabled.
func (m *Model) EntriesWithMode(ctx context.Context, opts query.Options, mode cache.Mode) (*Pager[*Entry], error) {
	if coll := m.collection(); coll != nil && coll.Enabled() {
		return m.cachedEntries(ctx, coll, opts, mode)
	}
	return m.networkEntries(ctx, opts)
}

func (m *Model) networkEntries(ctx context.Context, opts query.Options) (*Pager[*Entry], error) {
	wrap := func(doc *hal.Resource) (*Entry, error) {
		return newEntry(m, doc), nil
	}
	return listPage(ctx, m.client, m.rel(), m.rel(), opts, wrap, m.networkEntries)
}

func (m *Model) cachedEntries(ctx context.Context, coll *cache.Collection, opts query.Options, mode cache.Mode) (*Pager[*Entry], error) {
	if err := opts.Validate(); err != nil {
		return nil, m.client.fail(err)
	}
	res, err := coll.Read(ctx, cache.ReadOptions{Mode: mode, Query: opts})
	if err != nil {
		return nil, m.client.fail(err)
	}

	p := &Pager[*Entry]{
		Items:   make([]*Entry, 0, len(res.Items)),
		Count:   res.Count,
		Total:   res.Total,
		Offline: res.Offline,
	}
	for _, doc := range res.Items {
		p.Items = append(p.Items, newEntry(m, hal.FromMap(doc)))
	}
	cachedPages(p, res.Page, opts, func(ctx context.Context, o query.Options) (*Pager[*Entry], error) {
		return m.EntriesWithMode(ctx, o, mode)
	})
	return p, nil
}

// Entry fetches one entry by ID. levels > 1 embeds linked entries.
func (m *Model) Entry(ctx context.Context, id string, levels int) (*Entry, error) {
	if id == "" {
		return nil, m.client.fail(&ConfigError{Field: "id", Reason: "entry id is required"})
	}
	opts := query.Options{Levels: levels}.WithExact("_id", id)

	res, err := m.client.fetchList(ctx, m.rel(), opts)
	if err != nil {
		return nil, m.client.fail(err)
	}
	doc, err := unwrapSingle(res.Resource, m.rel(), m.logger)
	if err != nil {
		return nil, m.client.fail(fmt.Errorf("entry %q of model %q: %w", id, m.Title, err))
	}
	return newEntry(m, doc), nil
}

// CreateEntry creates an entry with the given field values.
func (m *Model) CreateEntry(ctx context.Context, fields map[string]any) (*Entry, error) {
	res, err := m.client.traversal().Follow(m.rel()).Post(ctx, fields)
	if err != nil {
		return nil, m.client.fail(err)
	}
	if res.Resource == nil {
		return nil, m.client.fail(fmt.Errorf("create entry of model %q: empty response", m.Title))
	}
	return newEntry(m, res.Resource), nil
}

// Schema fetches the JSON schema of the model for method get, put or post.
func (m *Model) Schema(ctx context.Context, method string) (map[string]any, error) {
	method = strings.ToLower(method)
	if method == "" {
		method = "get"
	}
	switch method {
	case "get", "put", "post":
	default:
		return nil, fmt.Errorf("%w %q: schema supports get, put and post", ErrInvalidMethod, method)
	}

	u, err := traverson.ExpandTemplate(schemaTemplate, map[string]any{
		"origin":   m.client.origin,
		"id":       m.client.id,
		"model":    m.Title,
		"template": method,
	})
	if err != nil {
		return nil, err
	}

	doc, err := m.client.traversalFrom(u,
		traverson.WithLogger(m.logger),
		traverson.WithMediaType(traverson.MediaTypeJSON),
	).GetResource(ctx)
	if err != nil {
		return nil, m.client.fail(err)
	}
	return doc.Document(), nil
}

func (m *Model) collection() *cache.Collection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache
}

// EnableCache keeps a local copy of every entry, reloaded when it is older
// than maxAge. A zero maxAge uses cache.DefaultMaxAge.
func (m *Model) EnableCache(ctx context.Context, maxAge time.Duration) error {
	m.mu.Lock()
	if m.cache == nil || !m.cache.Enabled() {
		m.client.mu.Lock()
		store := m.client.cacheStore
		m.client.mu.Unlock()

		coll, err := cache.New(m.Title, cache.Options{
			Loader: cache.LoaderFunc(m.loadAll),
			Prober: cache.ProberFunc(m.client.probe),
			Store:  store,
			MaxAge: maxAge,
			Logger: m.logger,
		})
		if err != nil {
			m.mu.Unlock()
			return m.client.fail(err)
		}
		m.cache = coll
	}
	coll := m.cache
	m.mu.Unlock()

	if err := coll.Enable(ctx); err != nil {
		return m.client.fail(err)
	}
	return nil
}

// ClearCache drops the local copy and disables the cache.
func (m *Model) ClearCache(ctx context.Context) error {
	coll := m.collection()
	if coll == nil {
		return m.client.fail(cache.ErrNotEnabled)
	}
	if err := coll.Clear(ctx); err != nil {
		return m.client.fail(err)
	}
	return nil
}

// CacheEnabled reports whether entries are served from the cache.
func (m *Model) CacheEnabled() bool {
	coll := m.collection()
	return coll != nil && coll.Enabled()
}

// loadAll pages through every entry of the model.
func (m *Model) loadAll(ctx context.Context) (cache.LoadResult, error) {
	out := cache.LoadResult{Title: m.Title, Documents: []map[string]any{}}
	opts := query.Options{Size: loadPageSize, Page: 1}

	for {
		res, err := m.client.fetchList(ctx, m.rel(), opts)
		if err != nil {
			return cache.LoadResult{}, err
		}
		if out.ETag == "" && res.Response != nil {
			out.ETag = res.Response.Header.Get("ETag")
		}
		for _, doc := range res.Resource.EmbeddedArray(m.rel()) {
			out.Documents = append(out.Documents, doc.Document())
		}

		next := res.Resource.Link("next")
		if next == nil || next.Href == "" {
			break
		}
		nextOpts := linkOptions(opts, next.Href)
		if nextOpts.Page <= opts.Page {
			m.logger.Warn("next link does not advance, stopping", "href", next.Href)
			break
		}
		opts = nextOpts
	}

	m.logger.Debug("loaded model", "entries", len(out.Documents))
	return out, nil
}
