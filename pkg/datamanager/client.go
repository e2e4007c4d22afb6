// Package datamanager is a client for the Data Manager HAL+JSON API. It
// lists, reads and writes models, entries, assets and tags by following
// link relations from the API root, with an optional local cache per model.
package datamanager

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp-forge/datamanager/pkg/cache"
	"github.com/hashicorp-forge/datamanager/pkg/hal"
	"github.com/hashicorp-forge/datamanager/pkg/traverson"
)

// Client is a Data Manager API client. It is safe for concurrent use.
type Client struct {
	id       string
	rootURL  string
	origin   string
	clientID string

	http         *http.Client
	timeout      time.Duration
	tokens       *tokenHolder
	errorHandler func(error)
	logger       hclog.Logger

	// cacheStore backs the cache of every model. Nil means in-memory.
	cacheStore cache.Store

	mu     sync.Mutex
	models map[string]*Model
}

// New creates a client. Configuration problems are returned as
// *ConfigError.
func New(cfg Config) (*Client, error) {
	defaults := DefaultConfig()
	if cfg.TLSVerify == nil {
		cfg.TLSVerify = defaults.TLSVerify
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaults.Timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rootURL, id, err := cfg.rootURL()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(rootURL)
	if err != nil {
		return nil, &ConfigError{Field: "url", Reason: err.Error()}
	}

	c := &Client{
		id:           id,
		rootURL:      rootURL,
		origin:       u.Scheme + "://" + u.Host,
		clientID:     cfg.ClientID,
		timeout:      cfg.Timeout,
		tokens:       &tokenHolder{},
		errorHandler: cfg.ErrorHandler,
		logger:       cfg.Logger,
		models:       map[string]*Model{},
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	c.logger = c.logger.Named("datamanager").With("id", id)

	// Timeouts are enforced per traversal so they surface as AbortError.
	// A caller supplied client keeps its own timeout.
	base := cfg.HTTPClient
	var httpTimeout time.Duration
	if base == nil {
		base = cfg.NewHTTPClient()
	} else {
		httpTimeout = base.Timeout
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	c.http = &http.Client{
		Timeout:       httpTimeout,
		Jar:           base.Jar,
		CheckRedirect: base.CheckRedirect,
		Transport:     &bearerTransport{tokens: c.tokens, base: rt},
	}

	if cfg.AccessToken != "" {
		c.SetAccessToken(cfg.AccessToken)
	}

	return c, nil
}

// ID returns the short ID of the Data Manager.
func (c *Client) ID() string {
	return c.id
}

// RootURL returns the API root.
func (c *Client) RootURL() string {
	return c.rootURL
}

// SetCacheStore sets the Store used by caches enabled afterwards.
func (c *Client) SetCacheStore(s cache.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cacheStore = s
}

// rel returns the relation name of a Data Manager specific link.
func (c *Client) rel(name string) string {
	return c.id + ":" + name
}

// traversal returns a traversal starting at the API root.
func (c *Client) traversal() traverson.Config {
	return c.traversalFrom(c.rootURL)
}

// traversalFrom returns a traversal starting at u with the client's
// transport, logger and timeout.
func (c *Client) traversalFrom(u string, opts ...traverson.Option) traverson.Config {
	return traverson.New(u, append([]traverson.Option{
		traverson.WithClient(c.http),
		traverson.WithLogger(c.logger),
		traverson.WithTimeout(c.timeout),
	}, opts...)...)
}

// at returns a traversal starting at an already fetched resource.
func (c *Client) at(doc *hal.Resource) traverson.Config {
	self := doc.SelfURL()
	if base, err := url.Parse(c.rootURL); err == nil {
		if ref, err := url.Parse(self); err == nil {
			self = base.ResolveReference(ref).String()
		}
	}
	return c.traversal().With(traverson.WithStart(traverson.Step{
		URL: self,
		Doc: doc,
	}))
}

// Resolve fetches the API root.
func (c *Client) Resolve(ctx context.Context) (*hal.Resource, error) {
	root, err := c.traversal().GetResource(ctx)
	if err != nil {
		return nil, c.fail(err)
	}
	for _, issue := range root.Validate() {
		c.logger.Debug("root resource validation", "issue", issue.String())
	}
	return root, nil
}

// ModelList returns every model of the Data Manager.
func (c *Client) ModelList(ctx context.Context) ([]*Model, error) {
	root, err := c.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	raw, _ := root.Property("models")
	list, _ := raw.([]any)
	models := make([]*Model, 0, len(list))
	for _, item := range list {
		doc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		m := c.Model(stringOf(doc["title"]))
		if err := m.apply(doc); err != nil {
			return nil, c.fail(err)
		}
		models = append(models, m)
	}
	return models, nil
}

// Model returns the model with the given title. Nothing is fetched; call
// Model.Resolve to load its definition.
func (c *Client) Model(title string) *Model {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.models[title]; ok {
		return m
	}
	m := &Model{
		Title:  title,
		client: c,
		logger: c.logger.With("model", title),
	}
	c.models[title] = m
	return m
}

// probe reports whether the API answers at all. Any HTTP response counts.
func (c *Client) probe(ctx context.Context) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.rootURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error probing %s: %w", c.rootURL, err)
	}
	resp.Body.Close()
	return nil
}

func stringOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
