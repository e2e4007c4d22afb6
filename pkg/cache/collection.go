// Package cache implements the per-model read-through cache. A Collection
// holds the full unfiltered document set of one model; filters, sorting and
// pagination are applied at read time with pkg/query so cached reads match
// network reads.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/juju/clock"
	"golang.org/x/sync/singleflight"

	"github.com/hashicorp-forge/datamanager/pkg/query"
)

// DefaultMaxAge is used when Options.MaxAge is zero.
const DefaultMaxAge = 10 * time.Minute

// Mode selects how Read treats the cached data.
type Mode string

const (
	// ModeDefault serves the cache unless it is stale, in which case it
	// reloads first.
	ModeDefault Mode = "default"

	// ModeStale serves the cache immediately and refreshes it in the
	// background.
	ModeStale Mode = "stale"

	// ModeRefresh reloads before serving.
	ModeRefresh Mode = "refresh"
)

// LoadResult is the full document set of a model as fetched from the API.
type LoadResult struct {
	Documents []map[string]any
	Title     string
	ETag      string
}

// Loader fetches every document of a model.
type Loader interface {
	Load(ctx context.Context) (LoadResult, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context) (LoadResult, error)

func (f LoaderFunc) Load(ctx context.Context) (LoadResult, error) {
	return f(ctx)
}

// Prober checks that the API is reachable before a load.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Probe(ctx context.Context) error {
	return f(ctx)
}

// Options configure a Collection.
type Options struct {
	// Loader is required.
	Loader Loader

	// Store defaults to a MemoryStore.
	Store Store

	// Prober is optional. Without it every load is attempted directly.
	Prober Prober

	MaxAge time.Duration
	Clock  clock.Clock
	Logger hclog.Logger
}

// ReadOptions select the mode and the query evaluated against the cache.
type ReadOptions struct {
	Mode  Mode
	Query query.Options
}

// Result is one page of cached documents.
type Result struct {
	query.Page

	Metadata Metadata

	// Offline is set when a reload was skipped because the API was
	// unreachable and stale data was served instead.
	Offline bool

	// Refreshed delivers the outcome of the background refresh started by
	// a ModeStale read. It is nil for other modes.
	Refreshed <-chan Refresh
}

// Refresh is the outcome of a background refresh.
type Refresh struct {
	Result *Result
	Err    error
}

// Collection caches the documents of one model.
type Collection struct {
	name   string
	loader Loader
	store  Store
	prober Prober
	maxAge time.Duration
	clock  clock.Clock
	logger hclog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	enabled bool
	items   []map[string]any
	meta    Metadata
}

// New returns a disabled Collection for the named model.
func New(name string, opts Options) (*Collection, error) {
	if name == "" {
		return nil, errors.New("collection name is required")
	}
	if opts.Loader == nil {
		return nil, errors.New("loader is required")
	}

	c := &Collection{
		name:   name,
		loader: opts.Loader,
		store:  opts.Store,
		prober: opts.Prober,
		maxAge: opts.MaxAge,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if c.store == nil {
		c.store = NewMemoryStore()
	}
	if c.maxAge <= 0 {
		c.maxAge = DefaultMaxAge
	}
	if c.clock == nil {
		c.clock = clock.WallClock
	}
	if c.logger == nil {
		c.logger = hclog.NewNullLogger()
	}
	c.logger = c.logger.Named("cache").With("model", name)

	return c, nil
}

// Name returns the model name.
func (c *Collection) Name() string {
	return c.name
}

// MaxAge returns the age after which the cache is stale.
func (c *Collection) MaxAge() time.Duration {
	return c.maxAge
}

// Enabled reports whether Enable has succeeded and Clear has not been
// called since.
func (c *Collection) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// Enable activates the cache. Persisted rows are loaded from the Store; if
// there are none, the full collection is loaded from the API.
func (c *Collection) Enable(ctx context.Context) error {
	if c.Enabled() {
		return nil
	}

	docs, meta, err := c.store.Load(ctx, c.name)
	if err != nil {
		return fmt.Errorf("error loading persisted cache: %w", err)
	}

	restored := meta != nil && len(docs) > 0

	c.mu.Lock()
	c.enabled = true
	if restored {
		c.items, c.meta = docs, *meta
	}
	c.mu.Unlock()

	if restored {
		c.logger.Debug("restored cache", "documents", len(docs), "created", meta.Created)
		return nil
	}

	// The empty cache is stale, so this shares a flight with concurrent
	// default reads.
	if _, err := c.reload(ctx, false); err != nil {
		c.mu.Lock()
		c.enabled = false
		c.mu.Unlock()
		return err
	}
	return nil
}

// Clear drops the cached rows and metadata and disables the cache.
func (c *Collection) Clear(ctx context.Context) error {
	if !c.Enabled() {
		return ErrNotEnabled
	}
	if err := c.store.Delete(ctx, c.name); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.mu.Lock()
	c.enabled = false
	c.items = nil
	c.meta = Metadata{}
	c.mu.Unlock()

	c.logger.Debug("cleared cache")
	return nil
}

// Stale reports whether the last load is older than MaxAge.
func (c *Collection) Stale() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.staleLocked()
}

func (c *Collection) staleLocked() bool {
	return c.clock.Now().Add(-c.maxAge).After(c.meta.Created)
}

// Snapshot returns the cached documents and metadata. The slice must not
// be modified.
func (c *Collection) Snapshot() ([]map[string]any, Metadata) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items, c.meta
}

// Read serves a page of documents according to opts.Mode.
func (c *Collection) Read(ctx context.Context, opts ReadOptions) (*Result, error) {
	if !c.Enabled() {
		return nil, ErrNotEnabled
	}

	switch opts.Mode {
	case ModeStale:
		res := c.serve(opts.Query, false)
		res.Refreshed = c.refreshInBackground(ctx, opts.Query)
		return res, nil

	case ModeRefresh:
		offline, err := c.reload(ctx, true)
		if err != nil {
			return nil, err
		}
		return c.serve(opts.Query, offline), nil

	case ModeDefault, "":
		offline := false
		if c.Stale() {
			var err error
			if offline, err = c.reload(ctx, false); err != nil {
				return nil, err
			}
		}
		return c.serve(opts.Query, offline), nil
	}

	return nil, fmt.Errorf("unknown cache mode %q", opts.Mode)
}

func (c *Collection) serve(q query.Options, offline bool) *Result {
	items, meta := c.Snapshot()
	return &Result{
		Page:     q.Apply(items),
		Metadata: meta,
		Offline:  offline,
	}
}

func (c *Collection) refreshInBackground(ctx context.Context, q query.Options) <-chan Refresh {
	ch := make(chan Refresh, 1)
	ctx = context.WithoutCancel(ctx)
	go func() {
		defer close(ch)
		offline, err := c.reload(ctx, true)
		if err != nil {
			c.logger.Warn("background refresh failed", "error", err)
			ch <- Refresh{Err: err}
			return
		}
		ch <- Refresh{Result: c.serve(q, offline)}
	}()
	return ch
}

// Reload fetches the collection from the API and replaces the cache.
// Concurrent calls share one load.
func (c *Collection) Reload(ctx context.Context) error {
	_, err := c.reload(ctx, true)
	return err
}

const (
	flightForced  = "reload"
	flightIfStale = "reload-if-stale"
)

// reload runs at most one load per flight key. Unforced loads re-check
// staleness inside the flight so readers that arrive after a load finished
// do not start another one. The boolean result reports offline fallback.
func (c *Collection) reload(ctx context.Context, force bool) (bool, error) {
	key := flightIfStale
	if force {
		key = flightForced
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Waiters may give up, the shared load keeps going.
		loadCtx := context.WithoutCancel(ctx)
		if !force && !c.Stale() {
			return false, nil
		}
		return c.load(loadCtx)
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return false, r.Err
		}
		return r.Val.(bool), nil
	}
}

func (c *Collection) load(ctx context.Context) (bool, error) {
	if c.prober != nil {
		if err := c.prober.Probe(ctx); err != nil {
			c.mu.RLock()
			cached := len(c.items)
			c.mu.RUnlock()

			if cached > 0 {
				c.logger.Warn("network unreachable, serving stale cache",
					"documents", cached, "error", err)
				return true, nil
			}
			return false, &OfflineError{Model: c.name, Err: err}
		}
	}

	start := c.clock.Now()
	res, err := c.loader.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("error loading model %q: %w", c.name, err)
	}

	meta := Metadata{
		Title:   res.Title,
		ETag:    res.ETag,
		Created: c.clock.Now(),
	}
	if meta.Title == "" {
		meta.Title = c.name
	}
	docs := res.Documents
	if docs == nil {
		docs = []map[string]any{}
	}

	if err := c.store.Replace(ctx, c.name, meta, docs); err != nil {
		return false, fmt.Errorf("error persisting cache: %w", err)
	}

	c.mu.Lock()
	c.items, c.meta = docs, meta
	c.mu.Unlock()

	c.logger.Debug("reloaded cache", "documents", len(docs),
		"elapsed", c.clock.Now().Sub(start))
	return false, nil
}
