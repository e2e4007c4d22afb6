package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp-forge/datamanager/pkg/database"
	"github.com/hashicorp-forge/datamanager/pkg/query"
)

var t0 = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

// fakeAPI serves versioned document sets and counts loads.
// If block is set, every load after the first waits on it.
type fakeAPI struct {
	loads    atomic.Int32
	version  atomic.Int32
	probeErr error

	block   chan struct{}
	started chan struct{}
	once    sync.Once
}

func (f *fakeAPI) Load(ctx context.Context) (LoadResult, error) {
	n := f.loads.Add(1)
	if n > 1 && f.block != nil {
		f.once.Do(func() { close(f.started) })
		<-f.block
	}
	v := f.version.Load()
	docs := make([]map[string]any, 0, 3)
	for i := range 3 {
		docs = append(docs, map[string]any{
			"_id":     fmt.Sprintf("doc%d", i),
			"version": float64(v),
			"rank":    float64(3 - i),
		})
	}
	return LoadResult{Documents: docs, ETag: fmt.Sprintf("v%d", v)}, nil
}

func (f *fakeAPI) Probe(ctx context.Context) error {
	return f.probeErr
}

func newCollection(t *testing.T, api *fakeAPI, clk *testclock.Clock, store Store) *Collection {
	t.Helper()
	c, err := New("to-do-list", Options{
		Loader: api,
		Prober: api,
		Store:  store,
		MaxAge: time.Minute,
		Clock:  clk,
	})
	require.NoError(t, err)
	return c
}

func versions(res *Result) []float64 {
	out := make([]float64, 0, len(res.Items))
	for _, it := range res.Items {
		out = append(out, it["version"].(float64))
	}
	return out
}

func TestCollection_NotEnabled(t *testing.T) {
	c := newCollection(t, &fakeAPI{}, testclock.NewClock(t0), nil)

	_, err := c.Read(context.Background(), ReadOptions{})
	assert.ErrorIs(t, err, ErrNotEnabled)
	assert.ErrorIs(t, c.Clear(context.Background()), ErrNotEnabled)
}

func TestCollection_IdempotentRead(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newCollection(t, api, testclock.NewClock(t0), nil)
	require.NoError(t, c.Enable(ctx))

	first, err := c.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	second, err := c.Read(ctx, ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, first.Items, second.Items)
	assert.Equal(t, int32(1), api.loads.Load())
}

func TestCollection_Staleness(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	clk := testclock.NewClock(t0)
	c := newCollection(t, api, clk, nil)
	require.NoError(t, c.Enable(ctx))
	require.Equal(t, int32(1), api.loads.Load())

	clk.Advance(30 * time.Second)
	_, err := c.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.loads.Load(), "fresh cache must not reload")

	clk.Advance(31 * time.Second)
	assert.True(t, c.Stale())
	_, err = c.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.loads.Load(), "stale cache reloads exactly once")

	_, err = c.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.loads.Load())
}

func TestCollection_SingleFlight(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	clk := testclock.NewClock(t0)
	c := newCollection(t, api, clk, nil)
	require.NoError(t, c.Enable(ctx))

	api.version.Store(1)
	clk.Advance(2 * time.Minute)

	const readers = 20
	var wg sync.WaitGroup
	results := make([]*Result, readers)
	errs := make([]error, readers)
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.Read(ctx, ReadOptions{})
		}()
	}

	<-api.started
	close(api.block)
	wg.Wait()

	assert.Equal(t, int32(2), api.loads.Load())
	for i := range readers {
		require.NoError(t, errs[i])
		assert.Equal(t, []float64{1, 1, 1}, versions(results[i]))
	}
}

// gatedLoader holds the first load until release is closed.
type gatedLoader struct {
	*fakeAPI
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedLoader) Load(ctx context.Context) (LoadResult, error) {
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.fakeAPI.Load(ctx)
}

func TestCollection_ReadDuringEnable(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	loader := &gatedLoader{
		fakeAPI: api,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c, err := New("to-do-list", Options{
		Loader: loader,
		Prober: api,
		MaxAge: time.Minute,
		Clock:  testclock.NewClock(t0),
	})
	require.NoError(t, err)

	enableErr := make(chan error, 1)
	go func() { enableErr <- c.Enable(ctx) }()
	<-loader.entered

	type readResult struct {
		res *Result
		err error
	}
	read := make(chan readResult, 1)
	go func() {
		res, err := c.Read(ctx, ReadOptions{})
		read <- readResult{res, err}
	}()

	// Give the reader time to join the in-flight load.
	time.Sleep(20 * time.Millisecond)
	close(loader.release)

	require.NoError(t, <-enableErr)
	r := <-read
	require.NoError(t, r.err)
	assert.Len(t, r.res.Items, 3)
	assert.Equal(t, int32(1), api.loads.Load())
}

func TestCollection_StaleMode(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newCollection(t, api, testclock.NewClock(t0), nil)
	require.NoError(t, c.Enable(ctx))

	api.version.Store(7)
	res, err := c.Read(ctx, ReadOptions{Mode: ModeStale})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0}, versions(res))
	require.NotNil(t, res.Refreshed)

	refreshed := <-res.Refreshed
	require.NoError(t, refreshed.Err)
	assert.Equal(t, []float64{7, 7, 7}, versions(refreshed.Result))
	assert.Equal(t, int32(2), api.loads.Load())

	_, meta := c.Snapshot()
	assert.Equal(t, "v7", meta.ETag)
}

func TestCollection_RefreshMode(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	c := newCollection(t, api, testclock.NewClock(t0), nil)
	require.NoError(t, c.Enable(ctx))

	api.version.Store(3)
	res, err := c.Read(ctx, ReadOptions{Mode: ModeRefresh})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3}, versions(res))
	assert.Equal(t, int32(2), api.loads.Load())
}

func TestCollection_Query(t *testing.T) {
	ctx := context.Background()
	c := newCollection(t, &fakeAPI{}, testclock.NewClock(t0), nil)
	require.NoError(t, c.Enable(ctx))

	res, err := c.Read(ctx, ReadOptions{Query: query.Options{
		Sort: []string{"rank"},
		Size: 2,
	}})
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "doc2", res.Items[0]["_id"])
	assert.Equal(t, 3, res.Total)

	res, err = c.Read(ctx, ReadOptions{Query: query.Options{}.WithExact("_id", "doc1")})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)

	items, _ := c.Snapshot()
	assert.Equal(t, "doc0", items[0]["_id"], "reads never reorder the cached set")
}

func TestCollection_OfflineFallback(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{}
	clk := testclock.NewClock(t0)
	c := newCollection(t, api, clk, nil)
	require.NoError(t, c.Enable(ctx))

	api.probeErr = errors.New("dial tcp: no route to host")
	clk.Advance(time.Hour)

	res, err := c.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	assert.True(t, res.Offline)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, int32(1), api.loads.Load())
}

func TestCollection_OfflineEmpty(t *testing.T) {
	api := &fakeAPI{probeErr: errors.New("dial tcp: no route to host")}
	c := newCollection(t, api, testclock.NewClock(t0), nil)

	err := c.Enable(context.Background())
	var offline *OfflineError
	require.ErrorAs(t, err, &offline)
	assert.Equal(t, "to-do-list", offline.Model)
	assert.Contains(t, err.Error(), "to-do-list")
	assert.False(t, c.Enabled())
}

func TestCollection_Clear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	c := newCollection(t, &fakeAPI{}, testclock.NewClock(t0), store)
	require.NoError(t, c.Enable(ctx))
	assert.Equal(t, []string{"to-do-list"}, store.Collections())

	require.NoError(t, c.Clear(ctx))
	assert.False(t, c.Enabled())
	assert.Empty(t, store.Collections())

	_, err := c.Read(ctx, ReadOptions{})
	assert.ErrorIs(t, err, ErrNotEnabled)
}

func TestCollection_GormStorePersistence(t *testing.T) {
	ctx := context.Background()
	db, err := database.Connect(database.Config{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	store := NewGormStore(db)

	api := &fakeAPI{}
	api.version.Store(4)
	c := newCollection(t, api, testclock.NewClock(t0), store)
	require.NoError(t, c.Enable(ctx))

	// Persisted before Enable returned.
	docs, meta, err := store.Load(ctx, "to-do-list")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Len(t, docs, 3)
	assert.Equal(t, "v4", meta.ETag)
	assert.True(t, t0.Equal(meta.Created))

	// A second collection on the same store restores without loading.
	other := &fakeAPI{}
	restored := newCollection(t, other, testclock.NewClock(t0.Add(10*time.Second)), store)
	require.NoError(t, restored.Enable(ctx))
	assert.Equal(t, int32(0), other.loads.Load())

	res, err := restored.Read(ctx, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 4, 4}, versions(res))

	status, err := store.Status(ctx)
	require.NoError(t, err)
	require.Len(t, status, 1)
	assert.Equal(t, 3, status[0].Count)
}
