package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/extractor"
)

type fakeCatalog struct {
	articles []article.Article
	err      error
	calls    int32
	delay    time.Duration
}

func (f *fakeCatalog) FetchAll(ctx context.Context) ([]article.Article, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.articles, f.err
}

type fakeLoader struct {
	urls  []string
	err   error
	calls int32
}

func (f *fakeLoader) Load(ctx context.Context) ([]string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return []string{}, f.err
	}
	return f.urls, nil
}

// fakeExtractor returns the configured article for known URLs and fails
// the rest.
type fakeExtractor struct {
	pages map[string]article.Article
	calls int32
	seen  []string
	mu    sync.Mutex
}

func (f *fakeExtractor) ExtractAll(ctx context.Context, urls []string) extractor.Batch {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	f.seen = append(f.seen, urls...)
	f.mu.Unlock()

	var batch extractor.Batch
	for _, u := range urls {
		if a, ok := f.pages[u]; ok {
			batch.Articles = append(batch.Articles, a)
		} else {
			batch.Failures = append(batch.Failures, extractor.Result{URL: u, Err: errors.New("HTTP error: 404")})
		}
	}
	return batch
}

type fakeRecorder struct {
	mu      sync.Mutex
	results map[string]error
}

func (f *fakeRecorder) RecordFetch(ctx context.Context, url string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = map[string]error{}
	}
	f.results[url] = err
	return nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func dated(kind article.SourceKind, id string, day int) article.Article {
	var published *time.Time
	if day > 0 {
		t := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
		published = &t
	}
	return article.Article{
		ID:          id,
		SourceKind:  kind,
		Title:       id,
		URL:         "https://example.com/" + id + "/index.html",
		SortDate:    article.SortDate(published),
		DisplayDate: article.DisplayDate(published),
	}
}

type fixture struct {
	catalog   *fakeCatalog
	loader    *fakeLoader
	extractor *fakeExtractor
	clock     *clock
	agg       *Aggregator
}

func newFixture(catalogArticles []article.Article, scraped []article.Article) *fixture {
	f := &fixture{
		catalog:   &fakeCatalog{articles: catalogArticles},
		loader:    &fakeLoader{},
		extractor: &fakeExtractor{pages: map[string]article.Article{}},
		clock:     &clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)},
	}
	for _, a := range scraped {
		f.loader.urls = append(f.loader.urls, a.URL)
		f.extractor.pages[a.URL] = a
	}
	f.agg = New(f.catalog, f.loader, f.extractor, Options{Now: f.clock.Now})
	return f
}

// TestValidatePage verifies non-positive values are rejected
func TestValidatePage(t *testing.T) {
	assert.NoError(t, ValidatePage(1, 1))
	assert.ErrorIs(t, ValidatePage(0, 10), ErrInvalidPage)
	assert.ErrorIs(t, ValidatePage(1, 0), ErrInvalidPage)
	assert.ErrorIs(t, ValidatePage(-3, -1), ErrInvalidPage)
}

// TestGetPage_InvalidNoIO verifies validation happens before any fetch
func TestGetPage_InvalidNoIO(t *testing.T) {
	f := newFixture(nil, nil)

	page, err := f.agg.GetPage(context.Background(), 0, 10)

	assert.ErrorIs(t, err, ErrInvalidPage)
	assert.Nil(t, page)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.catalog.calls))
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.loader.calls))
}

// TestGetPage_MergesAndSorts verifies merge order and date-descending sort
func TestGetPage_MergesAndSorts(t *testing.T) {
	f := newFixture(
		[]article.Article{dated(article.SourceCatalog, "c1", 3), dated(article.SourceCatalog, "c2", 0)},
		[]article.Article{dated(article.SourceScraped, "s1", 5), dated(article.SourceScraped, "s2", 0)},
	)

	page, err := f.agg.GetPage(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.False(t, page.Failed())
	assert.Equal(t, 4, page.TotalCount)

	ids := make([]string, 0, len(page.Articles))
	for _, a := range page.Articles {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"s1", "c1", "c2", "s2"}, ids, "dateless articles last, in source order")

	for i := 1; i < len(page.Articles); i++ {
		assert.False(t, page.Articles[i].SortDate.After(page.Articles[i-1].SortDate))
	}
}

// TestGetPage_Pagination verifies slicing, clamping and total count
func TestGetPage_Pagination(t *testing.T) {
	var catalog []article.Article
	for i := 1; i <= 25; i++ {
		catalog = append(catalog, dated(article.SourceCatalog, fmt.Sprintf("c%02d", i), i))
	}
	f := newFixture(catalog, nil)
	ctx := context.Background()

	first, err := f.agg.GetPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, first.Articles, 10)
	assert.Equal(t, "c25", first.Articles[0].ID)
	assert.Equal(t, 25, first.TotalCount)

	last, err := f.agg.GetPage(ctx, 3, 10)
	require.NoError(t, err)
	assert.Len(t, last.Articles, 5)
	assert.Equal(t, "c05", last.Articles[0].ID)
	assert.Equal(t, 25, last.TotalCount)

	beyond, err := f.agg.GetPage(ctx, 4, 10)
	require.NoError(t, err)
	assert.NotNil(t, beyond.Articles)
	assert.Empty(t, beyond.Articles)
	assert.False(t, beyond.Failed(), "out of range is not an error")
	assert.Equal(t, 25, beyond.TotalCount)
}

// TestGetPage_CacheHit verifies a fresh snapshot skips the sources
func TestGetPage_CacheHit(t *testing.T) {
	f := newFixture([]article.Article{dated(article.SourceCatalog, "c1", 1)}, nil)
	ctx := context.Background()

	_, err := f.agg.GetPage(ctx, 1, 10)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Minute)
	_, err = f.agg.GetPage(ctx, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.catalog.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.loader.calls))
}

// TestGetPage_CacheExpiry verifies a refresh once the TTL has elapsed
func TestGetPage_CacheExpiry(t *testing.T) {
	f := newFixture([]article.Article{dated(article.SourceCatalog, "c1", 1)}, nil)
	ctx := context.Background()

	_, err := f.agg.GetPage(ctx, 1, 10)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.catalog.articles = append(f.catalog.articles, dated(article.SourceCatalog, "c2", 2))

	page, err := f.agg.GetPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.catalog.calls))
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, f.clock.Now(), f.agg.Cache().Load().CapturedAt)
}

// TestGetPage_StaticListFailure verifies catalog articles survive a config failure
func TestGetPage_StaticListFailure(t *testing.T) {
	f := newFixture([]article.Article{dated(article.SourceCatalog, "c1", 1), dated(article.SourceCatalog, "c2", 2)}, nil)
	f.loader.err = errors.New("open staticNewsUrls.json: no such file or directory")

	page, err := f.agg.GetPage(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.True(t, page.Failed())
	assert.Equal(t, MessageStaticListFailed, page.ErrorMessage())
	assert.Equal(t, 2, page.TotalCount)
	require.Len(t, page.Failures, 1)
	assert.Equal(t, SourceStaticList, page.Failures[0].Source)
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.extractor.calls), "no pages to extract")
}

// TestGetPage_CatalogFailure verifies scraped articles and partial catalog
// results survive a catalog failure
func TestGetPage_CatalogFailure(t *testing.T) {
	f := newFixture(
		[]article.Article{dated(article.SourceCatalog, "partial", 1)},
		[]article.Article{dated(article.SourceScraped, "s1", 2)},
	)
	f.catalog.err = errors.New("HTTP error: 503")

	page, err := f.agg.GetPage(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.Equal(t, MessageCatalogFailed, page.ErrorMessage())
	assert.Equal(t, 2, page.TotalCount)
}

// TestGetPage_BothFail verifies messages are joined and the snapshot is
// still stored
func TestGetPage_BothFail(t *testing.T) {
	f := newFixture(nil, nil)
	f.catalog.err = errors.New("down")
	f.loader.err = errors.New("missing")
	ctx := context.Background()

	page, err := f.agg.GetPage(ctx, 1, 10)

	require.NoError(t, err)
	assert.Equal(t, MessageCatalogFailed+" "+MessageStaticListFailed, page.ErrorMessage())
	assert.Empty(t, page.Articles)
	require.NotNil(t, f.agg.Cache().Load(), "partial refresh still replaces the snapshot")

	// Served from cache: prior failures are not repeated
	f.clock.Advance(time.Minute)
	cached, err := f.agg.GetPage(ctx, 1, 10)
	require.NoError(t, err)
	assert.False(t, cached.Failed())
	assert.Empty(t, cached.ErrorMessage())
}

// TestGetPage_DropsFailedPages verifies failed extractions are not errors
func TestGetPage_DropsFailedPages(t *testing.T) {
	f := newFixture(nil, []article.Article{dated(article.SourceScraped, "ok", 1)})
	f.loader.urls = append(f.loader.urls, "https://example.com/broken/index.html")

	page, err := f.agg.GetPage(context.Background(), 1, 10)

	require.NoError(t, err)
	assert.False(t, page.Failed())
	require.Len(t, page.Articles, 1)
	assert.Equal(t, "ok", page.Articles[0].ID)
}

// TestGetPage_RecordsFetches verifies the recorder sees every page outcome
func TestGetPage_RecordsFetches(t *testing.T) {
	f := newFixture(nil, []article.Article{dated(article.SourceScraped, "ok", 1)})
	broken := "https://example.com/broken/index.html"
	f.loader.urls = append(f.loader.urls, broken)

	recorder := &fakeRecorder{}
	agg := New(f.catalog, f.loader, f.extractor, Options{Now: f.clock.Now, Recorder: recorder})

	_, err := agg.GetPage(context.Background(), 1, 10)
	require.NoError(t, err)

	require.Len(t, recorder.results, 2)
	assert.NoError(t, recorder.results["https://example.com/ok/index.html"])
	assert.Error(t, recorder.results[broken])
}

// TestRefresh_IgnoresCancellation verifies a cancelled request still stores
// a complete snapshot
func TestRefresh_IgnoresCancellation(t *testing.T) {
	f := newFixture([]article.Article{dated(article.SourceCatalog, "c1", 1)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snap, failures := f.agg.Refresh(ctx)
	assert.Empty(t, failures)
	assert.Equal(t, 1, snap.Len())
}

// TestRefresh_ConcurrentCallersShare verifies concurrent stale reads share a
// single refresh
func TestRefresh_ConcurrentCallersShare(t *testing.T) {
	f := newFixture([]article.Article{dated(article.SourceCatalog, "c1", 1)}, nil)
	f.catalog.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			page, err := f.agg.GetPage(context.Background(), 1, 10)
			assert.NoError(t, err)
			assert.Equal(t, 1, page.TotalCount)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&f.catalog.calls))
}

// TestSlicePage verifies slicing edge cases
func TestSlicePage(t *testing.T) {
	list := []article.Article{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Len(t, SlicePage(list, 1, 2), 2)
	assert.Len(t, SlicePage(list, 2, 2), 1)
	assert.Empty(t, SlicePage(list, 3, 2))
	assert.Len(t, SlicePage(list, 1, 1<<62), 3, "huge page sizes clamp")
	assert.Empty(t, SlicePage(list, 1<<62, 1<<62), "no overflow")
	assert.Empty(t, SlicePage(nil, 1, 10))

	page := SlicePage(list, 1, 3)
	page[0].ID = "changed"
	assert.Equal(t, "a", list[0].ID, "pages are copies")
}

// TestJoinFailures verifies the single-space join
func TestJoinFailures(t *testing.T) {
	assert.Equal(t, "", JoinFailures(nil))
	assert.Equal(t, "a b", JoinFailures([]SourceFailure{{Message: "a"}, {Message: "b"}}))
}
