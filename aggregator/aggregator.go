package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/extractor"
	"github.com/syncpower/musicnews/logger"
)

// ErrInvalidPage is returned for a non-positive page number or page size.
var ErrInvalidPage = errors.New("invalid page or pageSize parameters")

// Source names used in failure records.
const (
	SourceCatalog    = "catalog"
	SourceStaticList = "static_list"
)

// Messages surfaced to clients when a source fails.
const (
	MessageCatalogFailed    = "推し楽ニュースの取得に失敗しました。"
	MessageStaticListFailed = "静的ニュース設定の読み込みに失敗しました。"
)

// CatalogSource lists every catalog article.
type CatalogSource interface {
	FetchAll(ctx context.Context) ([]article.Article, error)
}

// PageLoader lists the static pages to scrape.
type PageLoader interface {
	Load(ctx context.Context) ([]string, error)
}

// PageExtractor scrapes a list of pages.
type PageExtractor interface {
	ExtractAll(ctx context.Context, urls []string) extractor.Batch
}

// FetchRecorder is notified of the outcome of every scraped page.
type FetchRecorder interface {
	RecordFetch(ctx context.Context, url string, err error) error
}

// SourceFailure records that one source failed during a refresh. Message is
// the localized text shown to clients.
type SourceFailure struct {
	Source  string `json:"source"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Page is one slice of the merged article list.
type Page struct {
	Articles   []article.Article
	TotalCount int
	Failures   []SourceFailure
}

// Failed reports whether any source failed while producing this page.
func (p *Page) Failed() bool {
	return len(p.Failures) > 0
}

// ErrorMessage joins the failure messages with a single space. It is empty
// when no source failed.
func (p *Page) ErrorMessage() string {
	return JoinFailures(p.Failures)
}

// JoinFailures joins failure messages with a single space.
func JoinFailures(failures []SourceFailure) string {
	msgs := make([]string, 0, len(failures))
	for _, f := range failures {
		msgs = append(msgs, f.Message)
	}
	return strings.Join(msgs, " ")
}

// ValidatePage checks a requested page number and page size.
func ValidatePage(page, pageSize int) error {
	if page < 1 || pageSize < 1 {
		return fmt.Errorf("%w: page=%d pageSize=%d", ErrInvalidPage, page, pageSize)
	}
	return nil
}

// Options tune an Aggregator. The zero value is usable.
type Options struct {
	TTL      time.Duration
	Now      func() time.Time
	Recorder FetchRecorder
	Logger   *zap.Logger
}

// Aggregator merges catalog and scraped articles behind a TTL cache.
type Aggregator struct {
	catalog   CatalogSource
	loader    PageLoader
	extractor PageExtractor
	recorder  FetchRecorder

	cache *Cache
	group singleflight.Group
	now   func() time.Time
	log   *zap.Logger
}

// New creates an aggregator over the two sources.
func New(catalog CatalogSource, loader PageLoader, extractor PageExtractor, opts Options) *Aggregator {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		catalog:   catalog,
		loader:    loader,
		extractor: extractor,
		recorder:  opts.Recorder,
		cache:     NewCache(opts.TTL),
		now:       now,
		log:       logger.OrNop(opts.Logger),
	}
}

// Cache returns the aggregator's snapshot cache.
func (a *Aggregator) Cache() *Cache {
	return a.cache
}

// GetPage returns one page of the merged list, refreshing the snapshot when
// it is missing or older than the TTL. Failures are only reported for the
// refresh performed on behalf of this call; pages served from the cache
// never carry failures.
func (a *Aggregator) GetPage(ctx context.Context, page, pageSize int) (*Page, error) {
	if err := ValidatePage(page, pageSize); err != nil {
		return nil, err
	}

	snap, fresh := a.cache.Fresh(a.now())
	var failures []SourceFailure
	if fresh {
		a.log.Debug("serving cached articles",
			zap.Int("total", snap.Len()),
			zap.Time("captured_at", snap.CapturedAt),
		)
	} else {
		snap, failures = a.Refresh(ctx)
	}

	return &Page{
		Articles:   SlicePage(snap.Articles, page, pageSize),
		TotalCount: snap.Len(),
		Failures:   failures,
	}, nil
}

type refreshResult struct {
	snap     *Snapshot
	failures []SourceFailure
}

// Refresh rebuilds the snapshot from both sources and stores it, even when
// a source failed. Concurrent callers share one refresh. The refresh is not
// tied to ctx's cancellation so an abandoned request can not store a
// truncated snapshot.
func (a *Aggregator) Refresh(ctx context.Context) (*Snapshot, []SourceFailure) {
	ctx = context.WithoutCancel(ctx)

	v, _, _ := a.group.Do("refresh", func() (any, error) {
		return a.refresh(ctx), nil
	})
	res := v.(refreshResult)
	return res.snap, res.failures
}

func (a *Aggregator) refresh(ctx context.Context) refreshResult {
	started := a.now()
	a.log.Info("refreshing articles")

	var (
		wg              sync.WaitGroup
		catalogArticles []article.Article
		scraped         []article.Article
		catalogFailure  *SourceFailure
		staticFailure   *SourceFailure
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		catalogArticles, catalogFailure = a.fetchCatalog(ctx)
	}()
	go func() {
		defer wg.Done()
		scraped, staticFailure = a.fetchStatic(ctx)
	}()
	wg.Wait()

	var failures []SourceFailure
	if catalogFailure != nil {
		failures = append(failures, *catalogFailure)
	}
	if staticFailure != nil {
		failures = append(failures, *staticFailure)
	}

	merged := make([]article.Article, 0, len(catalogArticles)+len(scraped))
	merged = append(merged, catalogArticles...)
	merged = append(merged, scraped...)
	article.SortByDateDesc(merged)

	snap := &Snapshot{Articles: merged, CapturedAt: started}
	a.cache.Store(snap)

	a.log.Info("articles refreshed",
		zap.Int("catalog", len(catalogArticles)),
		zap.Int("scraped", len(scraped)),
		zap.Int("failures", len(failures)),
		zap.Duration("took", a.now().Sub(started)),
	)

	return refreshResult{snap: snap, failures: failures}
}

func (a *Aggregator) fetchCatalog(ctx context.Context) ([]article.Article, *SourceFailure) {
	articles, err := a.catalog.FetchAll(ctx)
	if err != nil {
		a.log.Error("catalog fetch failed",
			zap.Int("partial", len(articles)),
			zap.Error(err),
		)
		return articles, &SourceFailure{Source: SourceCatalog, Message: MessageCatalogFailed, Err: err}
	}
	return articles, nil
}

func (a *Aggregator) fetchStatic(ctx context.Context) ([]article.Article, *SourceFailure) {
	var failure *SourceFailure

	urls, err := a.loader.Load(ctx)
	if err != nil {
		a.log.Error("static page list load failed", zap.Error(err))
		failure = &SourceFailure{Source: SourceStaticList, Message: MessageStaticListFailed, Err: err}
		urls = nil
	}
	if len(urls) == 0 {
		return nil, failure
	}

	batch := a.extractor.ExtractAll(ctx, urls)
	if len(batch.Failures) > 0 {
		a.log.Warn("some static pages were dropped",
			zap.Int("dropped", len(batch.Failures)),
			zap.Int("extracted", len(batch.Articles)),
		)
	}
	a.record(ctx, batch)

	return batch.Articles, failure
}

func (a *Aggregator) record(ctx context.Context, batch extractor.Batch) {
	if a.recorder == nil {
		return
	}

	report := func(url string, fetchErr error) {
		if err := a.recorder.RecordFetch(ctx, url, fetchErr); err != nil {
			a.log.Warn("failed to record page fetch", zap.String("url", url), zap.Error(err))
		}
	}
	for _, art := range batch.Articles {
		report(art.URL, nil)
	}
	for _, f := range batch.Failures {
		report(f.URL, f.Err)
	}
}

// SlicePage returns a copy of articles[(page-1)*pageSize : page*pageSize],
// clamped to the list. Pages past the end are empty, never nil.
func SlicePage(articles []article.Article, page, pageSize int) []article.Article {
	n := len(articles)
	if page < 1 || pageSize < 1 || page-1 > n/pageSize {
		return []article.Article{}
	}

	start := (page - 1) * pageSize
	if start >= n {
		return []article.Article{}
	}
	end := start + min(pageSize, n-start)

	out := make([]article.Article, end-start)
	copy(out, articles[start:end])
	return out
}
