package extractor

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/httpclient"
	"github.com/syncpower/musicnews/logger"
	"github.com/syncpower/musicnews/scraper"
)

// NoDescription is used when a page has no paragraph text.
const NoDescription = "No description available."

// Result is the outcome of extracting one page: either an article or the
// reason it could not be produced.
type Result struct {
	URL     string
	Article *article.Article
	Err     error
}

// OK reports whether the page produced an article.
func (r Result) OK() bool {
	return r.Err == nil && r.Article != nil
}

// Batch holds the outcome of extracting a list of pages. Articles keep the
// order of the input URLs.
type Batch struct {
	Articles []article.Article
	Failures []Result
}

// Extractor fetches static column pages and turns them into articles.
type Extractor struct {
	client httpclient.Client
	config scraper.PageConfig
	log    *zap.Logger
}

// New creates an extractor. A nil client gets the default resty client.
func New(client httpclient.Client, config scraper.PageConfig, log *zap.Logger) *Extractor {
	if client == nil {
		client = httpclient.NewRestyClient(0, "")
	}
	return &Extractor{
		client: client,
		config: config.WithDefaults(),
		log:    logger.OrNop(log),
	}
}

// Extract fetches pageURL and extracts its article. Failures are logged and
// returned in the result; they never panic or abort a batch.
func (e *Extractor) Extract(ctx context.Context, pageURL string) Result {
	doc, err := FetchHTML(ctx, e.client, pageURL)
	if err != nil {
		e.log.Warn("static page fetch failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return Result{URL: pageURL, Err: err}
	}

	a := ExtractArticle(doc, e.config, pageURL)
	return Result{URL: pageURL, Article: &a}
}

// ExtractAll extracts every page concurrently. There is no concurrency cap;
// each page fails independently.
func (e *Extractor) ExtractAll(ctx context.Context, pageURLs []string) Batch {
	results := make([]Result, len(pageURLs))

	var wg sync.WaitGroup
	for i, pageURL := range pageURLs {
		wg.Add(1)
		go func(i int, pageURL string) {
			defer wg.Done()
			results[i] = e.Extract(ctx, pageURL)
		}(i, pageURL)
	}
	wg.Wait()

	batch := Batch{Articles: make([]article.Article, 0, len(results))}
	for _, r := range results {
		if r.OK() {
			batch.Articles = append(batch.Articles, *r.Article)
		} else {
			batch.Failures = append(batch.Failures, r)
		}
	}
	return batch
}

// FetchHTML fetches a page and parses it with goquery. Non-2xx responses are
// errors.
func FetchHTML(ctx context.Context, client httpclient.Client, pageURL string) (*goquery.Document, error) {
	resp, err := client.Get(ctx, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch page: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("HTTP error: %d", resp.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return doc, nil
}

// ExtractArticle builds an article from a parsed page.
func ExtractArticle(doc *goquery.Document, config scraper.PageConfig, pageURL string) article.Article {
	config = config.WithDefaults()
	id := DeriveID(pageURL)

	// Title: <title>, then the first heading, then a placeholder
	title := firstNonEmpty(
		normalizeSpace(doc.Find(config.TitleSelector).First().Text()),
		normalizeSpace(doc.Find(config.HeadingSelector).First().Text()),
	)
	if title == "" {
		title = article.PlaceholderTitle(id)
	}

	description := article.Describe(doc.Find(config.ParagraphSelector).First().Text(), NoDescription)

	published := article.ParseDate(firstNonEmpty(
		attr(doc.Find(config.DateMetaSelector).First(), "content"),
		attr(doc.Find(config.TimeSelector).First(), "datetime"),
	))

	a := article.Article{
		ID:          id,
		SourceKind:  article.SourceScraped,
		Title:       title,
		Description: description,
		URL:         pageURL,
		SortDate:    article.SortDate(published),
		DisplayDate: article.DisplayDate(published),
	}

	if src := attr(doc.Find(config.ImageSelector).First(), "src"); src != "" {
		if thumb, ok := ResolveThumbnail(src, pageURL); ok {
			a.ThumbnailURL = &thumb
		}
	}

	return a
}

// DeriveID returns the second-to-last path segment of a page URL, which is
// the directory that holds the page (".../column01/index.html" -> "column01").
func DeriveID(pageURL string) string {
	parts := strings.Split(pageURL, "/")
	if len(parts) < 2 {
		return pageURL
	}
	return parts[len(parts)-2]
}

// ResolveThumbnail turns an image src into an absolute URL relative to the
// page. Protocol-relative sources are upgraded to https first.
func ResolveThumbnail(src, pageURL string) (string, bool) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", false
	}
	if strings.HasPrefix(src, "//") {
		src = "https:" + src
	}

	ref, err := url.Parse(src)
	if err != nil {
		return "", false
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", false
	}

	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", false
	}
	if resolved.Host == "" {
		return "", false
	}
	return resolved.String(), true
}

func attr(s *goquery.Selection, name string) string {
	val, _ := s.Attr(name)
	return strings.TrimSpace(val)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
