package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/httpclient"
	"github.com/syncpower/musicnews/scraper"
)

const columnPage = `<!DOCTYPE html>
<html>
<head>
  <title>  Interview with   the Band </title>
  <meta name="date" content="2024-05-01">
</head>
<body>
  <h1>Headline</h1>
  <figure class="biography__image"><img src="../images/photo.jpg"></figure>
  <p>First paragraph of the column.</p>
  <p>Second paragraph.</p>
</body>
</html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

// TestExtractArticle_Complete verifies every field of a well-formed page
func TestExtractArticle_Complete(t *testing.T) {
	doc := parse(t, columnPage)

	a := ExtractArticle(doc, scraper.NewPageConfig(), "https://example.com/column/col01/index.html")

	assert.Equal(t, "col01", a.ID)
	assert.Equal(t, article.SourceScraped, a.SourceKind)
	assert.Equal(t, "Interview with the Band", a.Title)
	assert.Equal(t, "First paragraph of the column.", a.Description)
	assert.Equal(t, "https://example.com/column/col01/index.html", a.URL)
	require.NotNil(t, a.ThumbnailURL)
	assert.Equal(t, "https://example.com/column/images/photo.jpg", *a.ThumbnailURL)
	assert.Equal(t, "2024/5/1", a.DisplayDate)
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, article.JST).UTC(), a.SortDate)
}

// TestExtractArticle_TitleFallbacks verifies the title -> h1 -> placeholder chain
func TestExtractArticle_TitleFallbacks(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{"title", `<html><head><title>Page Title</title></head><body><h1>Heading</h1></body></html>`, "Page Title"},
		{"heading", `<html><head><title>   </title></head><body><h1>Heading</h1></body></html>`, "Heading"},
		{"placeholder", `<html><body><div>nothing</div></body></html>`, "No Title (col07)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := ExtractArticle(parse(t, tt.html), scraper.NewPageConfig(), "https://example.com/col07/index.html")
			assert.Equal(t, tt.expected, a.Title)
		})
	}
}

// TestExtractArticle_LongDescription verifies truncation at 100 characters
func TestExtractArticle_LongDescription(t *testing.T) {
	long := strings.Repeat("あ", 150)
	doc := parse(t, `<html><body><p>`+long+`</p></body></html>`)

	a := ExtractArticle(doc, scraper.NewPageConfig(), "https://example.com/c/index.html")

	assert.Equal(t, strings.Repeat("あ", 100)+"...", a.Description)
}

// TestExtractArticle_NoParagraph verifies the description fallback
func TestExtractArticle_NoParagraph(t *testing.T) {
	doc := parse(t, `<html><head><title>T</title></head><body></body></html>`)

	a := ExtractArticle(doc, scraper.NewPageConfig(), "https://example.com/c/index.html")

	assert.Equal(t, NoDescription, a.Description)
	assert.Nil(t, a.ThumbnailURL)
}

// TestExtractArticle_DateFallbacks verifies meta, time and unknown dates
func TestExtractArticle_DateFallbacks(t *testing.T) {
	t.Run("time element", func(t *testing.T) {
		doc := parse(t, `<html><body><time datetime="2023-12-24T10:00:00+09:00">Xmas</time></body></html>`)
		a := ExtractArticle(doc, scraper.NewPageConfig(), "https://example.com/c/index.html")
		assert.Equal(t, "2023/12/24", a.DisplayDate)
	})

	t.Run("empty meta falls through", func(t *testing.T) {
		doc := parse(t, `<html><head><meta name="date" content=""></head><body><time datetime="2022-01-02">x</time></body></html>`)
		a := ExtractArticle(doc, scraper.NewPageConfig(), "https://example.com/c/index.html")
		assert.Equal(t, "2022/1/2", a.DisplayDate)
	})

	t.Run("invalid date", func(t *testing.T) {
		doc := parse(t, `<html><head><meta name="date" content="unknown"></head></html>`)
		a := ExtractArticle(doc, scraper.NewPageConfig(), "https://example.com/c/index.html")
		assert.Equal(t, article.UnknownDate, a.DisplayDate)
		assert.Equal(t, article.Epoch, a.SortDate)
	})
}

// TestExtractArticle_CustomSelectors verifies configured selectors are used
func TestExtractArticle_CustomSelectors(t *testing.T) {
	doc := parse(t, `<html><body>
		<p>boilerplate</p>
		<div class="lead"><p>The lead.</p></div>
		<div class="hero"><img src="/hero.png"></div>
	</body></html>`)

	cfg := scraper.PageConfig{ParagraphSelector: "div.lead p", ImageSelector: "div.hero img"}
	a := ExtractArticle(doc, cfg, "https://example.com/c/index.html")

	assert.Equal(t, "The lead.", a.Description)
	require.NotNil(t, a.ThumbnailURL)
	assert.Equal(t, "https://example.com/hero.png", *a.ThumbnailURL)
}

// TestDeriveID verifies the id is the directory holding the page
func TestDeriveID(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://example.com/column01/index.html", "column01"},
		{"https://example.com/a/b/column02/", "column02"},
		{"https://example.com/page.html", "example.com"},
		{"nothing", "nothing"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, DeriveID(tt.url))
		})
	}
}

// TestResolveThumbnail verifies protocol-relative and relative sources
func TestResolveThumbnail(t *testing.T) {
	page := "https://example.com/column/col01/index.html"

	tests := []struct {
		name     string
		src      string
		expected string
		ok       bool
	}{
		{"protocol relative", "//cdn.example.com/img.jpg", "https://cdn.example.com/img.jpg", true},
		{"root relative", "/img/a.jpg", "https://example.com/img/a.jpg", true},
		{"path relative", "a.jpg", "https://example.com/column/col01/a.jpg", true},
		{"absolute", "http://other.example.com/b.png", "http://other.example.com/b.png", true},
		{"empty", "  ", "", false},
		{"bad scheme", "javascript:alert(1)", "", false},
		{"unparseable", "http://[::1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveThumbnail(tt.src, page)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

// TestExtractor_Extract verifies fetching and extraction over HTTP
func TestExtractor_Extract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(columnPage))
	}))
	defer server.Close()

	e := New(httpclient.NewRestyClient(time.Second, ""), scraper.NewPageConfig(), nil)
	result := e.Extract(context.Background(), server.URL+"/col01/index.html")

	require.True(t, result.OK())
	assert.Equal(t, "col01", result.Article.ID)
	assert.Equal(t, "Interview with the Band", result.Article.Title)
}

// TestExtractor_Extract_HTTPError verifies non-2xx pages fail and are logged
func TestExtractor_Extract_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	core, logs := observer.New(zap.WarnLevel)
	e := New(httpclient.NewRestyClient(time.Second, ""), scraper.NewPageConfig(), zap.New(core))
	result := e.Extract(context.Background(), server.URL+"/missing/index.html")

	assert.False(t, result.OK())
	assert.Nil(t, result.Article)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "404")
	assert.Equal(t, 1, logs.FilterMessage("static page fetch failed").Len())
}

// TestExtractor_ExtractAll verifies order preservation and failure isolation
func TestExtractor_ExtractAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/slow/"):
			time.Sleep(50 * time.Millisecond)
			w.Write([]byte(`<html><head><title>Slow</title></head></html>`))
		case strings.HasPrefix(r.URL.Path, "/fast/"):
			w.Write([]byte(`<html><head><title>Fast</title></head></html>`))
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	urls := []string{
		server.URL + "/slow/index.html",
		server.URL + "/broken/index.html",
		server.URL + "/fast/index.html",
	}

	e := New(httpclient.NewRestyClient(time.Second, ""), scraper.NewPageConfig(), nil)
	batch := e.ExtractAll(context.Background(), urls)

	require.Len(t, batch.Articles, 2)
	assert.Equal(t, "Slow", batch.Articles[0].Title, "input order is preserved")
	assert.Equal(t, "Fast", batch.Articles[1].Title)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, urls[1], batch.Failures[0].URL)
}

// TestExtractor_ExtractAll_Empty verifies an empty list needs no requests
func TestExtractor_ExtractAll_Empty(t *testing.T) {
	e := New(nil, scraper.NewPageConfig(), nil)
	batch := e.ExtractAll(context.Background(), nil)

	assert.Empty(t, batch.Articles)
	assert.Empty(t, batch.Failures)
}
