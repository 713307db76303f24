package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/httpclient"
	"github.com/syncpower/musicnews/logger"
)

// Defaults for the article search endpoint.
const (
	DefaultEndpoint = "https://rdc-api-catalog-gateway-api.rakuten.co.jp/oshiraku/search/v1/article"
	DefaultTagID    = 1
	DefaultPageSize = 100
	DefaultSortType = "opendate"
	DefaultMaxPages = 100
)

// DefaultLabels restricts the full listing to interview-style articles.
var DefaultLabels = []string{"report", "interview", "exclusive", "public_relations"}

// Config describes how to query the catalog.
type Config struct {
	Endpoint string
	APIKey   string
	TagID    int
	// PageSize is the size requested for every page of FetchAll. A page
	// with fewer records ends the listing.
	PageSize int
	SortType string
	Labels   []string
	// MaxPages bounds FetchAll in case the upstream never returns a short
	// page.
	MaxPages int
}

// DefaultConfig returns the production catalog settings without an API key.
func DefaultConfig() Config {
	return Config{
		Endpoint: DefaultEndpoint,
		TagID:    DefaultTagID,
		PageSize: DefaultPageSize,
		SortType: DefaultSortType,
		Labels:   append([]string(nil), DefaultLabels...),
		MaxPages: DefaultMaxPages,
	}
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.TagID == 0 {
		c.TagID = DefaultTagID
	}
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.SortType == "" {
		c.SortType = DefaultSortType
	}
	if c.MaxPages <= 0 {
		c.MaxPages = DefaultMaxPages
	}
	return c
}

// Client pages through the catalog search endpoint.
type Client struct {
	http   httpclient.Client
	config Config
	log    *zap.Logger
}

// NewClient creates a catalog client. A nil http client gets the default
// resty client.
func NewClient(http httpclient.Client, config Config, log *zap.Logger) *Client {
	if http == nil {
		http = httpclient.NewRestyClient(0, "")
	}
	return &Client{
		http:   http,
		config: config.withDefaults(),
		log:    logger.OrNop(log),
	}
}

// FetchAll requests pages 1, 2, ... until a page holds fewer records than
// the page size. On failure it returns the articles gathered so far along
// with the error.
func (c *Client) FetchAll(ctx context.Context) ([]article.Article, error) {
	var all []article.Article

	for page := 1; ; page++ {
		if page > c.config.MaxPages {
			c.log.Warn("catalog page limit reached",
				zap.Int("max_pages", c.config.MaxPages),
				zap.Int("articles", len(all)),
			)
			return all, nil
		}

		records, err := c.fetchPage(ctx, page, c.config.PageSize, c.config.Labels)
		if err != nil {
			return all, fmt.Errorf("catalog page %d: %w", page, err)
		}

		all = append(all, c.normalize(records)...)

		c.log.Debug("catalog page fetched",
			zap.Int("page", page),
			zap.Int("records", len(records)),
		)

		if len(records) < c.config.PageSize {
			return all, nil
		}
	}
}

// FetchLatest returns the first page of the catalog without the label
// filter.
func (c *Client) FetchLatest(ctx context.Context, size int) ([]article.Article, error) {
	if size <= 0 {
		size = 10
	}

	records, err := c.fetchPage(ctx, 1, size, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog latest: %w", err)
	}
	return c.normalize(records), nil
}

func (c *Client) fetchPage(ctx context.Context, page, size int, labels []string) ([]record, error) {
	reqURL, err := c.pageURL(page, size, labels)
	if err != nil {
		return nil, err
	}

	headers := map[string]string{"apikey": c.config.APIKey}
	resp, err := c.http.Get(ctx, reqURL, headers)
	if err != nil {
		return nil, err
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("HTTP error: %d: %s", resp.StatusCode(), httpclient.Snippet(resp.Body(), 200))
	}

	var body searchResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return body.Articles, nil
}

func (c *Client) pageURL(page, size int, labels []string) (string, error) {
	u, err := url.Parse(c.config.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid catalog endpoint: %w", err)
	}

	q := u.Query()
	q.Set("oshTagId", strconv.Itoa(c.config.TagID))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(size))
	q.Set("sortType", c.config.SortType)
	if len(labels) > 0 {
		q.Set("label", strings.Join(labels, ","))
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (c *Client) normalize(records []record) []article.Article {
	articles := make([]article.Article, 0, len(records))
	for _, r := range records {
		a, ok := r.toArticle()
		if !ok {
			c.log.Warn("skipping catalog record without url",
				zap.String("article_id", string(r.ArticleID)),
			)
			continue
		}
		articles = append(articles, a)
	}
	return articles
}

type searchResponse struct {
	Articles []record `json:"articles"`
}

type record struct {
	ArticleID      articleID `json:"articleId"`
	OpenDate       string    `json:"openDate"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	ThumbnailImage *struct {
		URL string `json:"url"`
	} `json:"thumbnailImage"`
	LabelJa string `json:"labelJa"`
}

func (r record) toArticle() (article.Article, bool) {
	if strings.TrimSpace(r.URL) == "" {
		return article.Article{}, false
	}

	id := string(r.ArticleID)
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = article.PlaceholderTitle(id)
	}

	published := article.ParseDate(r.OpenDate)

	a := article.Article{
		ID:          id,
		SourceKind:  article.SourceCatalog,
		Title:       title,
		Description: article.Describe(r.Description, ""),
		URL:         r.URL,
		Label:       r.LabelJa,
		SortDate:    article.SortDate(published),
		DisplayDate: article.DisplayDate(published),
	}
	if r.ThumbnailImage != nil && r.ThumbnailImage.URL != "" {
		thumb := r.ThumbnailImage.URL
		a.ThumbnailURL = &thumb
	}
	return a, true
}

// articleID accepts the upstream id as either a JSON string or number.
type articleID string

func (id *articleID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = articleID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("articleId: %w", err)
	}
	*id = articleID(n.String())
	return nil
}
