package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/syncpower/musicnews/logger"
)

// Loader produces the list of static page URLs to scrape.
type Loader interface {
	Load(ctx context.Context) ([]string, error)
}

// PageList is the configured set of pages. Feeds are RSS or Atom documents
// whose item links are scraped as pages too.
type PageList struct {
	Pages []string `json:"pages" yaml:"pages"`
	Feeds []string `json:"feeds" yaml:"feeds"`
}

// FileLoader reads the page list from a file on every call.
//
// A .json file may hold either a bare array of URLs or a PageList object.
// A .yaml or .yml file must hold a PageList object.
type FileLoader struct {
	path  string
	feeds *FeedExpander
	log   *zap.Logger
}

// NewFileLoader creates a loader for path. feeds may be nil when the file
// lists no feeds.
func NewFileLoader(path string, feeds *FeedExpander, log *zap.Logger) *FileLoader {
	return &FileLoader{
		path:  path,
		feeds: feeds,
		log:   logger.OrNop(log),
	}
}

// Path returns the file the loader reads.
func (l *FileLoader) Path() string {
	return l.path
}

// Load reads and parses the file, then expands any feeds. Read or parse
// failures return an empty list with the error.
func (l *FileLoader) Load(ctx context.Context) ([]string, error) {
	list, err := ReadPageList(l.path)
	if err != nil {
		l.log.Error("failed to load page list",
			zap.String("path", l.path),
			zap.Error(err),
		)
		return []string{}, err
	}

	return expand(ctx, list, l.feeds, l.log), nil
}

// ReadPageList parses a page list file. The format is chosen by extension.
func ReadPageList(path string) (PageList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PageList{}, fmt.Errorf("read page list: %w", err)
	}

	var list PageList
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err != nil {
			return PageList{}, fmt.Errorf("parse page list YAML: %w", err)
		}
	case ".json", "":
		list, err = parseJSONList(data)
		if err != nil {
			return PageList{}, err
		}
	default:
		return PageList{}, fmt.Errorf("unsupported page list format: %s", filepath.Ext(path))
	}

	list.Pages = cleanURLs(list.Pages)
	list.Feeds = cleanURLs(list.Feeds)
	return list, nil
}

func parseJSONList(data []byte) (PageList, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var pages []string
		if err := json.Unmarshal(data, &pages); err != nil {
			return PageList{}, fmt.Errorf("parse page list JSON: %w", err)
		}
		return PageList{Pages: pages}, nil
	}

	var list PageList
	if err := json.Unmarshal(data, &list); err != nil {
		return PageList{}, fmt.Errorf("parse page list JSON: %w", err)
	}
	return list, nil
}

func cleanURLs(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// expand returns the pages followed by the item links of every feed.
func expand(ctx context.Context, list PageList, feeds *FeedExpander, log *zap.Logger) []string {
	urls := append([]string{}, list.Pages...)
	if len(list.Feeds) == 0 {
		return urls
	}
	if feeds == nil {
		log.Warn("page list has feeds but no feed expander is configured",
			zap.Int("feeds", len(list.Feeds)),
		)
		return urls
	}
	return append(urls, feeds.Expand(ctx, list.Feeds)...)
}

// FeedExpander turns RSS/Atom feeds into lists of page URLs.
type FeedExpander struct {
	parser *gofeed.Parser
	log    *zap.Logger
}

// NewFeedExpander creates an expander that identifies itself with userAgent.
func NewFeedExpander(userAgent string, log *zap.Logger) *FeedExpander {
	parser := gofeed.NewParser()
	if userAgent != "" {
		parser.UserAgent = userAgent
	}
	return &FeedExpander{
		parser: parser,
		log:    logger.OrNop(log),
	}
}

// Expand fetches each feed in order and returns the item links. A feed that
// fails is logged and skipped.
func (f *FeedExpander) Expand(ctx context.Context, feedURLs []string) []string {
	var links []string
	for _, feedURL := range feedURLs {
		feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			f.log.Warn("failed to fetch feed",
				zap.String("feed", feedURL),
				zap.Error(err),
			)
			continue
		}

		for _, item := range feed.Items {
			if link := itemLink(item); link != "" {
				links = append(links, link)
			}
		}
	}
	return links
}

func itemLink(item *gofeed.Item) string {
	if item == nil {
		return ""
	}
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); l != "" {
			return l
		}
	}
	return ""
}
