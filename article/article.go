package article

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
)

// SourceKind identifies which upstream produced an article.
type SourceKind string

const (
	SourceCatalog SourceKind = "catalog"
	SourceScraped SourceKind = "scraped"
)

// UnknownDate is shown when an article has no usable publish date.
const UnknownDate = "日付不明"

// DescriptionLimit is the rune budget for descriptions before the ellipsis.
const DescriptionLimit = 100

// Ellipsis marks a truncated description.
const Ellipsis = "..."

// Epoch is the sort date used for articles without a publish date. It sorts
// after every real date.
var Epoch = time.Unix(0, 0).UTC()

// JST is the zone display dates are rendered in.
var JST = time.FixedZone("JST", 9*60*60)

// Article is the common shape produced by both the catalog and the scraped
// pages.
type Article struct {
	ID           string     `json:"id"`
	SourceKind   SourceKind `json:"source_kind"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	URL          string     `json:"url"`
	ThumbnailURL *string    `json:"thumbnail_url,omitempty"`
	Label        string     `json:"label,omitempty"`
	SortDate     time.Time  `json:"sort_date"`
	DisplayDate  string     `json:"display_date"`
}

// Key identifies an article across sources. IDs alone may collide between
// the catalog and scraped pages.
type Key struct {
	SourceKind SourceKind
	ID         string
}

// Key returns the (source kind, id) identity of the article.
func (a Article) Key() Key {
	return Key{SourceKind: a.SourceKind, ID: a.ID}
}

// SortDate returns the publish date used for ordering, or Epoch when the
// date is unknown.
func SortDate(published *time.Time) time.Time {
	if published == nil {
		return Epoch
	}
	return published.UTC()
}

// DisplayDate renders a publish date as a ja-JP numeric date (2024/5/1).
func DisplayDate(published *time.Time) string {
	if published == nil {
		return UnknownDate
	}
	return published.In(JST).Format("2006/1/2")
}

// ParseDate leniently parses a publish date. It returns nil when the value is
// empty, unparsable, or does not describe a real instant after the epoch.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	t, err := dateparse.ParseIn(raw, JST)
	if err != nil {
		return nil
	}
	if !t.After(Epoch) {
		return nil
	}

	t = t.UTC()
	return &t
}

// Truncate shortens s to at most limit runes, appending Ellipsis only when
// something was cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}

	runes := []rune(s)
	return string(runes[:limit]) + Ellipsis
}

// Describe normalizes free text into a description: whitespace is collapsed,
// the result is truncated, and empty text yields the fallback.
func Describe(text, fallback string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return fallback
	}
	return Truncate(text, DescriptionLimit)
}

// PlaceholderTitle is used when no title can be extracted.
func PlaceholderTitle(id string) string {
	return "No Title (" + id + ")"
}

// SortByDateDesc orders articles newest first. Ties keep their relative
// order.
func SortByDateDesc(articles []Article) {
	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].SortDate.After(articles[j].SortDate)
	})
}
