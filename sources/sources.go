package sources

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/syncpower/musicnews/logger"
)

// Custom errors for page operations
var (
	ErrPageNotFound    = errors.New("page not found")
	ErrDuplicateURL    = errors.New("page with this URL already exists")
	ErrInvalidPageKind = errors.New("kind must be page or feed")
)

// Kinds of configured entries.
const (
	KindPage = "page"
	KindFeed = "feed"
)

// PageStore manages the configured page list using SQLite.
type PageStore struct {
	db    *sql.DB
	feeds *FeedExpander
	log   *zap.Logger
}

// Page is one configured entry: a static column page or a feed whose items
// are scraped.
type Page struct {
	PageID          uuid.UUID  `json:"page_id"`
	Kind            string     `json:"kind"`
	URL             string     `json:"url"`
	Name            string     `json:"name"`
	EnabledAt       *time.Time `json:"enabled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastFetchedAt   *time.Time `json:"last_fetched_at,omitempty"`
	FetchErrorCount int        `json:"fetch_error_count"`
	LastError       *string    `json:"last_error,omitempty"`
}

// IsEnabled returns true if the page is currently enabled.
func (p *Page) IsEnabled() bool {
	return p.EnabledAt != nil
}

// PageUpdate represents fields that can be updated on a page.
type PageUpdate struct {
	Name           *string
	URL            *string
	EnabledAt      *time.Time
	ClearEnabledAt bool // Set to true to set enabled_at to NULL
}

// PageFilter represents filtering options for listing pages.
type PageFilter struct {
	Kind    *string
	Enabled *bool
	Limit   int
	Offset  int
}

// NewPageStore opens (or creates) the page database at dbPath.
func NewPageStore(dbPath string, feeds *FeedExpander, log *zap.Logger) (*PageStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &PageStore{db: db, feeds: feeds, log: logger.OrNop(log)}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the pages table if it doesn't exist.
func (s *PageStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		page_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		enabled_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		last_fetched_at TEXT,
		fetch_error_count INTEGER DEFAULT 0,
		last_error TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *PageStore) Close() error {
	return s.db.Close()
}

// CreatePage adds a page or feed.
func (s *PageStore) CreatePage(kind, url, name string, enabledAt *time.Time) (*Page, error) {
	if err := validateKind(kind); err != nil {
		return nil, err
	}

	now := time.Now()
	page := &Page{
		PageID:    uuid.New(),
		Kind:      kind,
		URL:       url,
		Name:      name,
		EnabledAt: enabledAt,
		CreatedAt: now,
		UpdatedAt: now,
	}

	query := `
		INSERT INTO pages (page_id, kind, url, name, enabled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		page.PageID.String(),
		page.Kind,
		page.URL,
		page.Name,
		formatTime(page.EnabledAt),
		formatTime(&page.CreatedAt),
		formatTime(&page.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateURL
		}
		return nil, fmt.Errorf("failed to insert page: %w", err)
	}

	return page, nil
}

const pageColumns = `page_id, kind, url, name, enabled_at, created_at, updated_at,
	last_fetched_at, fetch_error_count, last_error`

// GetPage retrieves a page by ID.
func (s *PageStore) GetPage(pageID uuid.UUID) (*Page, error) {
	row := s.db.QueryRow("SELECT "+pageColumns+" FROM pages WHERE page_id = ?", pageID.String())

	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	return page, nil
}

// GetPageByURL retrieves a page by its URL.
func (s *PageStore) GetPageByURL(url string) (*Page, error) {
	row := s.db.QueryRow("SELECT "+pageColumns+" FROM pages WHERE url = ?", url)

	page, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, ErrPageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	return page, nil
}

// ListPages lists pages in creation order with optional filtering.
func (s *PageStore) ListPages(filter PageFilter) ([]Page, error) {
	return s.listPages(context.Background(), filter)
}

func (s *PageStore) listPages(ctx context.Context, filter PageFilter) ([]Page, error) {
	query := "SELECT " + pageColumns + " FROM pages"

	var whereClauses []string
	var args []any

	if filter.Kind != nil {
		whereClauses = append(whereClauses, "kind = ?")
		args = append(args, *filter.Kind)
	}

	if filter.Enabled != nil {
		if *filter.Enabled {
			whereClauses = append(whereClauses, "enabled_at IS NOT NULL")
		} else {
			whereClauses = append(whereClauses, "enabled_at IS NULL")
		}
	}

	if len(whereClauses) > 0 {
		query += " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// rowid follows insertion order
	query += " ORDER BY rowid ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	} else if filter.Offset > 0 {
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, *page)
	}

	return pages, rows.Err()
}

// UpdatePage updates a page with the provided fields.
func (s *PageStore) UpdatePage(pageID uuid.UUID, update PageUpdate) error {
	setClauses := []string{"updated_at = ?"}
	now := time.Now()
	args := []any{formatTime(&now)}

	if update.Name != nil {
		setClauses = append(setClauses, "name = ?")
		args = append(args, *update.Name)
	}
	if update.URL != nil {
		setClauses = append(setClauses, "url = ?")
		args = append(args, *update.URL)
	}
	if update.ClearEnabledAt {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, nil)
	} else if update.EnabledAt != nil {
		setClauses = append(setClauses, "enabled_at = ?")
		args = append(args, formatTime(update.EnabledAt))
	}

	args = append(args, pageID.String())

	query := fmt.Sprintf("UPDATE pages SET %s WHERE page_id = ?",
		strings.Join(setClauses, ", "))

	result, err := s.db.Exec(query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateURL
		}
		return fmt.Errorf("failed to update page: %w", err)
	}

	return requireRow(result)
}

// DeletePage deletes a page.
func (s *PageStore) DeletePage(pageID uuid.UUID) error {
	result, err := s.db.Exec("DELETE FROM pages WHERE page_id = ?", pageID.String())
	if err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}

	return requireRow(result)
}

// Load returns the enabled page URLs in creation order, followed by the item
// links of enabled feeds.
func (s *PageStore) Load(ctx context.Context) ([]string, error) {
	enabled := true
	pages, err := s.listPages(ctx, PageFilter{Enabled: &enabled})
	if err != nil {
		return []string{}, err
	}

	var list PageList
	for _, p := range pages {
		if p.Kind == KindFeed {
			list.Feeds = append(list.Feeds, p.URL)
		} else {
			list.Pages = append(list.Pages, p.URL)
		}
	}

	return expand(ctx, list, s.feeds, s.log), nil
}

// RecordFetch stores the outcome of scraping url. URLs that are not
// configured pages (feed items, for instance) are ignored.
func (s *PageStore) RecordFetch(ctx context.Context, url string, fetchErr error) error {
	now := time.Now()

	var (
		query string
		args  []any
	)
	if fetchErr == nil {
		query = `UPDATE pages SET last_fetched_at = ?, fetch_error_count = 0, last_error = NULL WHERE url = ?`
		args = []any{formatTime(&now), url}
	} else {
		query = `UPDATE pages SET last_fetched_at = ?, fetch_error_count = fetch_error_count + 1, last_error = ? WHERE url = ?`
		args = []any{formatTime(&now), fetchErr.Error(), url}
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record fetch: %w", err)
	}
	return nil
}

// ImportList adds every page and feed of list that is not already stored.
// It returns the number of entries added.
func (s *PageStore) ImportList(list PageList) (int, error) {
	added := 0
	now := time.Now()

	add := func(kind string, urls []string) error {
		for _, u := range urls {
			_, err := s.CreatePage(kind, u, u, &now)
			if errors.Is(err, ErrDuplicateURL) {
				continue
			}
			if err != nil {
				return err
			}
			added++
		}
		return nil
	}

	if err := add(KindPage, list.Pages); err != nil {
		return added, err
	}
	if err := add(KindFeed, list.Feeds); err != nil {
		return added, err
	}
	return added, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPage(row rowScanner) (*Page, error) {
	var pageIDStr, kind, url, name, createdAtStr, updatedAtStr string
	var enabledAtStr, lastFetchedAtStr, lastError sql.NullString
	var fetchErrorCount int

	err := row.Scan(
		&pageIDStr, &kind, &url, &name,
		&enabledAtStr, &createdAtStr, &updatedAtStr,
		&lastFetchedAtStr, &fetchErrorCount, &lastError,
	)
	if err != nil {
		return nil, err
	}

	pageID, err := uuid.Parse(pageIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page ID: %w", err)
	}

	page := &Page{
		PageID:          pageID,
		Kind:            kind,
		URL:             url,
		Name:            name,
		CreatedAt:       parseTime(createdAtStr),
		UpdatedAt:       parseTime(updatedAtStr),
		FetchErrorCount: fetchErrorCount,
	}

	if enabledAtStr.Valid {
		t := parseTime(enabledAtStr.String)
		page.EnabledAt = &t
	}
	if lastFetchedAtStr.Valid {
		t := parseTime(lastFetchedAtStr.String)
		page.LastFetchedAt = &t
	}
	if lastError.Valid {
		page.LastError = &lastError.String
	}

	return page, nil
}

func validateKind(kind string) error {
	if kind != KindPage && kind != KindFeed {
		return ErrInvalidPageKind
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint") ||
		strings.Contains(err.Error(), "unique constraint")
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrPageNotFound
	}
	return nil
}

// Helper functions for time formatting
func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	// Strip monotonic clock for consistent storage and comparisons
	return t.Truncate(0).Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t.Truncate(0)
}
