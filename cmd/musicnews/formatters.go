package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/syncpower/musicnews/aggregator"
	"github.com/syncpower/musicnews/article"
	"github.com/syncpower/musicnews/sources"
)

// printColumnsTable prints a page of articles in human-readable form
func printColumnsTable(w io.Writer, result *aggregator.Page, page, pageSize int) {
	if len(result.Articles) == 0 {
		fmt.Fprintf(w, "No articles on page %d (%d total).\n", page, result.TotalCount)
		return
	}

	offset := (page - 1) * pageSize
	fmt.Fprintf(w, "Showing %d-%d of %d articles\n\n", offset+1, offset+len(result.Articles), result.TotalCount)

	for _, a := range result.Articles {
		marker := "●"
		if a.SourceKind == article.SourceScraped {
			marker = "○"
		}

		fmt.Fprintf(w, "%s %s\n", marker, truncate(a.Title, 70))
		meta := a.DisplayDate
		if a.Label != "" {
			meta += " | " + a.Label
		}
		fmt.Fprintf(w, "   %s\n", meta)
		if a.Description != "" {
			fmt.Fprintf(w, "   %s\n", truncate(a.Description, 150))
		}
		fmt.Fprintf(w, "   URL: %s\n", a.URL)
		fmt.Fprintf(w, "   ID: %s\n", a.ID)
		fmt.Fprintln(w)
	}
}

// printColumnsJSON prints a page in the same shape the HTTP API returns
func printColumnsJSON(w io.Writer, result *aggregator.Page) error {
	output := map[string]any{
		"articles":    result.Articles,
		"total_count": result.TotalCount,
		"error":       nil,
	}
	if result.Failed() {
		output["error"] = result.ErrorMessage()
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	fmt.Fprintln(w, string(data))
	return nil
}

// printPagesTable prints the configured static pages
func printPagesTable(w io.Writer, pages []sources.Page) {
	if len(pages) == 0 {
		fmt.Fprintln(w, "No pages configured.")
		return
	}

	fmt.Fprintf(w, "%-36s %-5s %-8s %-6s %s\n", "ID", "KIND", "STATUS", "ERRORS", "URL")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, p := range pages {
		status := "enabled"
		if !p.IsEnabled() {
			status = "disabled"
		}
		fmt.Fprintf(w, "%-36s %-5s %-8s %-6d %s\n",
			p.PageID.String(),
			p.Kind,
			status,
			p.FetchErrorCount,
			truncate(p.URL, 60),
		)
	}
}

// truncate shortens s to at most limit runes
func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-3]) + "..."
}
