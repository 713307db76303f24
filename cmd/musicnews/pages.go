package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/syncpower/musicnews/sources"
)

func pagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pages",
		Short: "Manage the static page list stored in SQLite",
	}

	cmd.AddCommand(pagesListCmd())
	cmd.AddCommand(pagesAddCmd())
	cmd.AddCommand(pagesRemoveCmd())
	cmd.AddCommand(pagesToggleCmd("enable", "Enable a page", true))
	cmd.AddCommand(pagesToggleCmd("disable", "Disable a page", false))
	cmd.AddCommand(pagesImportCmd())
	return cmd
}

// withPageStore opens the configured page database for the duration of fn.
func withPageStore(fn func(store *sources.PageStore) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	feeds := sources.NewFeedExpander(cfg.HTTP.UserAgent, log)
	store, err := sources.NewPageStore(cfg.Pages.Database, feeds, log)
	if err != nil {
		return fmt.Errorf("failed to open page store: %w", err)
	}
	defer store.Close()

	return fn(store)
}

func pagesListCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured pages and feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPageStore(func(store *sources.PageStore) error {
				filter := sources.PageFilter{}
				if kind != "" {
					filter.Kind = &kind
				}
				pages, err := store.ListPages(filter)
				if err != nil {
					return fmt.Errorf("failed to list pages: %w", err)
				}
				printPagesTable(os.Stdout, pages)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "only list this kind (page or feed)")
	return cmd
}

func pagesAddCmd() *cobra.Command {
	var (
		kind     string
		name     string
		disabled bool
	)

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Add a static page or a feed of page links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := args[0]
			if err := sources.ValidateURL(url); err != nil {
				return err
			}
			if name == "" {
				name = url
			}

			var enabledAt *time.Time
			if !disabled {
				now := time.Now()
				enabledAt = &now
			}

			return withPageStore(func(store *sources.PageStore) error {
				page, err := store.CreatePage(kind, url, name, enabledAt)
				if err != nil {
					return fmt.Errorf("failed to create page: %w", err)
				}

				fmt.Printf("✓ Created %s: %s\n", page.Kind, page.PageID.String())
				fmt.Printf("  Name: %s\n", page.Name)
				fmt.Printf("  URL: %s\n", page.URL)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", sources.KindPage, "page or feed")
	cmd.Flags().StringVar(&name, "name", "", "display name (default: the URL)")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "add without enabling")
	return cmd
}

func pagesRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <page-id>",
		Short: "Remove a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid page ID: %w", err)
			}

			return withPageStore(func(store *sources.PageStore) error {
				if err := store.DeletePage(id); err != nil {
					return fmt.Errorf("failed to delete page: %w", err)
				}
				fmt.Printf("✓ Deleted page: %s\n", id.String())
				return nil
			})
		},
	}
}

func pagesToggleCmd(action, short string, enable bool) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <page-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid page ID: %w", err)
			}

			update := sources.PageUpdate{ClearEnabledAt: !enable}
			if enable {
				now := time.Now()
				update.EnabledAt = &now
			}

			return withPageStore(func(store *sources.PageStore) error {
				if err := store.UpdatePage(id, update); err != nil {
					return fmt.Errorf("failed to %s page: %w", action, err)
				}
				fmt.Printf("✓ %sd page: %s\n", action, id.String())
				return nil
			})
		},
	}
}

func pagesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSON or YAML URL list into the page store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := sources.ReadPageList(args[0])
			if err != nil {
				return err
			}

			return withPageStore(func(store *sources.PageStore) error {
				added, err := store.ImportList(list)
				if err != nil {
					return fmt.Errorf("failed to import pages: %w", err)
				}
				fmt.Printf("✓ Imported %d of %d entries\n", added, len(list.Pages)+len(list.Feeds))
				return nil
			})
		},
	}
}
