package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func columnsCmd() *cobra.Command {
	var (
		page       int
		pageSize   int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Fetch one page of the merged interview and column list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runColumns(cmd.Context(), page, pageSize, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&page, "page", 1, "page number (1-based)")
	cmd.Flags().IntVar(&pageSize, "page-size", 10, "articles per page")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runColumns(ctx context.Context, page, pageSize int, jsonOutput bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	a, err := newApp(cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.aggregator.GetPage(ctx, page, pageSize)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printColumnsJSON(os.Stdout, result)
	}

	printColumnsTable(os.Stdout, result, page, pageSize)
	if result.Failed() {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", result.ErrorMessage())
	}
	return nil
}
