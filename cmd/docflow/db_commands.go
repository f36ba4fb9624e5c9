package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/docflow/internal/app"
	"github.com/joseph-ayodele/docflow/internal/export"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

func newDBHealthCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "dbhealth",
		Short: "Ping the staging and verified stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(cmd.Context(), func(stores *app.Stores) error {
				var failed int
				rows := make([][]string, 0, 2)
				for _, db := range []*repository.DB{stores.StagingDB, stores.VerifiedDB} {
					status := "OK"
					if err := repository.HealthCheck(cmd.Context(), db, timeout, ctx.logger); err != nil {
						status = "FAIL: " + err.Error()
						failed++
					}
					rows = append(rows, []string{db.Name(), db.Dialect(), status})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Store", "Driver", "Status"}, rows, 0, shouldColorize(out)))
				if failed > 0 {
					return fmt.Errorf("%d store(s) unhealthy", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "Ping timeout per store")
	return cmd
}

func newDocumentsCommand(ctx *commandContext) *cobra.Command {
	var (
		verified bool
		asJSON   bool
		maxWidth int
	)
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List stored documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStores(cmd.Context(), func(stores *app.Stores) error {
				recs, err := storeTable(stores, verified).ListAll(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, recs)
				}
				out := cmd.OutOrStdout()
				if len(recs) == 0 {
					fmt.Fprintln(out, "No documents found.")
					return nil
				}
				headers, rows := documentRows(recs)
				fmt.Fprintln(out, renderTable(headers, rows, maxWidth, shouldColorize(out)))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", false, "List the verified store instead of staging")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	cmd.Flags().IntVar(&maxWidth, "max-width", 40, "Wrap cells wider than this (0 disables)")
	return cmd
}

func newEnsureSchemaCommand(ctx *commandContext) *cobra.Command {
	var (
		verified bool
		columns  []string
	)
	cmd := &cobra.Command{
		Use:   "ensure-schema",
		Short: "Create the documents table and add any missing columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := make([]string, 0, len(columns))
			for _, c := range columns {
				if c = strings.TrimSpace(c); c != "" {
					keys = append(keys, c)
				}
			}
			if len(keys) == 0 {
				return errors.New("at least one --columns value is required")
			}
			return ctx.withStores(cmd.Context(), func(stores *app.Stores) error {
				t := storeTable(stores, verified)
				if err := t.EnsureColumns(cmd.Context(), keys); err != nil {
					return err
				}
				cols, err := t.Columns(cmd.Context())
				if err != nil {
					return err
				}
				for _, c := range cols {
					fmt.Fprintln(cmd.OutOrStdout(), c)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", false, "Target the verified store instead of staging")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Comma-separated column names")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var (
		verified bool
		output   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a store to an .xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sheet, name := "Documents", "documents.xlsx"
			if verified {
				sheet, name = "Verified", "verified-documents.xlsx"
			}
			if output == "" {
				output = name
			}
			return ctx.withStores(cmd.Context(), func(stores *app.Stores) error {
				buf, err := export.NewService(ctx.logger).ExportXLSX(cmd.Context(), storeTable(stores, verified), sheet)
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, buf, 0o644); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", output, len(buf))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verified, "verified", false, "Export the verified store instead of staging")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (default documents.xlsx or verified-documents.xlsx)")
	return cmd
}
