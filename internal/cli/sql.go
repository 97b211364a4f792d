package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medlens/medlens/internal/app"
	"github.com/medlens/medlens/internal/engine"
)

func newSQLCmd(flags *rootFlags) *cobra.Command {
	var (
		load       []string
		maxRecords int
		output     string
	)

	cmd := &cobra.Command{
		Use:   "sql <statement>",
		Short: "Run SQL over loaded datasets",
		Long: `Load one or more datasets into the in-process SQL engine and run a statement
against them. Table names derive from dataset titles; 'medlens describe'
shows the name each dataset registers under.`,
		Example: `  medlens sql --load xubh-q36u "SELECT state, COUNT(*) AS n FROM hospital_general_information GROUP BY state ORDER BY n DESC LIMIT 10"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			for _, id := range load {
				res, err := a.LoadDataset(cmd.Context(), app.LoadRequest{
					DatasetID:  id,
					MaxRecords: maxRecords,
				})
				if err != nil {
					return fmt.Errorf("loading %s: %w", id, err)
				}
				cmd.PrintErrf("loaded %s as %s (%d rows)\n", id, res.Info.Name, res.Info.Rows)
			}

			t, err := a.RunSQL(cmd.Context(), args[0])
			if err != nil {
				var qerr *engine.QueryError
				if errors.As(err, &qerr) && len(qerr.Missing) > 0 {
					return fmt.Errorf("%w\nnot loaded: %s (use --load <dataset-id>)",
						err, strings.Join(qerr.Missing, ", "))
				}
				return err
			}
			return renderTable(cmd.OutOrStdout(), t, output)
		},
	}

	cmd.Flags().StringArrayVar(&load, "load", nil, "dataset ID to load before running (repeatable)")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "per-dataset record cap (default from config)")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, csv, or json")
	return cmd
}

func newLoadCmd(flags *rootFlags) *cobra.Command {
	var (
		filterPairs []string
		tableName   string
		maxRecords  int
	)

	cmd := &cobra.Command{
		Use:   "load <dataset-id>",
		Short: "Download a dataset into the cache and show its SQL schema",
		Long: `Download a dataset (up to the record cap) into the local Parquet cache and
register it in the SQL engine, printing the table name and schema. Later
'medlens sql' runs reuse the cached download.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseFilters(filterPairs)
			if err != nil {
				return err
			}

			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			res, err := a.LoadDataset(cmd.Context(), app.LoadRequest{
				DatasetID:  args[0],
				TableName:  tableName,
				Filters:    filters,
				MaxRecords: maxRecords,
			})
			if err != nil {
				return err
			}

			source := "download"
			if res.FromCache {
				source = "cache"
			}
			cmd.Printf("table %s: %d rows (%s)\n", res.Info.Name, res.Info.Rows, source)
			for _, col := range res.Info.Columns {
				cmd.Printf("  %-32s %s\n", col.Name, col.Type)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&filterPairs, "filter", "f", nil, "equality filter column=value (repeatable)")
	cmd.Flags().StringVar(&tableName, "table", "", "override the SQL table name")
	cmd.Flags().IntVar(&maxRecords, "max-records", 0, "record cap (default from config)")
	return cmd
}
