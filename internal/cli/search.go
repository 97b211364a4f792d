package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCmd(flags *rootFlags) *cobra.Command {
	var (
		domain string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the dataset catalog",
		Example: `  medlens search "nursing home"
  medlens search spending --domain spending
  medlens search --domain npi_registry`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			results := a.Catalog.Search(query, domain, limit)
			if len(results) == 0 {
				cmd.Println("No datasets matched. Try a broader query or drop the --domain filter.")
				return nil
			}
			for _, ds := range results {
				cmd.Printf("%-14s %s\n", ds.ID, ds.Title)
				cmd.Printf("%-14s domain=%s platform=%s\n", "", ds.Domain, ds.Platform)
				if ds.Description != "" {
					cmd.Printf("%-14s %s\n", "", oneLine(ds.Description, 100))
				}
			}
			cmd.Printf("(%d datasets)\n", len(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "restrict to a data domain, e.g. hospital_compare")
	cmd.Flags().IntVar(&limit, "limit", 0, "max results (default 20)")
	return cmd
}

func oneLine(s string, max int) string {
	return truncate(strings.Join(strings.Fields(s), " "), max)
}

func newDatasetsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List every dataset in the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			for _, ds := range a.Catalog.All() {
				cmd.Printf("%-40s %-16s %s\n", ds.ID, ds.Platform, ds.Title)
			}
			cmd.Printf("(%d datasets)\n", a.Catalog.Len())
			return nil
		},
	}
}

func newDescribeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "describe <dataset-id>",
		Short: "Show a dataset's columns and join partners",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			ds, ok := a.Catalog.Get(args[0])
			if !ok {
				return fmt.Errorf("unknown dataset %q (try 'medlens datasets')", args[0])
			}

			cmd.Printf("%s: %s\n", ds.ID, ds.Title)
			cmd.Printf("platform: %s  domain: %s  host: %s\n", ds.Platform, ds.Domain, ds.Host)
			if ds.Description != "" {
				cmd.Println(ds.Description)
			}
			if len(ds.JoinKeys) > 0 {
				cmd.Printf("join keys: %s\n", strings.Join(ds.JoinKeys, ", "))
			}
			cmd.Printf("sql table name: %s\n", ds.SQLName())

			if len(ds.Columns) > 0 {
				cmd.Println("\ncolumns:")
				for _, col := range ds.Columns {
					line := fmt.Sprintf("  %-32s %s", col.Name, col.DataType)
					if col.Description != "" {
						line += "  " + oneLine(col.Description, 70)
					}
					cmd.Println(line)
				}
			}

			if joinable := a.Catalog.Joinable(ds.ID); len(joinable) > 0 {
				cmd.Println("\njoinable datasets:")
				for _, cand := range joinable {
					cmd.Printf("  %-40s on %-12s %s\n", cand.Dataset.ID, cand.Key, cand.Dataset.Title)
				}
			}
			return nil
		},
	}
}
