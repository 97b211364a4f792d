package cli

import (
	"github.com/spf13/cobra"

	"github.com/medlens/medlens/internal/app"
)

func newFetchCmd(flags *rootFlags) *cobra.Command {
	var (
		filterPairs []string
		columns     []string
		where       string
		orderBy     string
		limit       int
		offset      int
		output      string
	)

	cmd := &cobra.Command{
		Use:   "fetch <dataset-id>",
		Short: "Fetch records from a dataset",
		Long: `Fetch one page of records from a dataset, consulting the local cache first.
Simple equality filters work on every platform; --where and --order-by are
passed through as SoQL and only apply to Socrata-hosted datasets.`,
		Example: `  medlens fetch xubh-q36u -f state=CA --limit 25
  medlens fetch xubh-q36u --columns facility_name,state -o csv
  medlens fetch xubh-q36u --where "hospital_overall_rating >= '4'" -o json`,
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

			if limit <= 0 {
				limit = a.Config.DefaultLimit
			}
			t, err := a.QueryDataset(cmd.Context(), app.QueryRequest{
				DatasetID: args[0],
				Filters:   filters,
				Columns:   columns,
				Limit:     limit,
				Offset:    offset,
				OrderBy:   orderBy,
				Where:     where,
			})
			if err != nil {
				return err
			}
			if t.Empty() {
				cmd.PrintErrln("no records matched")
				return nil
			}
			return renderTable(cmd.OutOrStdout(), t, output)
		},
	}

	cmd.Flags().StringArrayVarP(&filterPairs, "filter", "f", nil, "equality filter column=value (repeatable)")
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "columns to return (comma separated)")
	cmd.Flags().StringVar(&where, "where", "", "raw SoQL WHERE clause (SODA datasets only)")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "sort column; prefix with - for descending (SODA only)")
	cmd.Flags().IntVar(&limit, "limit", 0, "max records (default from config)")
	cmd.Flags().IntVar(&offset, "offset", 0, "records to skip")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, csv, or json")
	return cmd
}

func newProviderCmd(flags *rootFlags) *cobra.Command {
	var (
		q      app.ProviderQuery
		output string
	)

	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Look up healthcare providers in the NPI registry",
		Example: `  medlens provider --npi 1234567893
  medlens provider --last-name SMITH --state CA --specialty cardiology`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			t, err := a.LookupProvider(cmd.Context(), q)
			if err != nil {
				return err
			}
			if t.Empty() {
				cmd.PrintErrln("no providers found")
				return nil
			}
			return renderTable(cmd.OutOrStdout(), t, output)
		},
	}

	cmd.Flags().StringVar(&q.NPI, "npi", "", "10-digit National Provider Identifier")
	cmd.Flags().StringVar(&q.FirstName, "first-name", "", "provider first name")
	cmd.Flags().StringVar(&q.LastName, "last-name", "", "provider last name")
	cmd.Flags().StringVar(&q.OrganizationName, "org", "", "organization name")
	cmd.Flags().StringVar(&q.City, "city", "", "practice city")
	cmd.Flags().StringVar(&q.State, "state", "", "practice state, e.g. CA")
	cmd.Flags().StringVar(&q.Specialty, "specialty", "", "taxonomy description, e.g. cardiology")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "max results (API caps at 200)")
	cmd.Flags().StringVarP(&output, "output", "o", formatTable, "output format: table, csv, or json")
	return cmd
}
