package cli

import (
	"time"

	"github.com/spf13/cobra"
)

func newCacheCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local dataset cache",
	}
	cmd.AddCommand(newCacheStatsCmd(flags), newCacheListCmd(flags), newCacheClearCmd(flags))
	return cmd
}

func newCacheStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show cache size and entry counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			stats := a.Cache.Stats()
			cmd.Printf("directory: %s\n", stats.CacheDirectory)
			cmd.Printf("entries:   %d\n", stats.EntryCount)
			cmd.Printf("datasets:  %d\n", stats.UniqueDatasetCount)
			cmd.Printf("size:      %.1f MB\n", float64(stats.TotalBytes)/(1024*1024))
			return nil
		},
	}
}

func newCacheListCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached downloads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			entries := a.Cache.List()
			if len(entries) == 0 {
				cmd.Println("cache is empty")
				return nil
			}
			for _, e := range entries {
				age := time.Since(time.Unix(int64(e.DownloadedAt), 0)).Round(time.Minute)
				status := ""
				if !e.Exists {
					status = "  (file missing)"
				}
				cmd.Printf("%-18s %-40s %7d rows  %s old%s\n",
					e.Key, e.DatasetID, e.RowCount, age, status)
			}
			return nil
		},
	}
}

func newCacheClearCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [dataset-id]",
		Short: "Remove cached downloads, optionally for one dataset",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			datasetID := ""
			if len(args) == 1 {
				datasetID = args[0]
			}
			removed, err := a.Cache.Clear(cmd.Context(), datasetID)
			if err != nil {
				return err
			}
			cmd.Printf("removed %d cache entries\n", removed)
			return nil
		},
	}
}
