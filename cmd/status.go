package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opencourtdata/judgment-crawler/internal/tracker"
)

// newStatusCmd creates the 'status' subcommand, which prints the progress
// tracker's view of every crawled court.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-court crawl progress",

		RunE: func(cmd *cobra.Command, _ []string) error {
			path := viper.GetString("tracker.path")
			store, err := tracker.NewStore(path)
			if err != nil {
				return fmt.Errorf("open tracker: %w", err)
			}

			snapshot := store.Snapshot()
			if len(snapshot) == 0 {
				cmd.Println("no progress recorded yet")
				return nil
			}

			codes := make([]string, 0, len(snapshot))
			for code := range snapshot {
				codes = append(codes, code)
			}
			sort.Strings(codes)

			for _, code := range codes {
				p := snapshot[code]
				last := p.LastDate
				if last == "" {
					last = "never"
				}
				cmd.Printf("%-12s last=%s failed=%d\n", code, last, len(p.FailedDates))
				for _, d := range p.FailedDates {
					cmd.Printf("%-12s   failed range start: %s\n", "", d)
				}
			}
			return nil
		},
	}
}
