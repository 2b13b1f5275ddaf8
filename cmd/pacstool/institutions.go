package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/otcheredev/pacs-study-toolkit/internal/results"
	"github.com/otcheredev/pacs-study-toolkit/internal/stats"
)

var institutionsTimeframe string

var institutionsCmd = &cobra.Command{
	Use:   "institutions <input.json>",
	Short: "Count studies per institution from a query result file",
	Long: `Reads a query result file, filters records to the requested trailing
timeframe (measured back from the current time) and writes one
tab-separated "name<TAB>count" line per institution to stdout, ordered
by count descending with ties broken by name.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		tf, err := stats.ParseTimeframe(institutionsTimeframe)
		if err != nil {
			cmd.SilenceUsage = false
			return err
		}

		records, err := results.Load(args[0])
		if err != nil {
			return err
		}

		filtered := stats.Filter(records, tf, time.Now())
		counts := stats.CountInstitutions(filtered)

		if err := stats.WriteTSV(os.Stdout, counts); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "%d records in timeframe %s, %d institutions\n",
			len(filtered), tf, len(counts))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(institutionsCmd)
	institutionsCmd.Flags().StringVar(&institutionsTimeframe, "timeframe", "all", "Trailing timeframe: all, 6m, 3m or 1m")
}
