package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/otcheredev/pacs-study-toolkit/internal/plot"
	"github.com/otcheredev/pacs-study-toolkit/internal/results"
	"github.com/otcheredev/pacs-study-toolkit/internal/stats"
)

var weekdayTimeframe string

var weekdayCmd = &cobra.Command{
	Use:   "weekday <input.json> <output_dir>",
	Short: "Plot per-weekday study-time distributions from a query result file",
	Long: `Reads a query result file, filters records to the requested trailing
timeframe and renders one hour-of-day distribution image per weekday
with data into the output directory.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		tf, err := stats.ParseTimeframe(weekdayTimeframe)
		if err != nil {
			cmd.SilenceUsage = false
			return err
		}

		records, err := results.Load(args[0])
		if err != nil {
			return err
		}

		filtered := stats.Filter(records, tf, time.Now())
		written, err := plot.WriteWeekdayPlots(filtered, args[1])
		if err != nil {
			return err
		}

		if len(written) == 0 {
			return fmt.Errorf("no records with valid study date/time to plot")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(weekdayCmd)
	weekdayCmd.Flags().StringVar(&weekdayTimeframe, "timeframe", "all", "Trailing timeframe: all, 6m, 3m or 1m")
}
