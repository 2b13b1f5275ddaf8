package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/otcheredev/pacs-study-toolkit/internal/query"
	"github.com/otcheredev/pacs-study-toolkit/internal/results"
	"github.com/otcheredev/pacs-study-toolkit/pkg/dimse"
)

var (
	queryOutput     string
	queryFrom       string
	queryTo         string
	queryCallingAET string
	queryTimeout    time.Duration
)

var queryCmd = &cobra.Command{
	Use:   "query <address> <port> <called_ae_title>",
	Short: "Query study metadata from a PACS archive",
	Long: `Opens a DICOM association with the archive and issues one study-level
C-FIND per calendar month in the requested date range. Normalized
records are written to the output file as a JSON array. Windows that
fail after one retry are skipped and reported as a warning count.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			cmd.SilenceUsage = false
			return fmt.Errorf("invalid port %q", args[1])
		}

		from, to, err := resolveDateRange(queryFrom, queryTo)
		if err != nil {
			cmd.SilenceUsage = false
			return err
		}

		callingAET := cfg.CallingAET
		if queryCallingAET != "" {
			callingAET = queryCallingAET
		}
		timeout := cfg.Timeout
		if queryTimeout != 0 {
			timeout = queryTimeout
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		assoc := dimse.NewAssociation(dimse.AssociationConfig{
			Host:         args[0],
			Port:         port,
			CallingAET:   callingAET,
			CalledAET:    args[2],
			Timeout:      timeout,
			MaxPDULength: cfg.MaxPDULength,
		})
		if err := assoc.Connect(ctx); err != nil {
			return fmt.Errorf("failed to connect to PACS: %w", err)
		}
		defer assoc.Close()

		result, runErr := query.NewExecutor(assoc).Run(ctx, from, to)

		if len(result.Records) > 0 || runErr == nil {
			if err := results.Save(queryOutput, result.Records); err != nil {
				return err
			}
			log.Info().
				Int("num_records", len(result.Records)).
				Str("path", queryOutput).
				Msg("Results saved")
		}

		if runErr != nil {
			return fmt.Errorf("query run aborted: %w", runErr)
		}

		if result.WindowFailures > 0 {
			fmt.Fprintf(os.Stderr, "warning: %d of %d query windows failed and were skipped\n",
				result.WindowFailures, result.Windows)
		}

		return nil
	},
}

// resolveDateRange parses the --from/--to flags, defaulting to the
// trailing twelve months ending today.
func resolveDateRange(fromFlag, toFlag string) (time.Time, time.Time, error) {
	to := time.Now()
	from := to.AddDate(0, -12, 0)

	var err error
	if toFlag != "" {
		to, err = time.Parse("20060102", toFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to date %q (expected YYYYMMDD)", toFlag)
		}
		if fromFlag == "" {
			from = to.AddDate(0, -12, 0)
		}
	}
	if fromFlag != "" {
		from, err = time.Parse("20060102", fromFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from date %q (expected YYYYMMDD)", fromFlag)
		}
	}

	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from %s is after --to %s",
			from.Format("20060102"), to.Format("20060102"))
	}

	return from, to, nil
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "query_results.json", "Output file for the query results")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "Start of the study date range (YYYYMMDD, default 12 months ago)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "End of the study date range (YYYYMMDD, default today)")
	queryCmd.Flags().StringVar(&queryCallingAET, "calling-aet", "", "Calling AE title (default from configuration)")
	queryCmd.Flags().DurationVar(&queryTimeout, "timeout", 0, "Per-request timeout (default from configuration)")
}
