package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/otcheredev/pacs-study-toolkit/pkg/dimse"
)

var echoCmd = &cobra.Command{
	Use:   "echo <address> <port> <called_ae_title>",
	Short: "Verify connectivity to a PACS archive with C-ECHO",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		port, err := strconv.Atoi(args[1])
		if err != nil || port <= 0 || port > 65535 {
			cmd.SilenceUsage = false
			return fmt.Errorf("invalid port %q", args[1])
		}

		ctx := context.Background()
		assoc := dimse.NewAssociation(dimse.AssociationConfig{
			Host:         args[0],
			Port:         port,
			CallingAET:   cfg.CallingAET,
			CalledAET:    args[2],
			Timeout:      cfg.Timeout,
			MaxPDULength: cfg.MaxPDULength,
		})
		defer assoc.Close()

		start := time.Now()
		if err := assoc.CEcho(ctx); err != nil {
			return fmt.Errorf("C-ECHO failed: %w", err)
		}

		log.Info().
			Str("addr", fmt.Sprintf("%s:%d", args[0], port)).
			Str("called_ae", args[2]).
			Dur("response_time", time.Since(start)).
			Msg("C-ECHO successful")

		return nil
	},
}

func init() {
	rootCmd.AddCommand(echoCmd)
}
