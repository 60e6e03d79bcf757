package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"tickjob/internal/config"
	"tickjob/internal/storage"
	logx "tickjob/pkg/logx"
)

func newJournalCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the most recent journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			cfg, err := config.Decode(path, data)
			if err != nil {
				return err
			}
			if cfg.Journal == nil {
				return storage.ErrDisabled
			}
			busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
			if err != nil {
				return err
			}
			j, err := storage.Open(storage.Config{
				Driver:      cfg.Journal.Driver,
				Path:        cfg.Journal.Path,
				BusyTimeout: busy,
			}, logx.NewConsole(cmd.ErrOrStderr(), "warn"))
			if err != nil {
				return err
			}
			if j == nil {
				return storage.ErrDisabled
			}
			defer j.Close()

			entries, err := j.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("journal is empty")
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "AT\tKIND\tNAME\tDETAIL\tFRAMES\tJOBS\tCOUNTDOWNS")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					e.At.Format(time.RFC3339), e.Kind, e.Name, e.Detail, e.Frames, e.ActiveJobs, e.ActiveCountdowns)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&n, "lines", "n", 20, "number of entries to print")
	return cmd
}
