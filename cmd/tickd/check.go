package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tickjob/internal/config"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse and validate the config, then print what it resolves to",
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
			if err := config.Validate(cfg); err != nil {
				return err
			}
			lc, _ := cfg.ResolveLoop()
			cds, _ := cfg.ResolveCountdowns()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: %s\n", path)
			fmt.Fprintf(out, "loop: frame=%s fixed_step=%s max_fixed_steps=%d max_delta=%s paused=%t tz=%s\n",
				lc.FrameInterval, lc.FixedStep, lc.MaxFixedSteps, lc.MaxDelta, lc.StartPaused, lc.Location)
			if len(cds) == 0 {
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDURATION\tSCALE\tOFFSET\tSCHEDULE\tAUTOSTART\tWHILE PAUSED")
			for _, c := range cds {
				sched := "-"
				if c.ScheduleSpec != "" {
					sched = c.ScheduleSpec
				}
				fmt.Fprintf(tw, "%s\t%s\t%g\t%s\t%s\t%t\t%t\n",
					c.Name, c.Duration, c.Scale, c.Offset, sched, c.Autostart, c.RunWhilePaused)
			}
			return tw.Flush()
		},
	}
}
