package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/volunteerd/internal/model"
	"github.com/dukerupert/volunteerd/internal/recurrence"
)

func previewCmd() *cobra.Command {
	var (
		start, end, freq, until, rrule string
		interval, count                int
	)

	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Print the occurrences a recurrence rule would create",
		Example: `  volunteerd preview --start 2030-03-04T09:00:00Z --end 2030-03-04T12:00:00Z --freq weekly --count 4
  volunteerd preview --start 2030-01-31T09:00:00Z --end 2030-01-31T10:00:00Z --rrule "FREQ=MONTHLY;COUNT=3"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			startTime, err := time.Parse(time.RFC3339, start)
			if err != nil {
				return fmt.Errorf("--start must be RFC 3339: %w", err)
			}
			endTime, err := time.Parse(time.RFC3339, end)
			if err != nil {
				return fmt.Errorf("--end must be RFC 3339: %w", err)
			}

			rule, err := previewRule(rrule, freq, interval, count, until)
			if err != nil {
				return err
			}

			occs, err := recurrence.Expand(rule, startTime, endTime)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s): %d occurrences\n", rule.Describe(), rule.String(), len(occs))
			for i, o := range occs {
				fmt.Fprintf(out, "%3d  %s  ->  %s\n", i+1, o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&start, "start", "", "Start of the first occurrence (RFC 3339)")
	cmd.Flags().StringVar(&end, "end", "", "End of the first occurrence (RFC 3339)")
	cmd.Flags().StringVar(&freq, "freq", "", "daily, weekly or monthly")
	cmd.Flags().IntVar(&interval, "interval", 1, "Repeat every N periods")
	cmd.Flags().IntVar(&count, "count", 0, "Number of occurrences")
	cmd.Flags().StringVar(&until, "until", "", "Last date, inclusive (YYYY-MM-DD)")
	cmd.Flags().StringVar(&rrule, "rrule", "", "RRULE text, instead of --freq/--interval/--count/--until")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	cmd.MarkFlagsMutuallyExclusive("rrule", "freq")
	return cmd
}

func previewRule(rrule, freq string, interval, count int, until string) (recurrence.Rule, error) {
	if rrule != "" {
		return recurrence.Parse(rrule)
	}

	var f recurrence.Freq
	if err := f.UnmarshalText([]byte(freq)); err != nil {
		return recurrence.Rule{}, err
	}
	rule := recurrence.Rule{Freq: f, Interval: interval, Count: count}
	if until != "" {
		d, err := time.Parse(time.DateOnly, until)
		if err != nil {
			return recurrence.Rule{}, fmt.Errorf("%w: --until must be YYYY-MM-DD", model.ErrInvalidRule)
		}
		rule.EndDate = &d
	}
	return rule, rule.Validate()
}
