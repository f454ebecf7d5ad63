package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/exprsn/platform/common/cronspec"
)

var (
	previewCount    int
	previewTimezone string
)

// cronCmd represents the cron command
var cronCmd = &cobra.Command{
	Use:   "cron",
	Short: "Inspect schedule expressions",
}

var previewCmd = &cobra.Command{
	Use:   "preview [expression]",
	Short: "Print the next fire times of a cron expression",
	Long:  `Print the next fire times of a five-field cron expression, evaluated in --tz and shown in UTC and local time.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		times, err := preview(args[0], previewTimezone, previewCount, time.Now())
		if err != nil {
			return err
		}
		loc, err := cronspec.Location(previewTimezone)
		if err != nil {
			return err
		}
		for _, t := range times {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", t.UTC().Format(time.RFC3339), t.In(loc).Format("Mon 2006-01-02 15:04 MST"))
		}
		return nil
	},
}

// preview returns the next n fire times after now
func preview(expr, tz string, n int, now time.Time) ([]time.Time, error) {
	if n < 1 {
		return nil, fmt.Errorf("count must be positive")
	}
	sched, err := cronspec.ParseIn(expr, tz)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	next := now
	for range n {
		next = sched.Next(next)
		if next.IsZero() {
			break
		}
		out = append(out, next)
	}
	return out, nil
}

func init() {
	previewCmd.Flags().IntVarP(&previewCount, "count", "n", 5, "Number of fire times")
	previewCmd.Flags().StringVar(&previewTimezone, "tz", cronspec.DefaultTimezone, "IANA timezone")

	cronCmd.AddCommand(previewCmd)
}
