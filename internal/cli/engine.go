package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/supertask/pkg/model"
)

func newEngineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Show the server's engine tunables and load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := client.Engine(cmd.Context())
			if err != nil {
				return fmt.Errorf("get engine: %w", err)
			}
			return printEngine(cmd.OutOrStdout(), info)
		},
	}
	cmd.AddCommand(newEngineSetCmd())
	return cmd
}

func newEngineSetCmd() *cobra.Command {
	var (
		concurrency int
		timeout     string
		level       int
		flags       uint
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change engine tunables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u model.EngineUpdate
			f := cmd.Flags()
			if f.Changed("concurrency") {
				u.Concurrency = &concurrency
			}
			if f.Changed("timeout") {
				u.Timeout = &timeout
			}
			if f.Changed("level") {
				u.OptimizationLevel = &level
			}
			if f.Changed("flags") {
				u.OptimizationFlags = &flags
			}
			info, err := client.UpdateEngine(cmd.Context(), u)
			if err != nil {
				return fmt.Errorf("update engine: %w", err)
			}
			return printEngine(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Jobs dispatched per tick")
	cmd.Flags().StringVar(&timeout, "timeout", "", "Slot reclaim timeout (e.g. 500ms)")
	cmd.Flags().IntVar(&level, "level", 0, "Optimization level 0-3")
	cmd.Flags().UintVar(&flags, "flags", 0, "Optimization flag mask")
	return cmd
}

func printEngine(w io.Writer, info model.EngineInfo) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Concurrency:\t%s\n", humanize.Comma(int64(info.Concurrency)))
	fmt.Fprintf(tw, "Timeout:\t%s\n", info.Timeout)
	fmt.Fprintf(tw, "Reclaim:\t%t\n", info.Reclaim)
	fmt.Fprintf(tw, "Strict:\t%t\n", info.Strict)
	fmt.Fprintf(tw, "Optimization:\tO%d (flags %#x)\n", info.OptimizationLevel, info.OptimizationFlags)
	fmt.Fprintf(tw, "Tasks:\t%d\n", info.Tasks)
	fmt.Fprintf(tw, "Backlog:\t%s\n", humanize.Comma(int64(info.Backlog)))
	fmt.Fprintf(tw, "In flight:\t%d\n", info.InFlight)
	return tw.Flush()
}
