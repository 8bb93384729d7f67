package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/supertask/internal/capability"
	"github.com/me/supertask/internal/engine"
	"github.com/me/supertask/internal/manifest"
)

func newRunCmd() *cobra.Command {
	var (
		manifestPath string
		contextJSON  string
		timeout      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run <task> [args...]",
		Short: "Run one manifest task in-process and print its results",
		Long: "Loads the manifest into a local engine, invokes the task once and prints\n" +
			"the callback results as JSON. Arguments are parsed as JSON where possible.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("manifest") {
				cfg.Manifest = manifestPath
			}
			if cfg.Manifest == "" {
				return errors.New("no manifest: pass --manifest or set manifest in the config file")
			}
			callCtx, err := parseContext(contextJSON)
			if err != nil {
				return err
			}

			eng, err := engine.New(cfg.Engine, logger)
			if err != nil {
				return err
			}
			defer eng.Stop()

			m, err := manifest.Load(cfg.Manifest)
			if err != nil {
				return err
			}
			if _, err := manifest.NewApplier(eng, logger).Apply(m); err != nil {
				logger.Warn("manifest applied with errors", "error", err)
			}

			name := args[0]
			type outcome struct {
				err     error
				results []any
			}
			done := make(chan outcome, 1)
			err = eng.Apply(name, capability.Context(callCtx), parseArgs(args[1:]), func(err error, results ...any) {
				select {
				case done <- outcome{err, results}:
				default:
				}
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			select {
			case o := <-done:
				if o.err != nil {
					return fmt.Errorf("task %s: %w", name, o.err)
				}
				results := make([]any, len(o.results))
				for i, r := range o.results {
					results[i], _ = capability.Plain(r)
				}
				return printJSON(cmd.OutOrStdout(), results)
			case <-ctx.Done():
				return fmt.Errorf("task %s did not call back within %s", name, timeout)
			}
		},
	}
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "Task manifest (defaults to the config file's manifest)")
	cmd.Flags().StringVar(&contextJSON, "context", "", "Context override as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long to wait for the task's callback")
	return cmd
}
