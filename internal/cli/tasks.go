package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/supertask/pkg/model"
)

func newTasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Manage tasks on a running server",
	}
	cmd.AddCommand(
		newTasksListCmd(),
		newTasksGetCmd(),
		newTasksRegisterCmd(),
		newTasksInvokeCmd(),
		newTasksRemoveCmd(),
	)
	return cmd
}

func newTasksListCmd() *cobra.Command {
	var (
		kind   string
		limit  int
		offset int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := model.ListOptions{Limit: limit, Offset: offset}
			if kind != "" {
				k, err := model.ParseKind(kind)
				if err != nil {
					return err
				}
				opts.Kind = k
			}
			data, pg, err := client.ListTasks(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("list tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(data) == 0 {
				fmt.Fprintln(out, "No tasks found.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tPERMISSION\tROUNDS\tAVG\tLAST RUN")
			for _, t := range data {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.Name, t.Kind, t.Permission,
					humanize.Comma(int64(t.Stats.ExecutionRounds)),
					formatAET(t.Stats.AverageExecutionTime),
					formatLastRun(t.Stats.LastStarted),
				)
			}
			tw.Flush()

			if pg != nil && pg.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(data), pg.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list tasks of this kind (local, shared, foreign)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum tasks to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Tasks to skip")
	return cmd
}

func newTasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := client.Task(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get task: %w", err)
			}
			printTask(cmd.OutOrStdout(), t)
			return nil
		},
	}
}

func newTasksRegisterCmd() *cobra.Command {
	var (
		file       string
		lang       string
		permission string
		script     bool
		priority   float64
	)
	cmd := &cobra.Command{
		Use:   "register <name> --file <source>",
		Short: "Register a foreign source task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			req := model.RegisterRequest{
				Name:   args[0],
				Kind:   model.KindForeign,
				Lang:   lang,
				Source: string(src),
			}
			if req.Lang == "" && filepath.Ext(file) == ".go" {
				req.Lang = "go"
			}
			if permission != "" {
				p, err := model.ParsePermission(permission)
				if err != nil {
					return err
				}
				req.Permission = &p
			}
			if script {
				module := false
				req.Module = &module
			}
			if cmd.Flags().Changed("priority") {
				req.Priority = &priority
			}

			t, err := client.RegisterTask(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("register task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task registered: %s (%s, %s)\n", t.Name, t.Lang, t.Permission)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Source file")
	cmd.Flags().StringVar(&lang, "lang", "", "Source language (js, go); inferred from the file extension")
	cmd.Flags().StringVar(&permission, "permission", "", "Capability tier (none, restricted, minimal, unrestricted)")
	cmd.Flags().BoolVar(&script, "script", false, "Source is a script, not a module")
	cmd.Flags().Float64Var(&priority, "priority", 0, "Scheduling priority")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newTasksInvokeCmd() *cobra.Command {
	var (
		contextJSON string
		timeout     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "invoke <name> [args...]",
		Short: "Invoke a task on the server and print its results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			callCtx, err := parseContext(contextJSON)
			if err != nil {
				return err
			}
			req := model.InvokeRequest{Args: parseArgs(args[1:]), Context: callCtx}
			res, err := client.InvokeTask(cmd.Context(), args[0], req, timeout)
			if err != nil {
				return fmt.Errorf("invoke task: %w", err)
			}
			if res.Error != "" {
				return fmt.Errorf("task %s: %s", args[0], res.Error)
			}
			return printJSON(cmd.OutOrStdout(), res.Results)
		},
	}
	cmd.Flags().StringVar(&contextJSON, "context", "", "Context override as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "How long the server waits for the task's callback")
	return cmd
}

func newTasksRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Unregister a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client.RemoveTask(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("remove task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task removed: %s\n", args[0])
			return nil
		},
	}
}

func printTask(w io.Writer, t model.TaskInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Name:\t%s\n", t.Name)
	fmt.Fprintf(tw, "Kind:\t%s\n", t.Kind)
	if t.Lang != "" {
		fmt.Fprintf(tw, "Lang:\t%s (module=%t, compiled=%t)\n", t.Lang, t.Module, t.Compiled)
	}
	fmt.Fprintf(tw, "Permission:\t%s\n", t.Permission)
	fmt.Fprintf(tw, "Sandboxed:\t%t\n", t.Sandboxed)
	fmt.Fprintf(tw, "Remote:\t%t\n", t.Remote)
	if t.Priority != model.NoPriority {
		fmt.Fprintf(tw, "Priority:\t%s\n", humanize.Ftoa(t.Priority))
	}
	fmt.Fprintf(tw, "Rounds:\t%s\n", humanize.Comma(int64(t.Stats.ExecutionRounds)))
	fmt.Fprintf(tw, "Average:\t%s\n", formatAET(t.Stats.AverageExecutionTime))
	fmt.Fprintf(tw, "Last run:\t%s\n", formatLastRun(t.Stats.LastStarted))
	tw.Flush()
}

// formatAET renders a running mean in nanoseconds with an SI prefix.
func formatAET(ns float64) string {
	if ns == model.NoSamples {
		return "-"
	}
	return humanize.SIWithDigits(ns/float64(time.Second), 2, "s")
}

func formatLastRun(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
