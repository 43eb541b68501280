package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yourusername/text-forge/internal/tracker"
)

type StatusOptions struct {
	GlobalOptions

	Output string
}

func NewCmdStatus() *cobra.Command {
	o := &StatusOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "status JOB_ID",
		Short: "Show the current status of a job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd, args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *StatusOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json).")
}

func (o *StatusOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Output != "" && o.Output != jsonFormat {
		return fmt.Errorf("output format must be %s", jsonFormat)
	}
	return nil
}

func (o *StatusOptions) Run(ctx context.Context, cmd *cobra.Command, args []string) error {
	t := o.Tracker(nil)
	defer t.Close()

	job, err := t.Lookup(ctx, args[0])
	if err != nil {
		return o.printError(cmd, err)
	}
	if o.Output == jsonFormat {
		return printJSON(cmd.OutOrStdout(), job)
	}
	return printJobs(cmd.OutOrStdout(), []tracker.Job{job})
}

type ListOptions struct {
	GlobalOptions

	Output string
}

func NewCmdList() *cobra.Command {
	o := &ListOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ListOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json).")
}

func (o *ListOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Output != "" && o.Output != jsonFormat {
		return fmt.Errorf("output format must be %s", jsonFormat)
	}
	return nil
}

func (o *ListOptions) Run(ctx context.Context, cmd *cobra.Command) error {
	t := o.Tracker(nil)
	defer t.Close()

	if err := t.Hydrate(ctx); err != nil {
		return o.printError(cmd, err)
	}
	jobs := t.Registry().List()
	if o.Output == jsonFormat {
		return printJSON(cmd.OutOrStdout(), jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no jobs found")
		return nil
	}
	return printJobs(cmd.OutOrStdout(), jobs)
}

type ResultsOptions struct {
	GlobalOptions
}

func NewCmdResults() *cobra.Command {
	o := &ResultsOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "results JOB_ID",
		Short: "Fetch and render the results of a completed job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), cmd, args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *ResultsOptions) Run(ctx context.Context, cmd *cobra.Command, args []string) error {
	t := o.Tracker(nil)
	defer t.Close()

	job, err := t.Lookup(ctx, args[0])
	if err != nil {
		return o.printError(cmd, err)
	}
	res, err := t.Resolve(ctx, job.ID)
	if err != nil {
		return o.printError(cmd, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), o.Renderer().Result(res))
	return nil
}

func printJobs(out io.Writer, jobs []tracker.Job) error {
	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tSTATUS\tPROGRESS\tCREATED")
	for _, j := range jobs {
		progress := "-"
		if j.Progress != nil && j.Progress.Total > 0 {
			progress = fmt.Sprintf("%d/%d", j.Progress.Processed, j.Progress.Total)
		}
		created := "-"
		if !j.CreatedAt.IsZero() {
			created = j.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", j.ID, j.Name, j.Kind, j.Status, progress, created)
		if j.Error != "" {
			fmt.Fprintf(w, "\terror: %s\t\t\t\t\n", j.Error)
		}
	}
	return w.Flush()
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
