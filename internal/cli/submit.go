package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/tracker"
)

type SubmitOptions struct {
	GlobalOptions

	Kind           string
	Name           string
	Persona        string
	Namespace      string
	TransformStyle string
	SourceID       string
	Params         map[string]string
	Wait           bool
}

func DefaultSubmitOptions() *SubmitOptions {
	return &SubmitOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Params:        map[string]string{},
	}
}

func NewCmdSubmit() *cobra.Command {
	o := DefaultSubmitOptions()
	cmd := &cobra.Command{
		Use:   "submit [FILE]",
		Short: "Submit a text transformation job.",
		Long: "Submit FILE (or stdin) as a new job. The text is checked against the tier limit before " +
			"anything is sent to the backend.",
		Args: cobra.MaximumNArgs(1),
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

func (o *SubmitOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	kinds := make([]string, 0, len(jobapi.Kinds))
	for _, k := range jobapi.Kinds {
		kinds = append(kinds, string(k))
	}
	fs.StringVarP(&o.Kind, "kind", "k", o.Kind, fmt.Sprintf("Job type. One of: (%s).", strings.Join(kinds, ", ")))
	fs.StringVar(&o.Name, "name", o.Name, "Job name (default: job type and current time)")
	fs.StringVar(&o.Persona, "persona", o.Persona, "Persona for persona_transform")
	fs.StringVar(&o.Namespace, "namespace", o.Namespace, "Persona namespace for persona_transform")
	fs.StringVar(&o.TransformStyle, "transform-style", o.TransformStyle, "Optional writing style for persona_transform")
	fs.StringVar(&o.SourceID, "source-id", o.SourceID, "Reuse an already uploaded source instead of uploading the text again")
	fs.StringToStringVarP(&o.Params, "param", "p", o.Params, "Additional job configuration as key=value")
	fs.BoolVarP(&o.Wait, "wait", "w", o.Wait, "Wait for the job to finish and print the result")
}

func (o *SubmitOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if !jobapi.Kind(o.Kind).Valid() {
		return fmt.Errorf("--kind must be one of the known job types, got %q", o.Kind)
	}
	return nil
}

func (o *SubmitOptions) request(text string) tracker.Request {
	params := make(map[string]any, len(o.Params)+4)
	for k, v := range o.Params {
		params[k] = v
	}
	set := func(key, value string) {
		if value != "" {
			params[key] = value
		}
	}
	set(tracker.ParamName, o.Name)
	set(tracker.ParamPersona, o.Persona)
	set(tracker.ParamNamespace, o.Namespace)
	set(tracker.ParamStyle, o.TransformStyle)
	return tracker.Request{
		SourceText: text,
		SourceID:   o.SourceID,
		Kind:       jobapi.Kind(o.Kind),
		Parameters: params,
	}
}

func (o *SubmitOptions) Run(ctx context.Context, cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	t := o.Tracker(nil)
	defer t.Close()

	job, err := t.Submit(ctx, o.request(string(data)))
	if err != nil {
		var be *tracker.BackendError
		if errors.As(err, &be) && be.SourceID != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "source %s was uploaded; retry with --source-id %s\n", be.SourceID, be.SourceID)
		}
		return o.printError(cmd, err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "submitted job %s (%s, %s)\n", job.ID, job.Kind, job.Name)
	if !o.Wait {
		t.Poller().Cancel()
		return nil
	}

	return waitAndRender(ctx, cmd, &o.GlobalOptions, t)
}

// waitAndRender はアクティブなジョブのポーリング終了を待ち、結果かエラーを出力します。
func waitAndRender(ctx context.Context, cmd *cobra.Command, o *GlobalOptions, t *tracker.Tracker) error {
	snap, err := t.Poller().Wait(ctx)
	if err != nil {
		return err
	}
	if snap.Err != nil {
		return o.printError(cmd, snap.Err)
	}
	if snap.State != tracker.StateResolved {
		return fmt.Errorf("polling stopped: %s", snap.State)
	}
	if snap.Job.Status == jobapi.StatusFailed {
		return o.printError(cmd, fmt.Errorf("job %s failed: %s", snap.Job.ID, snap.Job.Error))
	}

	res, err := t.Resolve(ctx, snap.Job.ID)
	if err != nil {
		return o.printError(cmd, err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), o.Renderer().Result(res))
	return nil
}
