package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/yourusername/text-forge/internal/budget"
)

const (
	jsonFormat = "json"
)

type EstimateOptions struct {
	GlobalOptions

	Output string
}

func DefaultEstimateOptions() *EstimateOptions {
	return &EstimateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdEstimate() *cobra.Command {
	o := DefaultEstimateOptions()
	cmd := &cobra.Command{
		Use:   "estimate [FILE]",
		Short: "Estimate the token usage of a text against the tier limit.",
		Long:  "Estimate the token usage of FILE (or stdin when FILE is omitted or \"-\") against the tier limit.",
		Args:  cobra.MaximumNArgs(1),
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

func (o *EstimateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, "Output format. One of: (json).")
}

func (o *EstimateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Output != "" && o.Output != jsonFormat {
		return fmt.Errorf("output format must be %s", jsonFormat)
	}
	return nil
}

func (o *EstimateOptions) Run(ctx context.Context, cmd *cobra.Command, args []string) error {
	data, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	est := budget.EstimateBytes(data, budget.ParseTier(o.cfg.Tier))
	out := cmd.OutOrStdout()
	if o.Output == jsonFormat {
		return printJSON(out, est)
	}

	if len(data) > 0 && !budget.IsText(data) {
		fmt.Fprintln(out, "input is not plain text, nothing to estimate")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 8, 1, '\t', 0)
	fmt.Fprintf(w, "TIER\t%s\n", budget.ParseTier(o.cfg.Tier))
	fmt.Fprintf(w, "CHARACTERS\t%d\n", est.CharCount)
	fmt.Fprintf(w, "WORDS\t%d\n", est.WordCount)
	fmt.Fprintf(w, "ESTIMATED TOKENS\t%d\n", est.EstimatedTokens)
	fmt.Fprintf(w, "LIMIT\t%d\n", est.TierLimit)
	fmt.Fprintf(w, "USED\t%.1f%%\n", est.PercentUsed)
	fmt.Fprintf(w, "WITHIN LIMIT\t%t\n", est.WithinLimit)
	return w.Flush()
}

// readInput はファイル、または引数が無いか "-" の場合は標準入力を読みます。
func readInput(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", args[0], err)
	}
	return data, nil
}
