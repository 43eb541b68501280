package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/logging"
	"github.com/yourusername/text-forge/internal/tui"
)

type WatchOptions struct {
	GlobalOptions

	LogFile string
}

func NewCmdWatch() *cobra.Command {
	o := &WatchOptions{GlobalOptions: DefaultGlobalOptions()}
	cmd := &cobra.Command{
		Use:   "watch [JOB_ID]",
		Short: "Open the interactive view of recent jobs.",
		Long: "Open the interactive view of recent jobs. When JOB_ID is given it becomes the active job " +
			"and is polled until it finishes.",
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

func (o *WatchOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
	fs.StringVar(&o.LogFile, "log-file", o.LogFile, "Write logs to this file while the view is open (default: logs are discarded)")
}

func (o *WatchOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.LogFile == "" {
		return nil
	}
	f, err := os.OpenFile(o.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	return f.Close()
}

// viewLogger は画面を占有している間のロガーを返します。端末には書きません。
func (o *WatchOptions) viewLogger() *zap.Logger {
	if o.LogFile == "" {
		return zap.NewNop()
	}
	return logging.InitLog(logging.ParseLevel(o.cfg.LogLevel), o.LogFile)
}

func (o *WatchOptions) Run(ctx context.Context, cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.logger = o.viewLogger()
	defer func() { _ = o.logger.Sync() }()

	feed := tui.NewFeed()
	t := o.Tracker(feed.Observe)
	defer t.Close()

	if len(args) == 1 {
		job, err := t.Lookup(ctx, args[0])
		if err != nil {
			return o.printError(cmd, err)
		}
		t.Watch(job)
	}

	go t.SyncLoop(ctx, o.cfg.SyncInterval)
	return tui.Run(ctx, t, feed, o.Style)
}
