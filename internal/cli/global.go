// Package cli は textforge コマンドのサブコマンドを提供します。
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/backend"
	"github.com/yourusername/text-forge/internal/budget"
	"github.com/yourusername/text-forge/internal/config"
	"github.com/yourusername/text-forge/internal/logging"
	"github.com/yourusername/text-forge/internal/render"
	"github.com/yourusername/text-forge/internal/tracker"
)

const requestTimeout = 30 * time.Second

// GlobalOptions は全サブコマンド共通のオプションです。
// 未指定のフラグは環境変数（.env.local を含む）の値を使います。
type GlobalOptions struct {
	APIURL string
	APIKey string
	Tier   string
	Style  string

	cfg    *config.ClientConfig
	logger *zap.Logger
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Style: "auto",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVarP(&o.APIURL, "api-url", "u", o.APIURL, "Base URL of the textforge API (default $TEXTFORGE_API_URL)")
	fs.StringVar(&o.APIKey, "api-key", o.APIKey, "API key sent as a bearer token (default $TEXTFORGE_API_KEY)")
	fs.StringVar(&o.Tier, "tier", o.Tier, "Subscription tier used for the token limit: free, premium or enterprise (default $TEXTFORGE_TIER)")
	fs.StringVar(&o.Style, "style", o.Style, "Result rendering style: auto, dark, light or notty")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return fmt.Errorf("loading client config: %w", err)
	}
	if o.APIURL != "" {
		cfg.APIURL = o.APIURL
	}
	if o.APIKey != "" {
		cfg.APIKey = o.APIKey
	}
	if o.Tier != "" {
		cfg.Tier = o.Tier
	}
	o.cfg = cfg
	o.logger = logging.InitLog(logging.ParseLevel(cfg.LogLevel), "stderr")
	if o.Style == "auto" {
		o.Style = detectStyle(cmd.OutOrStdout())
	}
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	switch o.Style {
	case "dark", "light", "notty", "ascii", "dracula", "pink", "tokyo-night":
		return nil
	default:
		return fmt.Errorf("unknown style %q", o.Style)
	}
}

// Client はバックエンドのクライアントを作成します。
func (o *GlobalOptions) Client() *backend.Client {
	return backend.NewClient(o.cfg.APIURL, o.cfg.APIKey, requestTimeout)
}

// Tracker はクライアント設定に従ってトラッカーを作成します。
func (o *GlobalOptions) Tracker(observer tracker.Observer) *tracker.Tracker {
	return tracker.New(o.Client(), tracker.Config{
		Tier:             budget.ParseTier(o.cfg.Tier),
		PollInterval:     o.cfg.PollInterval,
		PollTimeout:      o.cfg.PollTimeout,
		FetchRetries:     o.cfg.FetchRetries,
		RegistryCapacity: o.cfg.RegistryCapacity,
		RegistryDisplay:  o.cfg.RegistryDisplay,
		Logger:           o.logger,
	}, observer)
}

// Renderer は結果とエラーの整形に使うレンダラーを作成します。
func (o *GlobalOptions) Renderer() *render.Renderer {
	return render.New(80, render.WithStyle(o.Style))
}

func detectStyle(w io.Writer) string {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return "dark"
	}
	return "notty"
}

// reportedError は既に利用者へ表示済みのエラーです。
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// Reported はエラーが既にパネルとして表示済みかどうかを返します。
func Reported(err error) bool {
	var r *reportedError
	return errors.As(err, &r)
}

// printError はエラーをパネル形式で出力します。
func (o *GlobalOptions) printError(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), o.Renderer().Error(err))
	return &reportedError{err: err}
}
