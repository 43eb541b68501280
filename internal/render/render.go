package render

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/yourusername/text-forge/internal/tracker"
)

const defaultWidth = 80

var (
	errorTitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff71ce")).Bold(true)
	warnTitleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffd166")).Bold(true)
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#9ca3d8"))
	errorPanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#ff71ce")).
			Padding(0, 1)
)

// Renderer は結果を glamour で描画します。
type Renderer struct {
	width int
	style string
}

// Option は Renderer の設定です。
type Option func(*Renderer)

// WithStyle は glamour の標準スタイル名（dark, light, notty など）を指定します。
func WithStyle(style string) Option {
	return func(r *Renderer) { r.style = style }
}

// New は Renderer を作成します。
func New(width int, opts ...Option) *Renderer {
	if width <= 0 {
		width = defaultWidth
	}
	r := &Renderer{width: width, style: "dark"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Width は折り返し幅を返します。
func (r *Renderer) Width() int { return r.width }

// Result は結果を描画します。glamour が失敗した場合は Markdown をそのまま返します。
func (r *Renderer) Result(res *tracker.Result) string {
	if res == nil {
		return ""
	}
	md := Markdown(res)
	renderer, err := glamour.NewTermRenderer(
		glamour.WithWordWrap(r.width),
		glamour.WithStandardStyle(r.style),
	)
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// Error はエラーを枠付きのパネルとして描画します。
func (r *Renderer) Error(err error) string {
	if err == nil {
		return ""
	}
	title, hint := Describe(err)
	style := errorTitleStyle
	var timeoutErr *tracker.TimeoutError
	if errors.As(err, &timeoutErr) {
		style = warnTitleStyle
	}

	lines := []string{style.Render(title), err.Error()}
	if hint != "" {
		lines = append(lines, hintStyle.Render(hint))
	}
	return errorPanelStyle.Width(r.width - 2).Render(strings.Join(lines, "\n"))
}

// Describe はエラーの見出しと対処のヒントを返します。
func Describe(err error) (title, hint string) {
	var (
		validationErr  *tracker.ValidationError
		timeoutErr     *tracker.TimeoutError
		backendErr     *tracker.BackendError
		notReadyErr    *tracker.NotReadyError
		unsupportedErr *tracker.UnsupportedKindError
	)
	switch {
	case errors.As(err, &validationErr):
		return "Invalid request", "Edit the input and submit again."
	case errors.As(err, &timeoutErr):
		return "Polling timed out", "The job may still be processing. Check it again later."
	case errors.As(err, &unsupportedErr):
		return "Unsupported result type", "The backend returned a job type this client does not know. Update the client."
	case errors.As(err, &notReadyErr):
		return "Results not ready", "Wait until the job has completed."
	case errors.As(err, &backendErr):
		if backendErr.StatusCode != 0 {
			title = fmt.Sprintf("Backend error (%d %s)", backendErr.StatusCode, http.StatusText(backendErr.StatusCode))
		} else {
			title = "Backend unreachable"
		}
		return title, "Retry the last action once the backend is available."
	default:
		return "Error", ""
	}
}
