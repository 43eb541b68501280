// Package render は解決済みのジョブ結果と各種エラーを端末向けに整形します。
package render

import (
	"fmt"
	"strings"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/tracker"
)

const barWidth = 20

// Markdown は結果をジョブ種別ごとの Markdown に変換します。
func Markdown(res *tracker.Result) string {
	var b strings.Builder
	title := res.Name
	if title == "" {
		title = res.JobID
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "_%s · %d item(s)_\n\n", res.Kind, len(res.Items))

	if len(res.Items) == 0 {
		b.WriteString("No results were produced for this job.\n")
		return b.String()
	}

	for i, item := range res.Items {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		writeItem(&b, i+1, item)
	}
	return b.String()
}

func writeItem(b *strings.Builder, n int, item tracker.Item) {
	switch it := item.(type) {
	case tracker.PersonaTransformItem:
		fmt.Fprintf(b, "## %d. %s (%s)\n\n", n, it.Persona, it.Namespace)
		if it.Style != "" {
			fmt.Fprintf(b, "Style: **%s**\n\n", it.Style)
		}
		b.WriteString(it.Content)
		b.WriteString("\n")

	case tracker.MadhyamakaDetectItem:
		fmt.Fprintf(b, "## %d. Source %s\n\n", n, it.SourceID)
		fmt.Fprintf(b, "| Tendency | Score | |\n|---|---|---|\n")
		fmt.Fprintf(b, "| Eternalism | %.2f | `%s` |\n", it.EternalismScore, scoreBar(it.EternalismScore))
		fmt.Fprintf(b, "| Nihilism | %.2f | `%s` |\n", it.NihilismScore, scoreBar(it.NihilismScore))
		fmt.Fprintf(b, "| Middle path | %.2f | `%s` |\n\n", it.MiddlePathScore, scoreBar(it.MiddlePathScore))
		if it.DominantTendency != "" {
			fmt.Fprintf(b, "Dominant tendency: **%s**\n\n", it.DominantTendency)
		}
		if len(it.Detections) == 0 {
			b.WriteString("No extreme views detected.\n")
			return
		}
		for _, d := range it.Detections {
			fmt.Fprintf(b, "- **%s** (%.0f%%): \"%s\"", d.Extreme, d.Confidence*100, d.Phrase)
			if d.Explanation != "" {
				fmt.Fprintf(b, " %s", d.Explanation)
			}
			b.WriteString("\n")
		}

	case tracker.MadhyamakaTransformItem:
		fmt.Fprintf(b, "## %d. Source %s\n\n", n, it.SourceID)
		b.WriteString(it.Content)
		b.WriteString("\n")
		if len(it.Alternatives) > 0 {
			b.WriteString("\n### Alternatives\n\n")
			for _, alt := range it.Alternatives {
				fmt.Fprintf(b, "- %s\n", alt)
			}
		}

	case tracker.PerspectivesItem:
		fmt.Fprintf(b, "## %d. Source %s\n\n", n, it.SourceID)
		for _, p := range it.Perspectives {
			fmt.Fprintf(b, "### %s\n\n%s\n\n", p.Name, p.Content)
		}

	default:
		fmt.Fprintf(b, "## %d. Unsupported result type\n\n", n)
		fmt.Fprintf(b, "This client cannot display %s results.\n", kindOf(item))
	}
}

func kindOf(item tracker.Item) jobapi.Kind {
	if item == nil {
		return "unknown"
	}
	return item.Kind()
}

// scoreBar は 0..1 のスコアを固定幅のバーにします。
func scoreBar(v float64) string {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v*barWidth + 0.5)
	return strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
}
