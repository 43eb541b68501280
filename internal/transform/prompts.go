package transform

import (
	"fmt"
	"strings"

	"github.com/yourusername/text-forge/internal/jobapi"
)

var defaultPerspectives = []string{"Skeptic", "Compassionate", "Pragmatist"}

func personaPrompt(persona, namespace, style, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Rewrite the text below in the voice of %q from the %q tradition.\n", persona, namespace)
	if style != "" {
		fmt.Fprintf(&b, "Use a %s style.\n", style)
	}
	b.WriteString("Keep the meaning intact. Reply with the rewritten text only.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

func madhyamakaPrompt(text string, detected jobapi.MadhyamakaDetectItem, alternatives int) string {
	var b strings.Builder
	b.WriteString("Rewrite the text below so that it follows the middle way: avoid both eternalism ")
	b.WriteString("(treating things as fixed, permanent or self-existing) and nihilism (denying meaning or existence).\n")
	if len(detected.Detections) > 0 {
		b.WriteString("Phrases that lean toward an extreme:\n")
		for _, d := range detected.Detections {
			fmt.Fprintf(&b, "- %q (%s)\n", d.Phrase, d.Extreme)
		}
	}
	fmt.Fprintf(&b, "Respond with JSON: {\"content\": string, \"alternatives\": [string]} with at most %d alternatives.\n\n", alternatives)
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}

func perspectivesPrompt(text string, lenses []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe the text below from each of these perspectives: %s.\n", strings.Join(lenses, ", "))
	b.WriteString("Respond with JSON: {\"perspectives\": [{\"name\": string, \"content\": string}]}, one entry per perspective in the given order.\n\n")
	b.WriteString("Text:\n")
	b.WriteString(text)
	return b.String()
}
