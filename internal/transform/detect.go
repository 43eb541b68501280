package transform

import (
	"math"
	"regexp"
	"strings"

	"github.com/yourusername/text-forge/internal/jobapi"
)

const (
	ExtremeEternalism = "eternalism"
	ExtremeNihilism   = "nihilism"

	TendencyEternalism = "eternalism"
	TendencyNihilism   = "nihilism"
	TendencyMiddlePath = "middle_path"
	TendencyMixed      = "mixed"
)

type marker struct {
	extreme     string
	pattern     *regexp.Regexp
	confidence  float64
	explanation string
}

var extremeMarkers = []marker{
	{
		extreme:     ExtremeEternalism,
		pattern:     regexp.MustCompile(`(?i)\b(forever|eternal(?:ly)?|permanent(?:ly)?|unchanging|never changes?)\b`),
		confidence:  0.9,
		explanation: "treats something as fixed and unchanging",
	},
	{
		extreme:     ExtremeEternalism,
		pattern:     regexp.MustCompile(`(?i)\b(true self|inherent(?:ly)?|essential nature|intrinsic(?:ally)?)\b`),
		confidence:  0.8,
		explanation: "assumes an independent essence",
	},
	{
		extreme:     ExtremeEternalism,
		pattern:     regexp.MustCompile(`(?i)\b(always|absolutely|must always)\b`),
		confidence:  0.6,
		explanation: "absolute language",
	},
	{
		extreme:     ExtremeNihilism,
		pattern:     regexp.MustCompile(`(?i)\b(nothing matters|meaningless|pointless|no point)\b`),
		confidence:  0.9,
		explanation: "denies meaning or value altogether",
	},
	{
		extreme:     ExtremeNihilism,
		pattern:     regexp.MustCompile(`(?i)\b(nothing (?:is )?real|nothing exists|just an illusion|does ?n[o']t exist)\b`),
		confidence:  0.8,
		explanation: "denies conventional existence",
	},
	{
		extreme:     ExtremeNihilism,
		pattern:     regexp.MustCompile(`(?i)\b(never matters?|useless|futile)\b`),
		confidence:  0.6,
		explanation: "dismissive language",
	},
}

var middlePathMarker = regexp.MustCompile(`(?i)\b(depends? on|dependent(?:ly)?|interdependen\w*|arises?|impermanen\w*|conditions?|in relation to|relational(?:ly)?|neither\b.{1,40}\bnor)\b`)

// Detect は永遠主義・虚無主義の表現を正規表現の辞書で検出し、スコアを付けます。
// 外部サービスを使わないため、同じ入力に対して常に同じ結果になります。
func Detect(sourceID, text string) jobapi.MadhyamakaDetectItem {
	item := jobapi.MadhyamakaDetectItem{
		SourceID:   sourceID,
		Detections: []jobapi.Detection{},
	}

	var eternal, nihil float64
	seen := make(map[string]bool)
	for _, m := range extremeMarkers {
		for _, phrase := range m.pattern.FindAllString(text, -1) {
			key := m.extreme + "|" + strings.ToLower(phrase)
			if seen[key] {
				continue
			}
			seen[key] = true
			item.Detections = append(item.Detections, jobapi.Detection{
				Extreme:     m.extreme,
				Phrase:      phrase,
				Explanation: m.explanation,
				Confidence:  m.confidence,
			})
			if m.extreme == ExtremeEternalism {
				eternal += m.confidence
			} else {
				nihil += m.confidence
			}
		}
	}
	middle := float64(len(middlePathMarker.FindAllString(text, -1)))

	total := eternal + nihil + middle
	if total == 0 {
		item.MiddlePathScore = 1
		item.DominantTendency = TendencyMiddlePath
		return item
	}
	item.EternalismScore = round2(eternal / total)
	item.NihilismScore = round2(nihil / total)
	item.MiddlePathScore = round2(middle / total)
	item.DominantTendency = dominant(eternal, nihil, middle)
	return item
}

func dominant(eternal, nihil, middle float64) string {
	switch {
	case eternal > nihil && eternal > middle:
		return TendencyEternalism
	case nihil > eternal && nihil > middle:
		return TendencyNihilism
	case middle > eternal && middle > nihil:
		return TendencyMiddlePath
	default:
		return TendencyMixed
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
