// Package budget はジョブ投入前のトークン見積もりとティア上限の判定を提供します。
// 見積もりはクライアント側の事前チェック（アドミッション制御）であり、
// サーバー側でも改めて検証される前提です。
package budget

import (
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// Tier はトークン上限を決めるプラン区分です。
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

var tierLimits = map[Tier]int{
	TierFree:       4000,
	TierPremium:    32000,
	TierEnterprise: 100000,
}

// ParseTier は文字列をティアに変換します。未知の値は free になります。
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tierLimits[t]; ok {
		return t
	}
	return TierFree
}

// Limit はティアのトークン上限を返します。未知のティアは free の上限です。
func Limit(t Tier) int {
	if limit, ok := tierLimits[t]; ok {
		return limit
	}
	return tierLimits[TierFree]
}

// Estimate はテキスト1件分の見積もり結果です。保存はせず、内容が変わるたびに再計算します。
type Estimate struct {
	CharCount       int     `json:"charCount"`
	WordCount       int     `json:"wordCount"`
	EstimatedTokens int     `json:"estimatedTokens"`
	TierLimit       int     `json:"tierLimit"`
	WithinLimit     bool    `json:"withinLimit"`
	PercentUsed     float64 `json:"percentUsed"`
}

// Guard はティアを固定した見積もり器です。
type Guard struct {
	tier Tier
}

// NewGuard は Guard を作成します。
func NewGuard(tier Tier) *Guard {
	if _, ok := tierLimits[tier]; !ok {
		tier = TierFree
	}
	return &Guard{tier: tier}
}

// Tier は Guard のティアを返します。
func (g *Guard) Tier() Tier {
	return g.tier
}

// Estimate はテキストを見積もります。
func (g *Guard) Estimate(text string) Estimate {
	return EstimateText(text, g.tier)
}

// EstimateBytes はバイト列を見積もります。テキストでない内容はゼロ見積もりになります。
func (g *Guard) EstimateBytes(data []byte) Estimate {
	return EstimateBytes(data, g.tier)
}

// EstimateText は純粋関数として見積もりを計算します。
//
// 空白を正規化（連続空白を1つに、前後をトリム）した上で、
// 文字数/4 と 単語数/0.75 の大きい方に 10% の安全マージンを乗せます。
// 上限判定は推定トークン数と正規化後の文字数の両方をティア上限と比較し、
// 使用率も大きい方（拘束している側）から求めます。使用率が 100% を超えるのは上限外のときだけです。
func EstimateText(text string, tier Tier) Estimate {
	limit := Limit(tier)
	words := strings.Fields(text)
	if len(words) == 0 {
		return Estimate{TierLimit: limit, WithinLimit: true}
	}

	normalized := strings.Join(words, " ")
	chars := utf8.RuneCountInString(normalized)

	byChars := ceilDiv(chars, 4)
	byWords := ceilDiv(len(words)*4, 3) // words / 0.75
	base := max(byChars, byWords)
	tokens := ceilDiv(base*11, 10) // 10% surcharge

	return Estimate{
		CharCount:       chars,
		WordCount:       len(words),
		EstimatedTokens: tokens,
		TierLimit:       limit,
		WithinLimit:     tokens <= limit && chars <= limit,
		PercentUsed:     float64(max(tokens, chars)) / float64(limit) * 100,
	}
}

// CharBound は文字数の上限が判定を拘束しているかどうかを返します。
func (e Estimate) CharBound() bool {
	return e.CharCount > e.EstimatedTokens
}

// EstimateBytes は内容をスニッフィングし、テキストの場合のみ見積もります。
func EstimateBytes(data []byte, tier Tier) Estimate {
	if !IsText(data) {
		return Estimate{TierLimit: Limit(tier), WithinLimit: true}
	}
	return EstimateText(string(data), tier)
}

// IsText は内容がテキスト系（text/plain の派生）かどうかを判定します。
func IsText(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	_, ok := DetectText(data)
	return ok
}

// DetectText は内容の MIME タイプと、それが text/plain の派生かどうかを返します。
func DetectText(data []byte) (string, bool) {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return detected.String(), true
		}
	}
	return detected.String(), false
}

func ceilDiv(n, d int) int {
	if n <= 0 {
		return 0
	}
	return (n + d - 1) / d
}
