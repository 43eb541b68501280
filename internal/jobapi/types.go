// Package jobapi はジョブAPIのワイヤ契約（リクエスト/レスポンスの形）を定義します。
// バックエンドとクライアントの両方がこのパッケージを参照します。
package jobapi

import (
	"encoding/json"
	"time"
)

// Kind はジョブ種別（どの変換アルゴリズムと結果形状を使うか）を表します。
type Kind string

const (
	KindPersonaTransform    Kind = "persona_transform"
	KindMadhyamakaDetect    Kind = "madhyamaka_detect"
	KindMadhyamakaTransform Kind = "madhyamaka_transform"
	KindPerspectives        Kind = "perspectives"
)

// Kinds は既知のジョブ種別の一覧です。
var Kinds = []Kind{
	KindPersonaTransform,
	KindMadhyamakaDetect,
	KindMadhyamakaTransform,
	KindPerspectives,
}

// Valid は既知の種別かどうかを返します。
func (k Kind) Valid() bool {
	switch k {
	case KindPersonaTransform, KindMadhyamakaDetect, KindMadhyamakaTransform, KindPerspectives:
		return true
	default:
		return false
	}
}

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal は終端状態（completed / failed）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Rank は状態の進行度を返します。未知の状態は -1 です。
// pending < running < completed == failed の順で、状態は後退しません。
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	case StatusCompleted, StatusFailed:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo は s から next への遷移が単調（後退しない）かどうかを返します。
// 終端状態からの遷移は同じ状態への再観測のみ許可します。
func (s Status) CanAdvanceTo(next Status) bool {
	if next.Rank() < 0 {
		return false
	}
	if s.Terminal() {
		return next == s
	}
	return next.Rank() >= s.Rank()
}

// CreateJobRequest は POST /jobs のリクエストボディです。
type CreateJobRequest struct {
	Name          string         `json:"name"`
	JobType       Kind           `json:"job_type"`
	SourceIDs     []string       `json:"source_ids"`
	Configuration map[string]any `json:"configuration"`
}

// JobCreated は POST /jobs のレスポンスボディです。
type JobCreated struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	JobType    Kind      `json:"job_type"`
	Status     Status    `json:"status"`
	TotalItems int       `json:"total_items"`
	CreatedAt  time.Time `json:"created_at"`
}

// Progress はジョブの進捗です。
type Progress struct {
	ProcessedItems     int     `json:"processed_items"`
	TotalItems         int     `json:"total_items"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// JobStatus は GET /jobs/{id} のレスポンスボディです。
type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	JobType   Kind      `json:"job_type,omitempty"`
	Status    Status    `json:"status"`
	Progress  *Progress `json:"progress"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// JobResults は GET /jobs/{id}/results のレスポンスボディです。
// results の各要素の形は job_type によって決まります。
type JobResults struct {
	JobName string            `json:"job_name"`
	JobType string            `json:"job_type"`
	Results []json.RawMessage `json:"results"`
}

// JobList は GET /jobs のレスポンスボディです。
type JobList struct {
	Jobs     []JobStatus `json:"jobs"`
	Total    int         `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
}

// CreateSourceRequest は POST /sources のリクエストボディです。
type CreateSourceRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Source は POST /sources のレスポンスボディです。
type Source struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CharCount   int    `json:"char_count"`
	ContentType string `json:"content_type"`
}

// ErrorBody はエラーレスポンスのボディです。
type ErrorBody struct {
	Detail string `json:"detail"`
}
