package jobs

import (
	"time"

	"github.com/yourusername/text-forge/internal/jobapi"
)

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record はジョブの現在状態を表します。
type Record struct {
	JobID          string         `json:"jobId"`
	Name           string         `json:"name"`
	JobType        jobapi.Kind    `json:"jobType"`
	Status         jobapi.Status  `json:"status"`
	SourceIDs      []string       `json:"sourceIds"`
	Configuration  map[string]any `json:"configuration,omitempty"`
	ProcessedItems int            `json:"processedItems"`
	Error          *ErrorInfo     `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	ExpiresAt      time.Time      `json:"expiresAt"`
}

// TotalItems は処理対象のソース数です。
func (r *Record) TotalItems() int {
	return len(r.SourceIDs)
}

// ToStatus は GET /jobs/{id} のレスポンス形式に変換します。
func (r *Record) ToStatus() jobapi.JobStatus {
	st := jobapi.JobStatus{
		ID:        r.JobID,
		Name:      r.Name,
		JobType:   r.JobType,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
	}
	if total := r.TotalItems(); total > 0 {
		st.Progress = &jobapi.Progress{
			ProcessedItems:     r.ProcessedItems,
			TotalItems:         total,
			ProgressPercentage: float64(r.ProcessedItems) / float64(total) * 100,
		}
	}
	if r.Error != nil {
		st.Error = r.Error.Message
	}
	return st
}

// ToCreated は POST /jobs のレスポンス形式に変換します。
func (r *Record) ToCreated() jobapi.JobCreated {
	return jobapi.JobCreated{
		ID:         r.JobID,
		Name:       r.Name,
		JobType:    r.JobType,
		Status:     r.Status,
		TotalItems: r.TotalItems(),
		CreatedAt:  r.CreatedAt,
	}
}
