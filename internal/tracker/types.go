// Package tracker はジョブのアドミッション、投入、ポーリング、直近ジョブの管理、
// 結果の取得を行うクライアント側のオーケストレーターです。
package tracker

import (
	"context"
	"time"

	"github.com/yourusername/text-forge/internal/jobapi"
)

// Request は投入前のジョブ要求です。
// SourceID が設定されている場合は登録済みのソースを使い、アップロードを省きます。
type Request struct {
	SourceText string
	SourceID   string
	Kind       jobapi.Kind
	Parameters map[string]any
}

// Progress は処理済み件数と総件数です。
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// Percent は進捗率（0-100）を返します。
func (p *Progress) Percent() float64 {
	if p == nil || p.Total <= 0 {
		return 0
	}
	pct := float64(p.Processed) / float64(p.Total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Job はバックエンドが所有するジョブの読み取り専用コピーです。
type Job struct {
	ID        string        `json:"id"`
	Kind      jobapi.Kind   `json:"kind"`
	Status    jobapi.Status `json:"status"`
	Progress  *Progress     `json:"progress,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Name      string        `json:"name"`
	Error     string        `json:"error,omitempty"`
}

func (j Job) clone() Job {
	if j.Progress != nil {
		p := *j.Progress
		j.Progress = &p
	}
	return j
}

// apply はポーリングで得た状態をコピーに反映します。状態が後退する場合は false を返します。
func (j *Job) apply(st *jobapi.JobStatus) bool {
	if !j.Status.CanAdvanceTo(st.Status) {
		return false
	}
	j.Status = st.Status
	if st.Progress != nil {
		j.Progress = &Progress{
			Processed: st.Progress.ProcessedItems,
			Total:     st.Progress.TotalItems,
		}
	}
	if st.Error != "" {
		j.Error = st.Error
	}
	return true
}

// JobFromStatus は GET /jobs/{id} の応答から Job を作ります。
func JobFromStatus(st jobapi.JobStatus) Job {
	job := Job{
		ID:        st.ID,
		Kind:      st.JobType,
		Status:    st.Status,
		CreatedAt: st.CreatedAt,
		Name:      st.Name,
		Error:     st.Error,
	}
	if st.Progress != nil {
		job.Progress = &Progress{
			Processed: st.Progress.ProcessedItems,
			Total:     st.Progress.TotalItems,
		}
	}
	return job
}

// Backend はトラッカーが利用するジョブAPIです。backend.Client が実装します。
type Backend interface {
	CreateSource(ctx context.Context, req jobapi.CreateSourceRequest) (*jobapi.Source, error)
	CreateJob(ctx context.Context, req jobapi.CreateJobRequest) (*jobapi.JobCreated, error)
	StatusFetcher
	ResultFetcher
	ListJobs(ctx context.Context, page, pageSize int) (*jobapi.JobList, error)
}

// StatusFetcher はジョブ状態の取得だけを行います（ポーラー用）。
type StatusFetcher interface {
	GetJob(ctx context.Context, id string) (*jobapi.JobStatus, error)
}

// ResultFetcher は結果の取得だけを行います（リゾルバー用）。
type ResultFetcher interface {
	GetResults(ctx context.Context, id string) (*jobapi.JobResults, error)
}
