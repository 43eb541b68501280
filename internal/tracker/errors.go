package tracker

import (
	"fmt"
	"time"

	"github.com/yourusername/text-forge/internal/jobapi"
)

// ValidationError は投入前の検証エラーです。入力を直せば回復できます。
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// BackendError は通信またはバックエンド側で失敗したことを表します。
// StatusCode と Detail は HTTP エラーの場合のみ設定されます。
// SourceID はソースの登録後にジョブ作成が失敗した場合に設定され、
// Request.SourceID に渡せば再登録せずに投入をやり直せます。
type BackendError struct {
	Op         string
	StatusCode int
	Detail     string
	SourceID   string
	Err        error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// TimeoutError はポーリングが壁時計の上限を超えたことを表します。
// バックエンドではまだ処理中の可能性があります。
type TimeoutError struct {
	JobID   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("job %s timed out after %s (it may still be processing)", e.JobID, e.Elapsed.Round(time.Second))
}

// NotReadyError は終端前（または失敗）のジョブに対して結果を要求したことを表します。
type NotReadyError struct {
	JobID  string
	Status jobapi.Status
}

func (e *NotReadyError) Error() string {
	if e.Status == "" {
		return fmt.Sprintf("job %s is not tracked", e.JobID)
	}
	return fmt.Sprintf("job %s is not ready: status is %s", e.JobID, e.Status)
}

// UnsupportedKindError は結果のタグが既知のジョブ種別でないことを表します。
type UnsupportedKindError struct {
	Kind string
}

func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("unsupported result type: %q", e.Kind)
}
