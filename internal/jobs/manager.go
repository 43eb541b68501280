// Package jobs は非同期ジョブの保存・投入・実行を提供します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/config"
	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/logging"
	"github.com/yourusername/text-forge/internal/transform"
)

const (
	taskTypeText = "text:process"
	queueName    = "text"
)

// SourceReader はソーステキストを読み込みます。storage.Local が実装します。
type SourceReader interface {
	Load(ctx context.Context, id string) (string, error)
}

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	client  taskEnqueuer
	server  *asynq.Server
	mux     *asynq.ServeMux
	store   *Store
	engine  transform.Engine
	sources SourceReader
	logger  *zap.Logger

	isLastAttempt func(context.Context) bool
}

// TaskPayload はテキスト処理ジョブのペイロードです。
type TaskPayload struct {
	JobID string `json:"jobId"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, engine transform.Engine, sources SourceReader, store *Store, logger *zap.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if sources == nil {
		return nil, errors.New("sources is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.QueueRedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	logger = logging.OrNop(logger).Named("jobs")
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.WorkerConcurrency,
			Queues: map[string]int{
				queueName: 1,
			},
			Logger: logger.Sugar(),
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		client:  asynq.NewClient(opt),
		server:  server,
		mux:     mux,
		store:   store,
		engine:  engine,
		sources: sources,
		logger:  logger,
	}
	mux.HandleFunc(taskTypeText, manager.handleTextTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
			m.logger.Error("asynq server stopped with error", zap.Error(err))
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.server != nil {
		m.server.Shutdown()
	}
	return m.client.Close()
}

// Submit はジョブを pending として保存し、キューに投入します。
// 投入に失敗した場合、ジョブは failed として残ります。
func (m *Manager) Submit(ctx context.Context, req jobapi.CreateJobRequest) (*Record, error) {
	record := &Record{
		JobID:         uuid.NewString(),
		Name:          req.Name,
		JobType:       req.JobType,
		Status:        jobapi.StatusPending,
		SourceIDs:     req.SourceIDs,
		Configuration: req.Configuration,
	}
	if err := m.store.Create(ctx, record); err != nil {
		return nil, err
	}

	body, err := json.Marshal(&TaskPayload{JobID: record.JobID})
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(taskTypeText, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1), asynq.TaskID(record.JobID)); err != nil {
		if markErr := m.failJob(context.WithoutCancel(ctx), record.JobID, "QUEUE_UNAVAILABLE", "failed to enqueue job"); markErr != nil {
			err = fmt.Errorf("%w (marking failed also failed: %v)", err, markErr)
		}
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.logger.Info("job enqueued",
		zap.String("job_id", record.JobID),
		zap.String("job_type", string(record.JobType)),
		zap.Int("total_items", record.TotalItems()))
	return record, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

// ListRecords は新しい順にジョブ一覧を返します。
func (m *Manager) ListRecords(ctx context.Context, page, pageSize int) ([]*Record, int, error) {
	return m.store.List(ctx, page, pageSize)
}

// Results は完了したジョブの結果要素を返します。
func (m *Manager) Results(ctx context.Context, jobID string) ([]json.RawMessage, error) {
	return m.store.Results(ctx, jobID)
}

func (m *Manager) handleTextTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if payload.JobID == "" {
		return fmt.Errorf("%w: missing jobId in payload", asynq.SkipRetry)
	}
	err := m.process(ctx, payload.JobID)
	if err == nil || ctx.Err() != nil || !m.lastAttempt(ctx) {
		return err
	}
	// 最後の試行でも失敗した場合は running のまま残さず failed にする
	return m.failJobWithError(context.WithoutCancel(ctx), payload.JobID, err)
}

// lastAttempt は現在のタスク実行が最後のリトライかどうかを返します。
func (m *Manager) lastAttempt(ctx context.Context) bool {
	if m.isLastAttempt != nil {
		return m.isLastAttempt(ctx)
	}
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// process はジョブのソースを順に処理します。再実行時は処理済みのソースを飛ばします。
func (m *Manager) process(ctx context.Context, jobID string) error {
	record, err := m.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record == nil {
		m.logger.Warn("job expired before processing", zap.String("job_id", jobID))
		return nil
	}
	if record.Status.Terminal() {
		return nil
	}
	if err := m.store.MarkRunning(ctx, jobID); err != nil {
		return err
	}

	log := m.logger.With(zap.String("job_id", jobID))
	for i := record.ProcessedItems; i < len(record.SourceIDs); i++ {
		sourceID := record.SourceIDs[i]
		text, err := m.sources.Load(ctx, sourceID)
		if err != nil {
			return m.failJobWithError(ctx, jobID, fmt.Errorf("failed to load source %s: %w", sourceID, err))
		}

		item, err := m.engine.Run(ctx, transform.Input{
			JobID:         jobID,
			Kind:          record.JobType,
			SourceID:      sourceID,
			Text:          text,
			Configuration: record.Configuration,
		})
		if err != nil {
			if ctx.Err() != nil {
				// ワーカー停止時はリトライに任せる
				return err
			}
			return m.failJobWithError(ctx, jobID, err)
		}

		if err := m.store.RecordResult(ctx, jobID, i, item); err != nil {
			return err
		}
		log.Debug("source processed", zap.String("source_id", sourceID), zap.Int("processed", i+1))
	}

	if err := m.store.MarkCompleted(ctx, jobID); err != nil {
		return err
	}
	log.Info("job completed", zap.Int("items", len(record.SourceIDs)))
	return nil
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	})
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	m.logger.Warn("job failed", zap.String("job_id", jobID), zap.Error(err))
	var apiErr *transform.Error
	if errors.As(err, &apiErr) {
		return m.failJob(ctx, jobID, apiErr.Code, apiErr.Message)
	}
	return m.failJob(ctx, jobID, "INTERNAL_ERROR", err.Error())
}
