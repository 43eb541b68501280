package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/transform"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(f.tasks)), Queue: queueName}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type mapSources map[string]string

func (m mapSources) Load(ctx context.Context, id string) (string, error) {
	text, ok := m[id]
	if !ok {
		return "", errors.New("source not found")
	}
	return text, nil
}

type engineFunc func(ctx context.Context, in transform.Input) (any, error)

func (f engineFunc) Run(ctx context.Context, in transform.Input) (any, error) { return f(ctx, in) }

// flakyResultWrite は結果を書き込むトランザクションを1回だけ失敗させます。
// committed が true の場合は書き込み自体は成功させ、応答だけを失わせます。
type flakyResultWrite struct {
	committed bool
	always    bool
	failures  int
}

func (h *flakyResultWrite) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *flakyResultWrite) ProcessHook(next redis.ProcessHook) redis.ProcessHook { return next }

func (h *flakyResultWrite) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		if !writesResult(cmds) || (h.failures > 0 && !h.always) {
			return next(ctx, cmds)
		}
		h.failures++
		if h.committed {
			if err := next(ctx, cmds); err != nil {
				return err
			}
		}
		return errors.New("read tcp: i/o timeout")
	}
}

func writesResult(cmds []redis.Cmder) bool {
	for _, cmd := range cmds {
		if cmd.Name() == "rpush" {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T, engine transform.Engine, sources SourceReader) (*Manager, *fakeEnqueuer) {
	t.Helper()
	store, _, _ := newTestStore(t, time.Hour)
	enq := &fakeEnqueuer{}
	return &Manager{
		client:  enq,
		store:   store,
		engine:  engine,
		sources: sources,
		logger:  zap.NewNop(),
	}, enq
}

func detectEngine() transform.Engine {
	return transform.NewService(nil, "", nil)
}

func TestManager_SubmitEnqueuesPendingJob(t *testing.T) {
	m, enq := newTestManager(t, detectEngine(), mapSources{})
	ctx := context.Background()

	record, err := m.Submit(ctx, jobapi.CreateJobRequest{
		Name:      "essay",
		JobType:   jobapi.KindMadhyamakaDetect,
		SourceIDs: []string{"s1", "s2"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, record.JobID)
	assert.Equal(t, jobapi.StatusPending, record.Status)

	require.Len(t, enq.tasks, 1)
	assert.Equal(t, taskTypeText, enq.tasks[0].Type())
	var payload TaskPayload
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &payload))
	assert.Equal(t, record.JobID, payload.JobID)

	created := record.ToCreated()
	assert.Equal(t, 2, created.TotalItems)
}

func TestManager_SubmitQueueFailureMarksJobFailed(t *testing.T) {
	m, enq := newTestManager(t, detectEngine(), mapSources{})
	enq.err = errors.New("redis: connection refused")

	_, err := m.Submit(context.Background(), jobapi.CreateJobRequest{
		JobType:   jobapi.KindMadhyamakaDetect,
		SourceIDs: []string{"s1"},
	})
	require.Error(t, err)

	records, _, err := m.ListRecords(context.Background(), 1, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, jobapi.StatusFailed, records[0].Status)
	assert.Equal(t, "QUEUE_UNAVAILABLE", records[0].Error.Code)
}

func TestManager_ProcessCompletesJob(t *testing.T) {
	m, enq := newTestManager(t, detectEngine(), mapSources{
		"s1": "It is eternal.",
		"s2": "Nothing matters.",
	})
	ctx := context.Background()

	record, err := m.Submit(ctx, jobapi.CreateJobRequest{
		JobType:   jobapi.KindMadhyamakaDetect,
		SourceIDs: []string{"s1", "s2"},
	})
	require.NoError(t, err)
	require.NoError(t, m.handleTextTask(ctx, enq.tasks[0]))

	got, err := m.GetRecord(ctx, record.JobID)
	require.NoError(t, err)
	st := got.ToStatus()
	assert.Equal(t, jobapi.StatusCompleted, st.Status)
	assert.Equal(t, 100.0, st.Progress.ProgressPercentage)

	items, err := m.Results(ctx, record.JobID)
	require.NoError(t, err)
	require.Len(t, items, 2)

	var first jobapi.MadhyamakaDetectItem
	require.NoError(t, json.Unmarshal(items[0], &first))
	assert.Equal(t, "s1", first.SourceID)
	assert.Equal(t, transform.TendencyEternalism, first.DominantTendency)

	// 完了済みのジョブは再実行しても変わらない
	require.NoError(t, m.process(ctx, record.JobID))
	items, _ = m.Results(ctx, record.JobID)
	assert.Len(t, items, 2)
}

func TestManager_EngineErrorFailsJob(t *testing.T) {
	calls := 0
	engine := engineFunc(func(ctx context.Context, in transform.Input) (any, error) {
		calls++
		if in.SourceID == "s2" {
			return nil, &transform.Error{Code: transform.CodeEngineFailed, Message: "language model request failed"}
		}
		return jobapi.PerspectivesItem{SourceID: in.SourceID}, nil
	})
	m, enq := newTestManager(t, engine, mapSources{"s1": "a", "s2": "b", "s3": "c"})
	ctx := context.Background()

	record, err := m.Submit(ctx, jobapi.CreateJobRequest{
		JobType:   jobapi.KindPerspectives,
		SourceIDs: []string{"s1", "s2", "s3"},
	})
	require.NoError(t, err)
	require.NoError(t, m.handleTextTask(ctx, enq.tasks[0]))
	assert.Equal(t, 2, calls)

	got, _ := m.GetRecord(ctx, record.JobID)
	assert.Equal(t, jobapi.StatusFailed, got.Status)
	assert.Equal(t, 1, got.ProcessedItems)
	assert.Equal(t, transform.CodeEngineFailed, got.Error.Code)
	assert.Equal(t, "language model request failed", got.ToStatus().Error)
}

func TestManager_MissingSourceFailsJob(t *testing.T) {
	m, enq := newTestManager(t, detectEngine(), mapSources{})
	ctx := context.Background()

	record, err := m.Submit(ctx, jobapi.CreateJobRequest{
		JobType:   jobapi.KindMadhyamakaDetect,
		SourceIDs: []string{"gone"},
	})
	require.NoError(t, err)
	require.NoError(t, m.handleTextTask(ctx, enq.tasks[0]))

	got, _ := m.GetRecord(ctx, record.JobID)
	assert.Equal(t, jobapi.StatusFailed, got.Status)
	assert.Equal(t, "INTERNAL_ERROR", got.Error.Code)
	assert.Contains(t, got.Error.Message, "failed to load source gone")
}

func TestManager_BadPayloadSkipsRetry(t *testing.T) {
	m, _ := newTestManager(t, detectEngine(), mapSources{})
	err := m.handleTextTask(context.Background(), asynq.NewTask(taskTypeText, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestManager_RetryDoesNotDuplicateResults(t *testing.T) {
	for _, committed := range []bool{true, false} {
		t.Run(fmt.Sprintf("committed=%t", committed), func(t *testing.T) {
			m, enq := newTestManager(t, detectEngine(), mapSources{"s1": "It is eternal.", "s2": "Nothing matters."})
			hook := &flakyResultWrite{committed: committed}
			m.store.rdb.AddHook(hook)
			ctx := context.Background()

			record, err := m.Submit(ctx, jobapi.CreateJobRequest{
				JobType:   jobapi.KindMadhyamakaDetect,
				SourceIDs: []string{"s1", "s2"},
			})
			require.NoError(t, err)

			require.Error(t, m.handleTextTask(ctx, enq.tasks[0]))
			got, _ := m.GetRecord(ctx, record.JobID)
			assert.Equal(t, jobapi.StatusRunning, got.Status)

			require.NoError(t, m.handleTextTask(ctx, enq.tasks[0]))
			assert.Equal(t, 1, hook.failures)

			got, _ = m.GetRecord(ctx, record.JobID)
			assert.Equal(t, jobapi.StatusCompleted, got.Status)
			assert.Equal(t, 2, got.TotalItems())

			items, err := m.Results(ctx, record.JobID)
			require.NoError(t, err)
			require.Len(t, items, 2)
			var first, second jobapi.MadhyamakaDetectItem
			require.NoError(t, json.Unmarshal(items[0], &first))
			require.NoError(t, json.Unmarshal(items[1], &second))
			assert.Equal(t, "s1", first.SourceID)
			assert.Equal(t, "s2", second.SourceID)
		})
	}
}

func TestManager_LastAttemptStoreErrorFailsJob(t *testing.T) {
	m, enq := newTestManager(t, detectEngine(), mapSources{"s1": "It is eternal."})
	m.store.rdb.AddHook(&flakyResultWrite{always: true})
	m.isLastAttempt = func(context.Context) bool { return true }
	ctx := context.Background()

	record, err := m.Submit(ctx, jobapi.CreateJobRequest{
		JobType:   jobapi.KindMadhyamakaDetect,
		SourceIDs: []string{"s1"},
	})
	require.NoError(t, err)
	require.NoError(t, m.handleTextTask(ctx, enq.tasks[0]))

	got, _ := m.GetRecord(ctx, record.JobID)
	assert.Equal(t, jobapi.StatusFailed, got.Status)
	assert.Equal(t, "INTERNAL_ERROR", got.Error.Code)
	assert.Contains(t, got.Error.Message, "i/o timeout")
	assert.Zero(t, got.ProcessedItems)
}

func TestManager_LastAttemptWithoutRetryInfo(t *testing.T) {
	m, _ := newTestManager(t, detectEngine(), mapSources{})
	// asynq の外で呼ばれた場合は最後の試行とみなさない
	assert.False(t, m.lastAttempt(context.Background()))
}
