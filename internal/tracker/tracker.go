package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/budget"
	"github.com/yourusername/text-forge/internal/logging"
)

// Config は Tracker の設定です。
type Config struct {
	Tier             budget.Tier
	PollInterval     time.Duration
	PollTimeout      time.Duration
	FetchRetries     int
	RegistryCapacity int
	RegistryDisplay  int
	Clock            clockwork.Clock
	Logger           *zap.Logger
}

// Tracker は1つのジョブ表示スロットを構成する部品（Guard → Submitter → Registry → Poller、
// Poller → Resolver）をまとめたものです。
type Tracker struct {
	backend   Backend
	guard     *budget.Guard
	submitter *Submitter
	registry  *Registry
	poller    *Poller
	resolver  *Resolver
	logger    *zap.Logger
}

// New は Tracker を作成します。observer はポーラーのスナップショットを受け取ります（nil 可）。
func New(b Backend, cfg Config, observer Observer) *Tracker {
	logger := logging.OrNop(cfg.Logger)
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	guard := budget.NewGuard(cfg.Tier)
	registry := NewRegistry(cfg.RegistryCapacity, cfg.RegistryDisplay, cfg.Clock)
	return &Tracker{
		backend:   b,
		guard:     guard,
		submitter: NewSubmitter(b, guard, cfg.Clock, logger),
		registry:  registry,
		poller: NewPoller(b, registry, observer, PollerConfig{
			Interval:     cfg.PollInterval,
			Timeout:      cfg.PollTimeout,
			FetchRetries: cfg.FetchRetries,
			Clock:        cfg.Clock,
			Logger:       logger,
		}),
		resolver: NewResolver(b, registry, logger),
		logger:   logger.Named("tracker"),
	}
}

// Registry は直近ジョブのレジストリを返します。
func (t *Tracker) Registry() *Registry { return t.registry }

// Poller はポーラーを返します。
func (t *Tracker) Poller() *Poller { return t.poller }

// Guard は見積もり器を返します。
func (t *Tracker) Guard() *budget.Guard { return t.guard }

// Estimate はテキストを見積もります。
func (t *Tracker) Estimate(text string) budget.Estimate {
	return t.guard.Estimate(text)
}

// Submit はジョブを投入し、レジストリに登録してポーリングを開始します。
func (t *Tracker) Submit(ctx context.Context, req Request) (*Job, error) {
	job, err := t.submitter.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	t.registry.Record(*job)
	t.registry.SetActive(job.ID)
	t.poller.Start(*job)
	return job, nil
}

// Watch は既存のジョブをアクティブにしてポーリングします（レジストリに無ければ登録します）。
func (t *Tracker) Watch(job Job) {
	t.registry.Update(job)
	t.registry.SetActive(job.ID)
	if current, ok := t.registry.Get(job.ID); ok {
		job = current
	}
	t.poller.Start(job)
}

// Switch はアクティブなジョブを切り替えます。前のジョブのポーリングはキャンセルされます。
func (t *Tracker) Switch(jobID string) error {
	job, ok := t.registry.Get(jobID)
	if !ok {
		return fmt.Errorf("job %s is not in the recent jobs list", jobID)
	}
	t.registry.SetActive(jobID)
	t.poller.Start(job)
	return nil
}

// Lookup は GET /jobs/{id} でジョブを取得し、レジストリに反映したコピーを返します。
func (t *Tracker) Lookup(ctx context.Context, jobID string) (Job, error) {
	st, err := t.backend.GetJob(ctx, jobID)
	if err != nil {
		return Job{}, toBackendError("fetch job status", err)
	}
	job := JobFromStatus(*st)
	t.registry.Update(job)
	if current, ok := t.registry.Get(job.ID); ok {
		return current, nil
	}
	return job, nil
}

// Resolve は完了したジョブの結果を取得します。
func (t *Tracker) Resolve(ctx context.Context, jobID string) (*Result, error) {
	return t.resolver.Resolve(ctx, jobID)
}

// Hydrate は GET /jobs の1ページ目でレジストリを補完します。
func (t *Tracker) Hydrate(ctx context.Context) error {
	list, err := t.backend.ListJobs(ctx, 1, t.registry.capacity)
	if err != nil {
		return toBackendError("list jobs", err)
	}
	for _, st := range list.Jobs {
		t.registry.Update(JobFromStatus(st))
	}
	return nil
}

// SyncLoop は interval ごとに（わずかなジッター付きで）レジストリを補完します。ctx が終わるまで戻りません。
func (t *Tracker) SyncLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := jitterbug.New(interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := t.Hydrate(ctx); err != nil {
			t.logger.Warn("failed to sync recent jobs", zap.Error(err))
		}
	}
}

// Close はポーリングを止めます。
func (t *Tracker) Close() {
	t.poller.Cancel()
}
