package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/backend"
	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/logging"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultPollTimeout  = 300 * time.Second
)

// State はポーラーの状態です。
type State int

const (
	StateIdle State = iota
	StatePolling
	StateResolved
	StateTimedOut
	StateCancelled
	// StateAborted は状態取得に失敗してポーリングを打ち切ったことを表します。
	// ジョブ自体はまだ処理中の可能性があります。
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateResolved:
		return "resolved"
	case StateTimedOut:
		return "timed_out"
	case StateCancelled:
		return "cancelled"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Final はこれ以上遷移しない状態かどうかを返します。
func (s State) Final() bool {
	return s == StateResolved || s == StateTimedOut || s == StateCancelled || s == StateAborted
}

// Snapshot はポーラーが観測した最新の状態です。
type Snapshot struct {
	State State
	Job   Job
	Err   error
}

// Observer はスナップショットの通知を受け取ります。
// ポーラーのロックを保持したまま呼ばれるため、ブロックしたりポーラーを呼び返したりしてはいけません。
type Observer func(Snapshot)

// PollerConfig はポーラーの設定です。
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	// FetchRetries は状態取得の連続失敗を何回まで許容するかです。
	// 0（既定）では最初の失敗でポーリングを打ち切ります。
	FetchRetries int
	Clock        clockwork.Clock
	Logger       *zap.Logger
}

// Poller は1つの表示スロットに対して、同時に1件だけジョブをポーリングします。
type Poller struct {
	fetcher  StatusFetcher
	registry *Registry
	observer Observer
	interval time.Duration
	timeout  time.Duration
	retries  int
	clock    clockwork.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	current *pollRun
}

type pollRun struct {
	jobID  string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	stopped bool
	snap    Snapshot
}

type pollTimers struct {
	start    time.Time
	ticker   clockwork.Ticker
	deadline clockwork.Timer
}

type fetchResult struct {
	status *jobapi.JobStatus
	err    error
}

// NewPoller は Poller を作成します。registry と observer は nil でも構いません。
func NewPoller(fetcher StatusFetcher, registry *Registry, observer Observer, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollTimeout
	}
	if cfg.FetchRetries < 0 {
		cfg.FetchRetries = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Poller{
		fetcher:  fetcher,
		registry: registry,
		observer: observer,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		retries:  cfg.FetchRetries,
		clock:    cfg.Clock,
		logger:   logging.OrNop(cfg.Logger).Named("poller"),
	}
}

// Start はジョブのポーリングを開始します。
// 同じジョブをポーリング中なら何もしません。別のジョブをポーリング中ならそれを先にキャンセルします。
// 既に終端状態のジョブは取得を行わずに Resolved になります。
func (p *Poller) Start(job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur := p.current; cur != nil {
		if cur.jobID == job.ID && !cur.finished() {
			return
		}
		cur.stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &pollRun{
		jobID:  job.ID,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	p.current = run

	job = job.clone()
	if job.Status.Terminal() {
		p.publish(run, Snapshot{State: StateResolved, Job: job})
		cancel()
		close(run.done)
		return
	}

	p.publish(run, Snapshot{State: StatePolling, Job: job})
	// タイマーは Start の中で作っておき、壁時計の起点を Start 時刻にする
	t := &pollTimers{
		start:    p.clock.Now(),
		ticker:   p.clock.NewTicker(p.interval),
		deadline: p.clock.NewTimer(p.timeout),
	}
	go p.loop(run, job, t)
}

// Cancel は現在のポーリングを止めます。何度呼んでもエラーになりません。
// Cancel が戻った後、そのポーリングによる通知やレジストリ更新は発生しません。
func (p *Poller) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.stop()
	}
}

// JobID はポーラーが担当しているジョブIDを返します。
func (p *Poller) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return ""
	}
	return p.current.jobID
}

// Snapshot は最新のスナップショットを返します。
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	run := p.current
	p.mu.Unlock()
	if run == nil {
		return Snapshot{State: StateIdle}
	}
	run.mu.Lock()
	defer run.mu.Unlock()
	snap := run.snap
	snap.Job = snap.Job.clone()
	return snap
}

// Wait は現在のポーリングが終わるまで待ち、最終スナップショットを返します。
func (p *Poller) Wait(ctx context.Context) (Snapshot, error) {
	p.mu.Lock()
	run := p.current
	p.mu.Unlock()
	if run == nil {
		return Snapshot{State: StateIdle}, nil
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return p.Snapshot(), ctx.Err()
	}
	return p.Snapshot(), nil
}

func (p *Poller) loop(run *pollRun, job Job, t *pollTimers) {
	defer close(run.done)

	log := p.logger.With(zap.String("job_id", job.ID))
	start, ticker, deadline := t.start, t.ticker, t.deadline
	defer ticker.Stop()
	defer deadline.Stop()

	timedOut := func() {
		elapsed := p.clock.Since(start)
		log.Warn("polling timed out", zap.Duration("elapsed", elapsed))
		p.publish(run, Snapshot{
			State: StateTimedOut,
			Job:   job,
			Err:   &TimeoutError{JobID: job.ID, Elapsed: elapsed},
		})
	}

	failures := 0
	for {
		select {
		case <-run.ctx.Done():
			return
		case <-deadline.Chan():
			timedOut()
			return
		case <-ticker.Chan():
		}

		resCh := make(chan fetchResult, 1)
		fetchCtx, cancelFetch := context.WithCancel(run.ctx)
		go func() {
			st, err := p.fetcher.GetJob(fetchCtx, job.ID)
			resCh <- fetchResult{status: st, err: err}
		}()

		var res fetchResult
		select {
		case <-run.ctx.Done():
			cancelFetch()
			return
		case <-deadline.Chan():
			cancelFetch()
			timedOut()
			return
		case res = <-resCh:
			cancelFetch()
		}

		// 上限到達後に届いた応答は破棄する
		if p.clock.Since(start) >= p.timeout {
			timedOut()
			return
		}

		if res.err == nil && res.status == nil {
			res.err = errors.New("empty status response")
		}
		if res.err != nil {
			failures++
			if failures > p.retries {
				log.Warn("status fetch failed, polling aborted", zap.Error(res.err))
				p.publish(run, Snapshot{State: StateAborted, Job: job, Err: toBackendError("fetch job status", res.err)})
				return
			}
			log.Info("status fetch failed, retrying on next tick", zap.Error(res.err), zap.Int("failures", failures))
			continue
		}
		failures = 0

		if !job.apply(res.status) {
			log.Warn("ignored status regression",
				zap.String("cached", string(job.Status)),
				zap.String("received", string(res.status.Status)))
			continue
		}

		if job.Status.Terminal() {
			log.Debug("job reached terminal state", zap.String("status", string(job.Status)))
			p.publish(run, Snapshot{State: StateResolved, Job: job})
			return
		}
		if !p.publish(run, Snapshot{State: StatePolling, Job: job}) {
			return
		}
	}
}

// publish はスナップショットを記録してレジストリとオブザーバーに反映します。
// 停止済みの場合は何もせず false を返します。終端状態の通知は1回だけです。
func (p *Poller) publish(run *pollRun, snap Snapshot) bool {
	run.mu.Lock()
	defer run.mu.Unlock()
	if run.stopped {
		return false
	}
	snap.Job = snap.Job.clone()
	if snap.State.Final() {
		run.stopped = true
	}
	run.snap = snap
	if p.registry != nil {
		p.registry.Update(snap.Job)
	}
	if p.observer != nil {
		p.observer(snap)
	}
	return true
}

func (r *pollRun) stop() {
	r.cancel()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	r.snap.State = StateCancelled
}

func (r *pollRun) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func toBackendError(op string, err error) *BackendError {
	be := &BackendError{Op: op, Err: err}
	var httpErr *backend.HTTPError
	if errors.As(err, &httpErr) {
		be.StatusCode = httpErr.StatusCode
		be.Detail = httpErr.Detail
	}
	return be
}
