package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/yourusername/text-forge/internal/jobapi"
)

var errNetwork = errors.New("connection reset by peer")

type statusReply struct {
	status jobapi.Status
	err    error
	// block が閉じられるまで応答を保留する
	block chan struct{}
}

// fakeBackend はスクリプト化された応答を返す Backend です。
type fakeBackend struct {
	mu sync.Mutex

	replies   map[string][]statusReply
	results   map[string]*jobapi.JobResults
	list      *jobapi.JobList
	fetched   chan string
	jobErr    error
	sourceErr error
	nextID    int
	lastJob   jobapi.CreateJobRequest
	sources   []jobapi.CreateSourceRequest
	createAt  time.Time

	createSourceCalls int
	createJobCalls    int
	getJobCalls       int
	getResultsCalls   int
	listCalls         int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		replies:  make(map[string][]statusReply),
		results:  make(map[string]*jobapi.JobResults),
		fetched:  make(chan string, 1024),
		createAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBackend) script(id string, replies ...statusReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies[id] = append(f.replies[id], replies...)
}

func (f *fakeBackend) CreateSource(ctx context.Context, req jobapi.CreateSourceRequest) (*jobapi.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createSourceCalls++
	if f.sourceErr != nil {
		return nil, f.sourceErr
	}
	f.sources = append(f.sources, req)
	return &jobapi.Source{ID: "src-1", Name: req.Name, CharCount: len(req.Content), ContentType: "text/plain"}, nil
}

func (f *fakeBackend) CreateJob(ctx context.Context, req jobapi.CreateJobRequest) (*jobapi.JobCreated, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createJobCalls++
	f.lastJob = req
	if f.jobErr != nil {
		return nil, f.jobErr
	}
	f.nextID++
	return &jobapi.JobCreated{
		ID:         "job-" + string(rune('0'+f.nextID)),
		Name:       req.Name,
		JobType:    req.JobType,
		Status:     jobapi.StatusPending,
		TotalItems: len(req.SourceIDs),
		CreatedAt:  f.createAt.Add(time.Duration(f.nextID) * time.Second),
	}, nil
}

// GetJob はスクリプトの先頭を返します。最後の応答は繰り返し使います。
func (f *fakeBackend) GetJob(ctx context.Context, id string) (*jobapi.JobStatus, error) {
	f.mu.Lock()
	f.getJobCalls++
	queue := f.replies[id]
	reply := statusReply{status: jobapi.StatusPending}
	if len(queue) > 0 {
		reply = queue[0]
		if len(queue) > 1 {
			f.replies[id] = queue[1:]
		}
	}
	f.mu.Unlock()

	defer func() { f.fetched <- id }()
	if reply.block != nil {
		select {
		case <-reply.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &jobapi.JobStatus{
		ID:     id,
		Status: reply.status,
		Progress: &jobapi.Progress{
			ProcessedItems: progressFor(reply.status),
			TotalItems:     2,
		},
	}, nil
}

func progressFor(s jobapi.Status) int {
	switch s {
	case jobapi.StatusRunning:
		return 1
	case jobapi.StatusCompleted:
		return 2
	default:
		return 0
	}
}

func (f *fakeBackend) GetResults(ctx context.Context, id string) (*jobapi.JobResults, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getResultsCalls++
	res, ok := f.results[id]
	if !ok {
		return nil, errNetwork
	}
	return res, nil
}

func (f *fakeBackend) ListJobs(ctx context.Context, page, pageSize int) (*jobapi.JobList, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.list == nil {
		return &jobapi.JobList{Page: page, PageSize: pageSize}, nil
	}
	return f.list, nil
}

func (f *fakeBackend) calls() (sources, jobs, statuses, results int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createSourceCalls, f.createJobCalls, f.getJobCalls, f.getResultsCalls
}

// waitFetch は GetJob の呼び出し完了を待ちます。
func (f *fakeBackend) waitFetch(t *testing.T) {
	t.Helper()
	select {
	case <-f.fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for status fetch")
	}
}

type snapshotSink struct {
	ch chan Snapshot
}

func newSnapshotSink() *snapshotSink {
	return &snapshotSink{ch: make(chan Snapshot, 1024)}
}

func (s *snapshotSink) observe(snap Snapshot) {
	s.ch <- snap
}

func (s *snapshotSink) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case snap := <-s.ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func (s *snapshotSink) none(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case snap := <-s.ch:
		t.Fatalf("unexpected snapshot: %+v", snap)
	case <-time.After(wait):
	}
}

func newFakeClock() *clockwork.FakeClock {
	return clockwork.NewFakeClockAt(time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC))
}
