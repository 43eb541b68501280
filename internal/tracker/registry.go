package tracker

import (
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultRegistryCapacity = 10
	DefaultRegistryDisplay  = 5
)

type registryEntry struct {
	job Job
	seq uint64
}

// Registry は直近に投入・参照したジョブを新しい順に保持します。
// どのジョブがポーリング中かとは独立しており、並行して安全に更新できます。
type Registry struct {
	mu       sync.RWMutex
	entries  []*registryEntry
	capacity int
	display  int
	seq      uint64
	active   string
	clock    clockwork.Clock
}

// NewRegistry は Registry を作成します。0 以下の値は既定値になります。
func NewRegistry(capacity, display int, clock clockwork.Clock) *Registry {
	if capacity <= 0 {
		capacity = DefaultRegistryCapacity
	}
	if display <= 0 {
		display = DefaultRegistryDisplay
	}
	if display > capacity {
		display = capacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Registry{
		capacity: capacity,
		display:  display,
		clock:    clock,
	}
}

// Record は新しく投入したジョブを登録します。既に存在する場合は Update と同じです。
func (r *Registry) Record(job Job) {
	r.Update(job)
}

// Update は ID をキーに upsert します。
// 既存のコピーより状態が後退する更新は無視し、false を返します。
func (r *Registry) Update(job Job) bool {
	if job.ID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if e.job.ID != job.ID {
			continue
		}
		if !e.job.Status.CanAdvanceTo(job.Status) {
			return false
		}
		createdAt := e.job.CreatedAt
		e.job = job.clone()
		if e.job.CreatedAt.IsZero() {
			e.job.CreatedAt = createdAt
		}
		return true
	}

	job = job.clone()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = r.clock.Now()
	}
	r.seq++
	r.entries = append(r.entries, &registryEntry{job: job, seq: r.seq})
	sort.SliceStable(r.entries, func(i, j int) bool {
		a, b := r.entries[i], r.entries[j]
		if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
			return a.job.CreatedAt.After(b.job.CreatedAt)
		}
		return a.seq > b.seq
	})
	r.evictLocked()
	return true
}

// evictLocked は容量を超えた古いエントリを削除します。アクティブなエントリは残します。
func (r *Registry) evictLocked() {
	for len(r.entries) > r.capacity {
		idx := len(r.entries) - 1
		if r.entries[idx].job.ID == r.active && idx > 0 {
			idx--
		}
		r.entries = append(r.entries[:idx], r.entries[idx+1:]...)
	}
}

// Get は ID に対応するジョブのコピーを返します。
func (r *Registry) Get(id string) (Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.job.ID == id {
			return e.job.clone(), true
		}
	}
	return Job{}, false
}

// List は保持しているすべてのジョブを新しい順で返します。
func (r *Registry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(len(r.entries))
}

// Recent は表示用に新しい順で最大 display 件を返します。
func (r *Registry) Recent() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked(r.display)
}

func (r *Registry) listLocked(n int) []Job {
	if n > len(r.entries) {
		n = len(r.entries)
	}
	jobs := make([]Job, 0, n)
	for _, e := range r.entries[:n] {
		jobs = append(jobs, e.job.clone())
	}
	return jobs
}

// Len は保持件数を返します。
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SetActive はアクティブなジョブを切り替えます。他のエントリの状態は変更しません。
func (r *Registry) SetActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.job.ID == id {
			r.active = id
			return true
		}
	}
	return false
}

// Active はアクティブなジョブを返します。
func (r *Registry) Active() (Job, bool) {
	r.mu.RLock()
	id := r.active
	r.mu.RUnlock()
	if id == "" {
		return Job{}, false
	}
	return r.Get(id)
}
