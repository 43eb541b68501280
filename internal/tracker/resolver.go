package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/text-forge/internal/jobapi"
	"github.com/yourusername/text-forge/internal/logging"
)

// Item は結果要素です。実装はこのパッケージの4種類に閉じています。
type Item interface {
	Kind() jobapi.Kind
	isItem()
}

// PersonaTransformItem は persona_transform の結果要素です。
type PersonaTransformItem struct{ jobapi.PersonaTransformItem }

// MadhyamakaDetectItem は madhyamaka_detect の結果要素です。
type MadhyamakaDetectItem struct{ jobapi.MadhyamakaDetectItem }

// MadhyamakaTransformItem は madhyamaka_transform の結果要素です。
type MadhyamakaTransformItem struct{ jobapi.MadhyamakaTransformItem }

// PerspectivesItem は perspectives の結果要素です。
type PerspectivesItem struct{ jobapi.PerspectivesItem }

func (PersonaTransformItem) Kind() jobapi.Kind    { return jobapi.KindPersonaTransform }
func (MadhyamakaDetectItem) Kind() jobapi.Kind    { return jobapi.KindMadhyamakaDetect }
func (MadhyamakaTransformItem) Kind() jobapi.Kind { return jobapi.KindMadhyamakaTransform }
func (PerspectivesItem) Kind() jobapi.Kind        { return jobapi.KindPerspectives }

func (PersonaTransformItem) isItem()    {}
func (MadhyamakaDetectItem) isItem()    {}
func (MadhyamakaTransformItem) isItem() {}
func (PerspectivesItem) isItem()        {}

// Result は完了したジョブの結果です。
type Result struct {
	JobID string
	Kind  jobapi.Kind
	Name  string
	Items []Item
}

// Resolver は完了したジョブの結果を一度だけ取得し、ジョブ種別で分類してキャッシュします。
type Resolver struct {
	fetcher  ResultFetcher
	registry *Registry
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]*Result
}

// NewResolver は Resolver を作成します。
func NewResolver(fetcher ResultFetcher, registry *Registry, logger *zap.Logger) *Resolver {
	return &Resolver{
		fetcher:  fetcher,
		registry: registry,
		logger:   logging.OrNop(logger).Named("resolver"),
		cache:    make(map[string]*Result),
	}
}

// Resolve はジョブの結果を返します。
// レジストリ上のジョブが completed でない場合はネットワークに触れず NotReadyError を返します。
func (r *Resolver) Resolve(ctx context.Context, jobID string) (*Result, error) {
	r.mu.Lock()
	cached, ok := r.cache[jobID]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	job, ok := r.registry.Get(jobID)
	if !ok {
		return nil, &NotReadyError{JobID: jobID}
	}
	if job.Status != jobapi.StatusCompleted {
		return nil, &NotReadyError{JobID: jobID, Status: job.Status}
	}

	payload, err := r.fetcher.GetResults(ctx, jobID)
	if err != nil {
		return nil, toBackendError("fetch results", err)
	}

	result, err := Classify(jobID, payload)
	if err != nil {
		r.logger.Warn("result could not be classified", zap.String("job_id", jobID), zap.Error(err))
		return nil, err
	}

	r.mu.Lock()
	r.cache[jobID] = result
	r.mu.Unlock()
	return result, nil
}

// Forget はキャッシュを破棄します。
func (r *Resolver) Forget(jobID string) {
	r.mu.Lock()
	delete(r.cache, jobID)
	r.mu.Unlock()
}

// Classify は job_type に従って結果要素をデコードします。
// 未知の job_type は UnsupportedKindError になり、黙って捨てることはしません。
func Classify(jobID string, payload *jobapi.JobResults) (*Result, error) {
	kind := jobapi.Kind(payload.JobType)
	if !kind.Valid() {
		return nil, &UnsupportedKindError{Kind: payload.JobType}
	}

	items := make([]Item, 0, len(payload.Results))
	for i, raw := range payload.Results {
		item, err := decodeItem(kind, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s result %d: %w", kind, i, err)
		}
		items = append(items, item)
	}
	return &Result{
		JobID: jobID,
		Kind:  kind,
		Name:  payload.JobName,
		Items: items,
	}, nil
}

func decodeItem(kind jobapi.Kind, raw json.RawMessage) (Item, error) {
	switch kind {
	case jobapi.KindPersonaTransform:
		var item PersonaTransformItem
		err := json.Unmarshal(raw, &item.PersonaTransformItem)
		return item, err
	case jobapi.KindMadhyamakaDetect:
		var item MadhyamakaDetectItem
		err := json.Unmarshal(raw, &item.MadhyamakaDetectItem)
		return item, err
	case jobapi.KindMadhyamakaTransform:
		var item MadhyamakaTransformItem
		err := json.Unmarshal(raw, &item.MadhyamakaTransformItem)
		return item, err
	case jobapi.KindPerspectives:
		var item PerspectivesItem
		err := json.Unmarshal(raw, &item.PerspectivesItem)
		return item, err
	default:
		return nil, &UnsupportedKindError{Kind: string(kind)}
	}
}
