package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/yourusername/text-forge/internal/jobapi"
)

const (
	jobKeyPrefix    = "job:"
	resultKeySuffix = ":results"
	indexKey        = "jobs:index"
)

var (
	// ErrNotFound はジョブが存在しない（または期限切れ）ことを表します。
	ErrNotFound = errors.New("job not found")
	// ErrExists は同じIDのジョブが既に存在することを表します。
	ErrExists = errors.New("job already exists")
	// ErrInvalidTransition は状態を後退させる更新を表します。
	ErrInvalidTransition = errors.New("invalid status transition")

	errAlreadyRecorded = errors.New("result already recorded")
)

// Store はジョブ状態と結果を Redis に保存します。
type Store struct {
	rdb   *redis.Client
	ttl   time.Duration
	clock clockwork.Clock
}

// NewStore は Store を作成します。clock が nil の場合は実時間を使います。
func NewStore(rdb *redis.Client, ttl time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		rdb:   rdb,
		ttl:   ttl,
		clock: clock,
	}
}

// Ping は Redis への疎通を確認します。
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Create は新しいジョブを pending として保存し、一覧のインデックスに追加します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.JobID == "" {
		return fmt.Errorf("jobID is required")
	}
	now := s.clock.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = jobapi.StatusPending
	}
	if record.ExpiresAt.IsZero() && s.ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(s.ttl)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	ok, err := s.rdb.SetNX(ctx, jobKey(record.JobID), payload, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrExists
	}
	return s.rdb.ZAdd(ctx, indexKey, redis.Z{
		Score:  float64(record.CreatedAt.UnixMilli()),
		Member: record.JobID,
	}).Err()
}

// Get はジョブ情報を取得します。存在しない場合は nil を返します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// List は作成日時の新しい順にジョブを返します。page は 1 始まりです。
func (s *Store) List(ctx context.Context, page, pageSize int) ([]*Record, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	if s.ttl > 0 {
		cutoff := s.clock.Now().Add(-s.ttl).UnixMilli()
		if err := s.rdb.ZRemRangeByScore(ctx, indexKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err(); err != nil {
			return nil, 0, err
		}
	}

	total, err := s.rdb.ZCard(ctx, indexKey).Result()
	if err != nil {
		return nil, 0, err
	}

	start := int64((page - 1) * pageSize)
	stop := start + int64(pageSize) - 1
	ids, err := s.rdb.ZRevRange(ctx, indexKey, start, stop).Result()
	if err != nil {
		return nil, 0, err
	}
	if len(ids) == 0 {
		return []*Record{}, int(total), nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKey(id)
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, err
	}

	records := make([]*Record, 0, len(values))
	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(str), &record); err != nil {
			return nil, 0, err
		}
		records = append(records, &record)
	}
	if len(stale) > 0 {
		if err := s.rdb.ZRem(ctx, indexKey, stale...).Err(); err != nil {
			return nil, 0, err
		}
		total -= int64(len(stale))
	}
	return records, int(total), nil
}

// MarkRunning はジョブを running にします。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, jobapi.StatusRunning, nil)
}

// MarkCompleted はジョブ完了を保存します。
func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	return s.transition(ctx, jobID, jobapi.StatusCompleted, func(record *Record) {
		record.ProcessedItems = record.TotalItems()
		record.Error = nil
	})
}

// MarkFailed はジョブ失敗時の情報を保存します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.transition(ctx, jobID, jobapi.StatusFailed, func(record *Record) {
		if errInfo != nil {
			record.Error = errInfo
		}
	})
}

// RecordResult は index 番目のソースの結果要素を保存し、処理済み件数を index+1 に進めます。
// 結果の追加と件数の更新は同じトランザクションで書き込むため、再実行で同じ要素が二重に入ることはありません。
// 既に記録済みの index は何もしません。
func (s *Store) RecordResult(ctx context.Context, jobID string, index int, item any) error {
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	key := resultKey(jobID)
	err = s.update(ctx, jobID, func(record *Record) error {
		if record.Status.Terminal() {
			return ErrInvalidTransition
		}
		if index < record.ProcessedItems {
			return errAlreadyRecorded
		}
		if index != record.ProcessedItems || index >= record.TotalItems() {
			return fmt.Errorf("%w: result %d recorded after %d of %d items",
				ErrInvalidTransition, index, record.ProcessedItems, record.TotalItems())
		}
		record.ProcessedItems = index + 1
		return nil
	}, func(pipe redis.Pipeliner) {
		pipe.RPush(ctx, key, payload)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
	})
	if errors.Is(err, errAlreadyRecorded) {
		return nil
	}
	return err
}

// Results は保存された結果要素を順番どおりに返します。
func (s *Store) Results(ctx context.Context, jobID string) ([]json.RawMessage, error) {
	values, err := s.rdb.LRange(ctx, resultKey(jobID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	items := make([]json.RawMessage, len(values))
	for i, v := range values {
		items[i] = json.RawMessage(v)
	}
	return items, nil
}

func (s *Store) transition(ctx context.Context, jobID string, next jobapi.Status, mutate func(*Record)) error {
	return s.updatePartial(ctx, jobID, func(record *Record) error {
		if !record.Status.CanAdvanceTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, record.Status, next)
		}
		record.Status = next
		if mutate != nil {
			mutate(record)
		}
		return nil
	})
}

func (s *Store) updatePartial(ctx context.Context, jobID string, mutate func(*Record) error) error {
	return s.update(ctx, jobID, mutate, nil)
}

// update は WATCH で楽観ロックを取りながらレコードを書き換えます。
// extra はレコードと同じ MULTI/EXEC で実行する追加の書き込みです。
func (s *Store) update(ctx context.Context, jobID string, mutate func(*Record) error, extra func(redis.Pipeliner)) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return fmt.Errorf("%w: %s", ErrNotFound, jobID)
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		if err := mutate(&record); err != nil {
			return err
		}
		record.UpdatedAt = s.clock.Now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			if extra != nil {
				extra(pipe)
			}
			return nil
		})
		return err
	}

	for {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

func resultKey(id string) string {
	return jobKeyPrefix + id + resultKeySuffix
}
