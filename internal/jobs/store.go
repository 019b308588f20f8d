package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix  = "inkpost:job:"
	maxTxRetries  = 5
	defaultJobTTL = 24 * time.Hour
)

// ErrJobNotFound はジョブ記録が存在しないことを表します。
var ErrJobNotFound = errors.New("job not found")

// Store はジョブ状態を Redis に保存します。記録は TTL 経過で消えます。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultJobTTL
	}
	return &Store{rdb: rdb, ttl: ttl, now: time.Now}
}

// Get はジョブ情報を取得します。
func (s *Store) Get(ctx context.Context, jobID string) (*Record, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create は queued 状態の記録を作成します。
func (s *Store) Create(ctx context.Context, record *Record) error {
	if record == nil || record.JobID == "" {
		return fmt.Errorf("record with jobId is required")
	}
	now := s.now().UTC()
	record.Status = StatusQueued
	record.CreatedAt = now
	record.UpdatedAt = now
	record.ExpiresAt = now.Add(s.ttl)

	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(record.JobID), payload, s.ttl).Err()
}

// MarkRunning は実行開始を記録し、試行回数を増やします。
func (s *Store) MarkRunning(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, func(record *Record) {
		record.Status = StatusRunning
		record.Attempts++
	})
}

// MarkDone はジョブ完了を記録します。
func (s *Store) MarkDone(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, func(record *Record) {
		record.Status = StatusSucceeded
		record.Error = nil
	})
}

// MarkFailed はジョブ失敗を記録します。
func (s *Store) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo) error {
	return s.update(ctx, jobID, func(record *Record) {
		record.Status = StatusFailed
		record.Error = errInfo
	})
}

// update は WATCH による楽観ロックで記録を書き換えます。
func (s *Store) update(ctx context.Context, jobID string, mutate func(*Record)) error {
	key := jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		mutate(&record)
		record.UpdatedAt = s.now().UTC()
		payload, err := json.Marshal(&record)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, redis.KeepTTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("job %s: too many concurrent updates", jobID)
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}
