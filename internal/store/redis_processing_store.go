package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/yonalabs/videogen/internal/model"
)

const (
	recordKeyPrefix = "processing:"
	recordIndexKey  = "processing:index"
	activeKeyPrefix = "processing:active:"
)

// RedisProcessingStore keeps processing records as JSON blobs with no TTL.
// The at-most-one-active-record-per-song invariant is enforced by a SETNX
// guard key per song, which makes the existence check atomic with the insert
// across processes.
type RedisProcessingStore struct {
	redis *redis.Client
}

func NewRedisProcessingStore(redisClient *redis.Client) *RedisProcessingStore {
	return &RedisProcessingStore{redis: redisClient}
}

func (s *RedisProcessingStore) CreateRecord(ctx context.Context, songID string) (*model.ProcessingRecord, error) {
	record := &model.ProcessingRecord{
		ID:        uuid.New().String(),
		SongID:    songID,
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}

	ok, err := s.redis.SetNX(ctx, activeKeyPrefix+songID, record.ID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		return nil, ErrDuplicateActiveRecord
	}

	if err := s.saveRecord(ctx, record); err != nil {
		// Roll the guard back so the song is not blocked by a phantom record.
		s.redis.Del(ctx, activeKeyPrefix+songID)
		return nil, err
	}
	return record, nil
}

func (s *RedisProcessingStore) GetRecord(ctx context.Context, id string) (*model.ProcessingRecord, error) {
	data, err := s.redis.Get(ctx, recordKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var record model.ProcessingRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal processing record: %w", err)
	}
	return &record, nil
}

func (s *RedisProcessingStore) ListRecords(ctx context.Context, status model.ProcessingStatus, limit int) ([]*model.ProcessingRecord, error) {
	ids, err := s.redis.SMembers(ctx, recordIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records := make([]*model.ProcessingRecord, 0, limit)
	for _, id := range ids {
		if limit > 0 && len(records) >= limit {
			break
		}
		record, err := s.GetRecord(ctx, id)
		if err == ErrRecordNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		if status != "" && record.Status != status {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *RedisProcessingStore) HasActiveRecord(ctx context.Context, songID string) (bool, error) {
	n, err := s.redis.Exists(ctx, activeKeyPrefix+songID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *RedisProcessingStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*model.ProcessingRecord, error) {
	record, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	applyStatusUpdate(record, update, time.Now())

	if err := s.saveRecord(ctx, record); err != nil {
		return nil, err
	}

	if record.Status.IsTerminal() {
		if err := s.redis.Del(ctx, activeKeyPrefix+record.SongID).Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return record, nil
}

func (s *RedisProcessingStore) saveRecord(ctx context.Context, record *model.ProcessingRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal processing record: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, recordKeyPrefix+record.ID, data, 0)
	pipe.SAdd(ctx, recordIndexKey, record.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
