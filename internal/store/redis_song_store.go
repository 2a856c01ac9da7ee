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
	songKeyPrefix   = "song:"
	songsNoVideoKey = "songs:novideo"
)

// RedisSongStore keeps songs as JSON blobs with a side set of the ids that
// still lack a video. The set is what the poller's eligibility scan reads.
type RedisSongStore struct {
	redis *redis.Client
}

func NewRedisSongStore(redisClient *redis.Client) *RedisSongStore {
	return &RedisSongStore{redis: redisClient}
}

func (s *RedisSongStore) CreateSong(ctx context.Context, song *model.Song) error {
	if song.ID == "" {
		song.ID = uuid.New().String()
	}
	if song.CreatedAt.IsZero() {
		song.CreatedAt = time.Now()
	}
	if song.Artist == "" {
		song.Artist = model.DefaultArtist
	}

	data, err := json.Marshal(song)
	if err != nil {
		return fmt.Errorf("failed to marshal song: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, songKeyPrefix+song.ID, data, 0)
	if song.VideoURL == nil {
		pipe.SAdd(ctx, songsNoVideoKey, song.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisSongStore) GetSong(ctx context.Context, id string) (*model.Song, error) {
	data, err := s.redis.Get(ctx, songKeyPrefix+id).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrSongNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var song model.Song
	if err := json.Unmarshal(data, &song); err != nil {
		return nil, fmt.Errorf("failed to unmarshal song: %w", err)
	}
	return &song, nil
}

func (s *RedisSongStore) ListWithoutVideo(ctx context.Context, limit int) ([]*model.Song, error) {
	ids, err := s.redis.SRandMemberN(ctx, songsNoVideoKey, int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	songs := make([]*model.Song, 0, len(ids))
	for _, id := range ids {
		song, err := s.GetSong(ctx, id)
		if err == ErrSongNotFound {
			// Stale set entry; drop it and move on.
			s.redis.SRem(ctx, songsNoVideoKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, nil
}

func (s *RedisSongStore) UpdateVideoURL(ctx context.Context, songID, videoURL string) error {
	song, err := s.GetSong(ctx, songID)
	if err != nil {
		return err
	}

	song.VideoURL = &videoURL

	data, err := json.Marshal(song)
	if err != nil {
		return fmt.Errorf("failed to marshal song: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, songKeyPrefix+songID, data, 0)
	pipe.SRem(ctx, songsNoVideoKey, songID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
