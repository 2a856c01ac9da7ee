package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yonalabs/videogen/internal/model"
)

// MemorySongStore is an in-memory SongStore used by tests and by development
// setups without Redis.
type MemorySongStore struct {
	mu    sync.Mutex
	songs map[string]*model.Song
}

func NewMemorySongStore() *MemorySongStore {
	return &MemorySongStore{songs: make(map[string]*model.Song)}
}

func (s *MemorySongStore) CreateSong(ctx context.Context, song *model.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if song.ID == "" {
		song.ID = uuid.New().String()
	}
	if song.CreatedAt.IsZero() {
		song.CreatedAt = time.Now()
	}
	if song.Artist == "" {
		song.Artist = model.DefaultArtist
	}

	clone := *song
	s.songs[song.ID] = &clone
	return nil
}

func (s *MemorySongStore) GetSong(ctx context.Context, id string) (*model.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	song, ok := s.songs[id]
	if !ok {
		return nil, ErrSongNotFound
	}
	clone := *song
	return &clone, nil
}

func (s *MemorySongStore) ListWithoutVideo(ctx context.Context, limit int) ([]*model.Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var songs []*model.Song
	for _, song := range s.songs {
		if song.VideoURL != nil {
			continue
		}
		if limit > 0 && len(songs) >= limit {
			break
		}
		clone := *song
		songs = append(songs, &clone)
	}
	return songs, nil
}

func (s *MemorySongStore) UpdateVideoURL(ctx context.Context, songID, videoURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	song, ok := s.songs[songID]
	if !ok {
		return ErrSongNotFound
	}
	song.VideoURL = &videoURL
	return nil
}

// MemoryProcessingStore is an in-memory ProcessingStore with the same
// active-record semantics as the Redis implementation.
type MemoryProcessingStore struct {
	mu      sync.Mutex
	records map[string]*model.ProcessingRecord
	active  map[string]string // songID -> recordID
}

func NewMemoryProcessingStore() *MemoryProcessingStore {
	return &MemoryProcessingStore{
		records: make(map[string]*model.ProcessingRecord),
		active:  make(map[string]string),
	}
}

func (s *MemoryProcessingStore) CreateRecord(ctx context.Context, songID string) (*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[songID]; exists {
		return nil, ErrDuplicateActiveRecord
	}

	record := &model.ProcessingRecord{
		ID:        uuid.New().String(),
		SongID:    songID,
		Status:    model.StatusPending,
		CreatedAt: time.Now(),
	}
	s.records[record.ID] = record
	s.active[songID] = record.ID

	clone := *record
	return &clone, nil
}

func (s *MemoryProcessingStore) GetRecord(ctx context.Context, id string) (*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryProcessingStore) ListRecords(ctx context.Context, status model.ProcessingStatus, limit int) ([]*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*model.ProcessingRecord
	for _, record := range s.records {
		if status != "" && record.Status != status {
			continue
		}
		if limit > 0 && len(records) >= limit {
			break
		}
		clone := *record
		records = append(records, &clone)
	}
	return records, nil
}

func (s *MemoryProcessingStore) HasActiveRecord(ctx context.Context, songID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.active[songID]
	return exists, nil
}

func (s *MemoryProcessingStore) UpdateStatus(ctx context.Context, id string, update StatusUpdate) (*model.ProcessingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}

	applyStatusUpdate(record, update, time.Now())

	if record.Status.IsTerminal() {
		delete(s.active, record.SongID)
	}

	clone := *record
	return &clone, nil
}
