package service

import (
	"context"

	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/store"
)

// SongService seeds and reads catalog songs for the operator API.
type SongService struct {
	songs store.SongStore
}

func NewSongService(songs store.SongStore) *SongService {
	return &SongService{songs: songs}
}

func (s *SongService) CreateSong(ctx context.Context, req *model.CreateSongRequest) (*model.Song, error) {
	song := &model.Song{
		Title:        req.Title,
		AudioURL:     req.AudioURL,
		Style:        req.Style,
		Genre:        req.Genre,
		Mood:         req.Mood,
		Description:  req.Description,
		NegativeTags: req.NegativeTags,
		Duration:     req.Duration,
		ImageURL:     req.ImageURL,
	}

	if err := s.songs.CreateSong(ctx, song); err != nil {
		return nil, err
	}
	return song, nil
}

func (s *SongService) GetSong(ctx context.Context, id string) (*model.Song, error) {
	return s.songs.GetSong(ctx, id)
}
