package poller

import (
	"context"
	"errors"
	"testing"

	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/store"
)

func seedSong(t *testing.T, songs *store.MemorySongStore, title string) *model.Song {
	t.Helper()
	song := &model.Song{Title: title, AudioURL: "https://audio.example.com/" + title + ".mp3"}
	if err := songs.CreateSong(context.Background(), song); err != nil {
		t.Fatalf("failed to seed song: %v", err)
	}
	return song
}

func TestGetPendingSongs_SkipsSongsWithVideo(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	p := New(songs, processing)

	s1 := seedSong(t, songs, "one")
	s2 := seedSong(t, songs, "two")
	_ = songs.UpdateVideoURL(ctx, s2.ID, "https://cdn/two.mp4")

	pending, err := p.GetPendingSongs(ctx, 5)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != s1.ID {
		t.Errorf("expected only song without video, got %d songs", len(pending))
	}
}

func TestGetPendingSongs_SkipsSongsWithActiveRecord(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	p := New(songs, processing)

	s1 := seedSong(t, songs, "one")
	s2 := seedSong(t, songs, "two")

	if _, err := p.CreateProcessingRecord(ctx, s1.ID); err != nil {
		t.Fatalf("failed to create record: %v", err)
	}

	pending, err := p.GetPendingSongs(ctx, 5)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != s2.ID {
		t.Errorf("expected only the unclaimed song, got %d songs", len(pending))
	}
}

func TestGetPendingSongs_FailedRecordMakesSongEligibleAgain(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	p := New(songs, processing)

	song := seedSong(t, songs, "one")
	rec, _ := p.CreateProcessingRecord(ctx, song.ID)

	msg := "upstream exploded"
	if _, err := processing.UpdateStatus(ctx, rec.ID, store.StatusUpdate{Status: model.StatusFailed, ErrorMessage: &msg}); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	pending, err := p.GetPendingSongs(ctx, 5)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("song with only a failed record should be eligible, got %d songs", len(pending))
	}
}

func TestGetPendingSongs_RespectsLimit(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	p := New(songs, processing)

	for i := 0; i < 8; i++ {
		seedSong(t, songs, string(rune('a'+i)))
	}

	pending, err := p.GetPendingSongs(ctx, 3)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if len(pending) > 3 {
		t.Errorf("expected at most 3 songs, got %d", len(pending))
	}
}

func TestCreateProcessingRecord_SecondPollerLoses(t *testing.T) {
	ctx := context.Background()
	songs := store.NewMemorySongStore()
	processing := store.NewMemoryProcessingStore()
	song := seedSong(t, songs, "one")

	p1 := New(songs, processing)
	p2 := New(songs, processing)

	if _, err := p1.CreateProcessingRecord(ctx, song.ID); err != nil {
		t.Fatalf("winner failed: %v", err)
	}
	if _, err := p2.CreateProcessingRecord(ctx, song.ID); !errors.Is(err, store.ErrDuplicateActiveRecord) {
		t.Fatalf("expected ErrDuplicateActiveRecord for the loser, got: %v", err)
	}
}
