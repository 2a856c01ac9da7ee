// Package poller finds songs that still need a video and opens a processing
// record for each before it is handed to the orchestrator.
package poller

import (
	"context"
	"fmt"
	"log"

	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/store"
)

type Poller struct {
	songs      store.SongStore
	processing store.ProcessingStore
}

func New(songs store.SongStore, processing store.ProcessingStore) *Poller {
	return &Poller{songs: songs, processing: processing}
}

// GetPendingSongs returns up to limit songs whose video reference is absent
// and which have no active processing record. The read has no side effects;
// eligible songs are claimed separately via CreateProcessingRecord.
func (p *Poller) GetPendingSongs(ctx context.Context, limit int) ([]*model.Song, error) {
	// Over-fetch so songs filtered out by an active record don't shrink the
	// batch below the limit.
	candidates, err := p.songs.ListWithoutVideo(ctx, limit*2)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending songs: %w", err)
	}

	available := make([]*model.Song, 0, limit)
	for _, song := range candidates {
		if len(available) >= limit {
			break
		}
		active, err := p.processing.HasActiveRecord(ctx, song.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check active record for song %s: %w", song.ID, err)
		}
		if active {
			continue
		}
		available = append(available, song)
	}

	log.Printf("[Poller] found %d songs pending video generation", len(available))
	return available, nil
}

// CreateProcessingRecord opens a pending record for the song. The store makes
// the active-record check atomic with the insert, so concurrent pollers get
// exactly one record per song; losers see ErrDuplicateActiveRecord.
func (p *Poller) CreateProcessingRecord(ctx context.Context, songID string) (*model.ProcessingRecord, error) {
	record, err := p.processing.CreateRecord(ctx, songID)
	if err != nil {
		return nil, err
	}
	log.Printf("[Poller] created processing record %s for song %s", record.ID, songID)
	return record, nil
}
