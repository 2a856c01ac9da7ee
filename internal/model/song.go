package model

import "time"

// Song is the external song entity. It is owned by the catalog service; this
// pipeline only reads it and writes VideoURL once a video has been produced.
type Song struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Artist       string                 `json:"artist"`
	AudioURL     string                 `json:"audioUrl"`
	Style        *string                `json:"style,omitempty"`
	Genre        *string                `json:"genre,omitempty"`
	Mood         *string                `json:"mood,omitempty"`
	Description  *string                `json:"description,omitempty"`
	NegativeTags *string                `json:"negativeTags,omitempty"`
	Duration     *float64               `json:"duration,omitempty"`
	ImageURL     *string                `json:"imageUrl,omitempty"`
	VideoURL     *string                `json:"videoUrl,omitempty"`
	ParamsUsed   map[string]interface{} `json:"paramsUsed,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// GenerationParams is the flattened parameter bag handed to the script and
// clip generators.
type GenerationParams struct {
	Title          string  `json:"title"`
	Artist         string  `json:"artist"`
	Style          string  `json:"style,omitempty"`
	Genre          string  `json:"genre,omitempty"`
	Mood           string  `json:"mood,omitempty"`
	Description    string  `json:"description,omitempty"`
	NegativePrompt string  `json:"negativePrompt,omitempty"`
	Duration       float64 `json:"duration,omitempty"`
	ReferenceImage string  `json:"referenceImage,omitempty"`
}

// ExtractGenerationParams combines the song's stored generation params with
// the catalog fields. The artist is always the label persona.
func ExtractGenerationParams(song *Song) GenerationParams {
	params := GenerationParams{
		Title:  song.Title,
		Artist: DefaultArtist,
	}

	if song.Style != nil {
		params.Style = *song.Style
	}
	if song.Genre != nil {
		params.Genre = *song.Genre
	}
	if song.Mood != nil {
		params.Mood = *song.Mood
	}
	if song.Description != nil {
		params.Description = *song.Description
	}
	if song.NegativeTags != nil {
		params.NegativePrompt = *song.NegativeTags
	}
	if song.Duration != nil {
		params.Duration = *song.Duration
	}
	if song.ImageURL != nil {
		params.ReferenceImage = *song.ImageURL
	}

	// Stored params fill gaps but never override catalog fields.
	if v, ok := song.ParamsUsed["style"].(string); ok && params.Style == "" {
		params.Style = v
	}
	if v, ok := song.ParamsUsed["mood"].(string); ok && params.Mood == "" {
		params.Mood = v
	}

	return params
}
