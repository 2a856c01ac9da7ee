package handler

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/yonalabs/videogen/internal/client"
	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/service"
	"github.com/yonalabs/videogen/internal/store"
	"github.com/yonalabs/videogen/pkg/response"
)

// signedURLExpiry bounds how long a presigned video link stays valid.
const signedURLExpiry = 15 * time.Minute

type ProcessingHandler struct {
	songs      *service.SongService
	processing *service.ProcessingService
	signer     client.URLSigner
}

// NewProcessingHandler creates the processing endpoints. signer may be nil
// when object storage is not configured; signed URL requests are then ignored.
func NewProcessingHandler(songs *service.SongService, processing *service.ProcessingService, signer client.URLSigner) *ProcessingHandler {
	return &ProcessingHandler{
		songs:      songs,
		processing: processing,
		signer:     signer,
	}
}

// Start handles POST /api/processing/:songId/start. The poller picks songs up
// on its own; this endpoint exists so an operator can trigger one immediately.
func (h *ProcessingHandler) Start(c *fiber.Ctx) error {
	songID := c.Params("songId")
	if songID == "" {
		return response.ValidationError(c, "Song ID is required", nil)
	}

	song, err := h.songs.GetSong(c.Context(), songID)
	if err != nil {
		if errors.Is(err, store.ErrSongNotFound) {
			return response.NotFound(c, "Song not found")
		}
		return response.ServiceError(c, err.Error())
	}

	if song.VideoURL != nil {
		return response.Conflict(c, "Song already has a video")
	}

	record, err := h.processing.StartProcessing(c.Context(), song)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateActiveRecord) {
			return response.Conflict(c, "Song already has an active processing record")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, record)
}

// Status handles GET /api/processing/:id. With ?signed=1 a completed record
// additionally carries a presigned URL for its video object.
func (h *ProcessingHandler) Status(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Processing ID is required", nil)
	}

	result, err := h.processing.GetStatus(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return response.NotFound(c, "Processing record not found")
		}
		return response.ServiceError(c, err.Error())
	}

	if c.QueryBool("signed") && h.signer != nil && result.VideoKey != nil {
		url, err := h.signer.GetSignedURL(c.Context(), *result.VideoKey, signedURLExpiry)
		if err != nil {
			return response.ServiceError(c, err.Error())
		}
		result.SignedVideoURL = &url
	}

	return response.OK(c, result)
}

// List handles GET /api/processing?status=&limit=
func (h *ProcessingHandler) List(c *fiber.Ctx) error {
	status := model.ProcessingStatus(c.Query("status"))
	if status != "" && !isValidStatus(status) {
		return response.ValidationError(c, "Unknown status filter", nil)
	}

	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}

	result, err := h.processing.ListRecords(c.Context(), status, limit)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

func isValidStatus(s model.ProcessingStatus) bool {
	for _, v := range model.ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}
