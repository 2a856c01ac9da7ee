package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/yonalabs/videogen/internal/model"
	"github.com/yonalabs/videogen/internal/service"
	"github.com/yonalabs/videogen/internal/store"
	"github.com/yonalabs/videogen/pkg/response"
)

type SongHandler struct {
	service   *service.SongService
	validator *validator.Validate
}

func NewSongHandler(svc *service.SongService, v *validator.Validate) *SongHandler {
	return &SongHandler{
		service:   svc,
		validator: v,
	}
}

// Create handles POST /api/songs
func (h *SongHandler) Create(c *fiber.Ctx) error {
	var req model.CreateSongRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	song, err := h.service.CreateSong(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, song)
}

// Get handles GET /api/songs/:id
func (h *SongHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return response.ValidationError(c, "Song ID is required", nil)
	}

	song, err := h.service.GetSong(c.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrSongNotFound) {
			return response.NotFound(c, "Song not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, song)
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
