package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/glycopilot/glycopilot-api/internal/middleware"
	"github.com/glycopilot/glycopilot-api/internal/model"
	"github.com/glycopilot/glycopilot-api/internal/service"
	"github.com/glycopilot/glycopilot-api/pkg/storage"
	"github.com/rs/zerolog/log"
)

// Max photo size: 10MB
const maxPhotoSize = 10 << 20

// PhotoHandler uploads reading photos
type PhotoHandler struct {
	storage storage.Storage
}

func NewPhotoHandler(storage storage.Storage) *PhotoHandler {
	return &PhotoHandler{storage: storage}
}

// UploadPhoto godoc
// @Summary Upload a reading photo
// @Description Stores an image and returns a URL to send as photo_url on a manual reading. Accepts jpg, png, webp and heic.
// @Tags Glycemia
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Photo"
// @Success 201 {object} model.PhotoUploadResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 413 {object} model.ErrorResponse
// @Router /glycemia/photos/ [post]
func (h *PhotoHandler) UploadPhoto(c *gin.Context) {
	if h.storage == nil {
		c.JSON(http.StatusServiceUnavailable, model.ErrorResponse{Error: "unavailable", Message: "photo storage is not configured"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxPhotoSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "too_large", Message: "photo too large (max 10MB)"})
			return
		}
		respondError(c, service.Validation("file", "this field is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !storage.IsImage(contentType) {
		respondError(c, service.Validation("file", "unsupported photo type, allowed: jpg, png, webp, heic"))
		return
	}

	p := middleware.CurrentPrincipal(c)
	folder := fmt.Sprintf("readings/%s", p.AccountID)
	result, err := h.storage.Upload(c.Request.Context(), file, header.Size, header.Filename, contentType, folder)
	if err != nil {
		respondError(c, service.Internal("failed to upload photo", err))
		return
	}

	log.Info().Str("account_id", p.AccountID.String()).Str("key", result.Key).Int64("size", result.FileSize).Msg("reading photo uploaded")
	c.JSON(http.StatusCreated, model.PhotoUploadResponse{
		URL:      result.URL,
		FileName: result.FileName,
		FileSize: result.FileSize,
		MimeType: result.MimeType,
	})
}
