package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/adforge/api/internal/service"
	"github.com/adforge/api/pkg/response"
)

const maxUploadSize = 20 * 1024 * 1024 // 20MB

type UploadHandler struct {
	service   *service.UploadService
	validator *validator.Validate
}

func NewUploadHandler(svc *service.UploadService, v *validator.Validate) *UploadHandler {
	return &UploadHandler{
		service:   svc,
		validator: v,
	}
}

// Reference handles POST /api/upload/reference
// @Summary      Upload reference image
// @Description  Upload a product or brand reference image used for visual consistency
// @Tags         Upload
// @Accept       multipart/form-data
// @Produce      json
// @Param        projectId formData string true "Project ID"
// @Param        file      formData file   true "Image file (PNG, JPEG, WebP; max 20MB)"
// @Success      201 {object} model.ReferenceUploadResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload/reference [post]
func (h *UploadHandler) Reference(c *fiber.Ctx) error {
	projectID := c.FormValue("projectId")
	if projectID == "" {
		return response.ValidationError(c, "projectId is required", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 20MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	contentType := file.Header.Get("Content-Type")
	validTypes := map[string]bool{
		"image/png":  true,
		"image/jpeg": true,
		"image/webp": true,
	}

	if !validTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: PNG, JPEG, WebP", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	result, err := h.service.UploadReference(c.Context(), projectID, file.Filename, f, file.Size)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// DeleteReference handles DELETE /api/upload/reference/:key
// @Summary      Delete reference image
// @Description  Delete a previously uploaded reference image
// @Tags         Upload
// @Produce      json
// @Param        key path string true "Storage key"
// @Success      204 "No Content"
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/upload/reference/{key} [delete]
func (h *UploadHandler) DeleteReference(c *fiber.Ctx) error {
	key := c.Params("*")
	if key == "" {
		return response.ValidationError(c, "Storage key is required", nil)
	}

	if err := h.service.DeleteReference(c.Context(), key); err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}
