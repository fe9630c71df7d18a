package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/service"
	"github.com/adforge/api/internal/store"
	"github.com/adforge/api/pkg/response"
)

type BatchHandler struct {
	service   *service.VariantService
	validator *validator.Validate
}

func NewBatchHandler(svc *service.VariantService, v *validator.Validate) *BatchHandler {
	return &BatchHandler{
		service:   svc,
		validator: v,
	}
}

// Start handles POST /api/batch/variants
// @Summary      Start variant batch
// @Description  Generate ad creative variants in bulk
// @Tags         Batch
// @Accept       json
// @Produce      json
// @Param        request body model.BatchStartRequest true "Batch start request"
// @Success      202 {object} model.BatchStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/variants [post]
func (h *BatchHandler) Start(c *fiber.Ctx) error {
	var req model.BatchStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartBatch(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/batch/status/:batchId
// @Summary      Get batch status
// @Description  Get batch progress including partial results
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/status/{batchId} [get]
func (h *BatchHandler) Status(c *fiber.Ctx) error {
	batchID := c.Params("batchId")
	if batchID == "" {
		return response.ValidationError(c, "Batch ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), batchID)
	if err != nil {
		return batchError(c, err)
	}

	return response.OK(c, result)
}

// Pause handles POST /api/batch/pause/:batchId
// @Summary      Pause batch
// @Description  Pause a running batch at the next item boundary
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchControlResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/pause/{batchId} [post]
func (h *BatchHandler) Pause(c *fiber.Ctx) error {
	return h.control(c, h.service.Pause)
}

// Resume handles POST /api/batch/resume/:batchId
// @Summary      Resume batch
// @Description  Resume a paused batch
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchControlResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/resume/{batchId} [post]
func (h *BatchHandler) Resume(c *fiber.Ctx) error {
	return h.control(c, h.service.Resume)
}

// Cancel handles POST /api/batch/cancel/:batchId
// @Summary      Cancel batch
// @Description  Cancel a batch; already completed items keep their results
// @Tags         Batch
// @Produce      json
// @Param        batchId path string true "Batch ID"
// @Success      200 {object} model.BatchControlResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/batch/cancel/{batchId} [post]
func (h *BatchHandler) Cancel(c *fiber.Ctx) error {
	return h.control(c, h.service.Cancel)
}

func (h *BatchHandler) control(c *fiber.Ctx, op func(ctx context.Context, batchID string) (*model.BatchControlResponse, error)) error {
	batchID := c.Params("batchId")
	if batchID == "" {
		return response.ValidationError(c, "Batch ID is required", nil)
	}

	result, err := op(c.Context(), batchID)
	if err != nil {
		return batchError(c, err)
	}

	return response.OK(c, result)
}

func batchError(c *fiber.Ctx, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return response.NotFound(c, "Batch not found")
	}
	return response.ServiceError(c, err.Error())
}
