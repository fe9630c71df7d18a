package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/adforge/api/internal/model"
	"github.com/adforge/api/internal/service"
	"github.com/adforge/api/pkg/response"
)

type AdHandler struct {
	service   *service.AdService
	validator *validator.Validate
}

func NewAdHandler(svc *service.AdService, v *validator.Validate) *AdHandler {
	return &AdHandler{
		service:   svc,
		validator: v,
	}
}

// approveRequest is the body for the approve endpoint. A missing or empty
// body counts as approval.
type approveRequest struct {
	Approved *bool  `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// Start handles POST /api/ads/generate
// @Summary      Start ad generation
// @Description  Start an asynchronous ad generation job from a creative brief
// @Tags         Ads
// @Accept       json
// @Produce      json
// @Param        request body model.AdStartRequest true "Ad start request"
// @Success      202 {object} model.AdStartResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ads/generate [post]
func (h *AdHandler) Start(c *fiber.Ctx) error {
	var req model.AdStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartAd(c.Context(), &req)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/ads/status/:jobId
// @Summary      Get ad job status
// @Description  Get the current status and progress of an ad generation job
// @Tags         Ads
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.AdStatusResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ads/status/{jobId} [get]
func (h *AdHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// Result handles GET /api/ads/result/:jobId
// @Summary      Get ad job result
// @Description  Get the final video and step artifacts of a completed job
// @Tags         Ads
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.AdResultResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ads/result/{jobId} [get]
func (h *AdHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job not completed" {
			return response.ValidationError(c, "Job not completed yet", nil)
		}
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// Cancel handles POST /api/ads/cancel/:jobId
// @Summary      Cancel ad job
// @Description  Request cancellation of a running or queued ad job
// @Tags         Ads
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Success      200 {object} model.AdCancelResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ads/cancel/{jobId} [post]
func (h *AdHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.CancelAd(c.Context(), jobID)
	if err != nil {
		if err.Error() == "job already completed" {
			return response.ValidationError(c, "Job already completed", nil)
		}
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// Approve handles POST /api/ads/approve/:jobId
// @Summary      Approve or reject storyboard
// @Description  Resolve the storyboard approval gate for a waiting job
// @Tags         Ads
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body approveRequest false "Approval decision"
// @Success      200 {object} model.AdApproveResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ads/approve/{jobId} [post]
func (h *AdHandler) Approve(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	req := approveRequest{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	approved := true
	if req.Approved != nil {
		approved = *req.Approved
	}

	result, err := h.service.Approve(c.Context(), jobID, approved, req.Reason)
	if err != nil {
		if err.Error() == "job is not awaiting approval" {
			return response.ValidationError(c, "Job is not awaiting approval", nil)
		}
		return jobError(c, err)
	}

	return response.OK(c, result)
}

// Decision handles POST /api/ads/decision/:jobId
// @Summary      Submit storyboard decision
// @Description  Accept, regenerate frames or add references at the approval gate
// @Tags         Ads
// @Accept       json
// @Produce      json
// @Param        jobId path string true "Job ID"
// @Param        request body model.AdDecisionRequest true "Decision"
// @Success      200 {object} model.AdApproveResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      401 {object} response.ErrorResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse
// @Security     BearerAuth
// @Router       /api/ads/decision/{jobId} [post]
func (h *AdHandler) Decision(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	var req model.AdDecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	valid := false
	for _, d := range model.ValidDecisions {
		if req.Decision == d {
			valid = true
			break
		}
	}
	if !valid {
		return response.ValidationError(c, "Unknown decision", map[string]interface{}{
			"decision": req.Decision,
		})
	}

	result, err := h.service.SubmitDecision(c.Context(), jobID, &req)
	if err != nil {
		if err.Error() == "job is not awaiting approval" {
			return response.ValidationError(c, "Job is not awaiting approval", nil)
		}
		return jobError(c, err)
	}

	return response.OK(c, result)
}
