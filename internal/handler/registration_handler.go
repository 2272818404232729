package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/madrasah-registration/internal/dto"
	"github.com/noah-isme/madrasah-registration/internal/service"
	appErrors "github.com/noah-isme/madrasah-registration/pkg/errors"
	"github.com/noah-isme/madrasah-registration/pkg/response"
)

type registrationService interface {
	ApproveSingle(ctx context.Context, applicationID, reviewerID, assignedGroup string, siblingCount int) (*service.ApprovalResult, error)
	ApproveGroup(ctx context.Context, applicationIDs []string, reviewerID string, groupAssignments map[string]string, siblingCount int) (*service.ApprovalResult, error)
	Reject(ctx context.Context, applicationID, reviewerID, reason string) (*service.DecisionResult, error)
	ManualApprove(ctx context.Context, studentID, approverID, justification string) (*service.ActivationResult, error)
	ManualApproveGroup(ctx context.Context, studentIDs []string, approverID, justification string) (*service.BatchResult, error)
	CancelRegistration(ctx context.Context, studentID, cancellerID, reason string) error
	ResendPaymentLink(ctx context.Context, studentID string) (*service.PaymentLinkResult, error)
}

// RegistrationHandler exposes the registration review endpoints.
type RegistrationHandler struct {
	service   registrationService
	validator *validator.Validate
}

// NewRegistrationHandler builds a new handler.
func NewRegistrationHandler(service registrationService, validate *validator.Validate) *RegistrationHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &RegistrationHandler{service: service, validator: validate}
}

// Approve godoc
// @Summary Approve a pending application
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ApproveApplicationRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /registrations/applications/{id}/approve [post]
func (h *RegistrationHandler) Approve(c *gin.Context) {
	var req dto.ApproveApplicationRequest
	if !h.bind(c, &req, true) {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	result, err := h.service.ApproveSingle(c.Request.Context(), c.Param("id"), actor, req.AssignedGroup, req.SiblingCount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, result, result.Warnings)
}

// ApproveGroup godoc
// @Summary Approve sibling applications together
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.ApproveGroupRequest true "Group approval payload"
// @Success 200 {object} response.Envelope
// @Router /registrations/applications/approve-group [post]
func (h *RegistrationHandler) ApproveGroup(c *gin.Context) {
	var req dto.ApproveGroupRequest
	if !h.bind(c, &req, false) {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	result, err := h.service.ApproveGroup(c.Request.Context(), req.ApplicationIDs, actor, req.GroupAssignments, req.SiblingCount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, result, result.Warnings)
}

// Reject godoc
// @Summary Reject a pending application
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.RejectApplicationRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /registrations/applications/{id}/reject [post]
func (h *RegistrationHandler) Reject(c *gin.Context) {
	var req dto.RejectApplicationRequest
	if !h.bind(c, &req, false) {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	result, err := h.service.Reject(c.Request.Context(), c.Param("id"), actor, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, result, result.Warnings)
}

// ManualApprove godoc
// @Summary Activate a student without payment
// @Tags Registrations
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.ManualApproveRequest true "Justification"
// @Success 200 {object} response.Envelope
// @Router /registrations/students/{id}/manual-approve [post]
func (h *RegistrationHandler) ManualApprove(c *gin.Context) {
	var req dto.ManualApproveRequest
	if !h.bind(c, &req, false) {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	result, err := h.service.ManualApprove(c.Request.Context(), c.Param("id"), actor, req.Justification)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, result, result.Warnings)
}

// ManualApproveGroup godoc
// @Summary Activate several students without payment
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.ManualApproveGroupRequest true "Students and justification"
// @Success 200 {object} response.Envelope
// @Router /registrations/students/manual-approve [post]
func (h *RegistrationHandler) ManualApproveGroup(c *gin.Context) {
	var req dto.ManualApproveGroupRequest
	if !h.bind(c, &req, false) {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	result, err := h.service.ManualApproveGroup(c.Request.Context(), req.StudentIDs, actor, req.Justification)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, result, result.Warnings)
}

// Cancel godoc
// @Summary Cancel an unpaid registration
// @Tags Registrations
// @Accept json
// @Param id path string true "Student ID"
// @Param payload body dto.CancelRegistrationRequest true "Cancellation reason"
// @Success 204
// @Router /registrations/students/{id}/cancel [post]
func (h *RegistrationHandler) Cancel(c *gin.Context) {
	var req dto.CancelRegistrationRequest
	if !h.bind(c, &req, false) {
		return
	}
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	if err := h.service.CancelRegistration(c.Request.Context(), c.Param("id"), actor, req.Reason); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ResendPaymentLink godoc
// @Summary Issue a new payment link for an unpaid registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /registrations/students/{id}/resend-payment-link [post]
func (h *RegistrationHandler) ResendPaymentLink(c *gin.Context) {
	if _, ok := requireActor(c); !ok {
		return
	}
	result, err := h.service.ResendPaymentLink(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.WithWarnings(c, result.Session, result.Warnings)
}

// bind decodes and validates the JSON body. An empty body is accepted when
// allowEmpty is set.
func (h *RegistrationHandler) bind(c *gin.Context, req interface{}, allowEmpty bool) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		if !(allowEmpty && errors.Is(err, io.EOF)) {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return false
		}
	}
	if err := h.validator.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return false
	}
	return true
}

func requireActor(c *gin.Context) (string, bool) {
	actor := actorFromContext(c)
	if actor == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return actor, true
}
