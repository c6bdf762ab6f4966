// internal/handlers/transfer.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type TransferHandler struct {
	transferService *services.TransferService
}

func NewTransferHandler(transferService *services.TransferService) *TransferHandler {
	return &TransferHandler{transferService: transferService}
}

// POST /transfers/propose
func (h *TransferHandler) Propose(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.ProposeTransferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}
	// The authenticated user is always the proposing party.
	req.FromUserID = userID
	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	proposal, err := h.transferService.Propose(c.Request.Context(), req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, proposal)
}

// POST /transfers/accept
func (h *TransferHandler) Accept(c *gin.Context) {
	var req services.AcceptTransferInput
	if !bindAndValidate(c, &req) {
		return
	}

	// An authenticated buyer accepts as themselves; an unregistered buyer
	// identifies by public key only.
	if userID, ok := currentUserID(c); ok {
		req.ToUserID = &userID
	}

	if err := h.transferService.Accept(c.Request.Context(), req); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"accepted": true})
}

// POST /transfers/execute
func (h *TransferHandler) Execute(c *gin.Context) {
	var req services.ExecuteTransferInput
	if !bindAndValidate(c, &req) {
		return
	}

	ownership, err := h.transferService.Execute(c.Request.Context(), req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, ownership)
}

type productRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

// POST /transfers/cancel
func (h *TransferHandler) Cancel(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req productRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.transferService.Cancel(c.Request.Context(), req.ProductID, userID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"cancelled": true})
}

// POST /transfers/end-tracking
func (h *TransferHandler) EndTracking(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req productRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.transferService.EndTracking(c.Request.Context(), req.ProductID, userID); err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"tracking_ended": true})
}

type checkOwnershipRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	UserID    *uuid.UUID `json:"user_id"`
	PublicKey string     `json:"public_key" validate:"omitempty,public_key"`
}

// POST /transfers/check-ownership
func (h *TransferHandler) CheckOwnership(c *gin.Context) {
	var req checkOwnershipRequest
	if !bindAndValidate(c, &req) {
		return
	}

	isOwner, ownership, err := h.transferService.CheckOwnership(req.ProductID, req.UserID, req.PublicKey)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"is_owner":  isOwner,
		"ownership": ownership,
	})
}

// POST /transfers/ownership-history
func (h *TransferHandler) OwnershipHistory(c *gin.Context) {
	var req productRequest
	if !bindAndValidate(c, &req) {
		return
	}

	records, err := h.transferService.OwnershipHistory(req.ProductID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, records)
}
