// internal/handlers/validation.go
package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type ValidationHandler struct {
	validationService *services.ValidationService
}

func NewValidationHandler(validationService *services.ValidationService) *ValidationHandler {
	return &ValidationHandler{validationService: validationService}
}

type validateTransactionRequest struct {
	TxHash string `json:"tx_hash" validate:"required,tx_hash"`
}

// POST /validate/transaction
func (h *ValidationHandler) ValidateTransaction(c *gin.Context) {
	var req validateTransactionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.validationService.ValidateNode(c.Request.Context(), req.TxHash)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

type validateOwnershipRequest struct {
	OwnershipID uuid.UUID `json:"ownership_id" validate:"required"`
}

// POST /validate/ownership
func (h *ValidationHandler) ValidateOwnership(c *gin.Context) {
	var req validateOwnershipRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.validationService.ValidateOwnershipRecord(c.Request.Context(), req.OwnershipID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

type validateRegistrationRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}

// POST /validate/product-registration
func (h *ValidationHandler) ValidateProductRegistration(c *gin.Context) {
	var req validateRegistrationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.validationService.ValidateProductRegistration(c.Request.Context(), req.ProductID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, result)
}

// GET /products/:id/chain
func (h *ValidationHandler) ProductChain(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	report, err := h.validationService.ValidateProductChain(c.Request.Context(), productID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, report)
}

// GET /products/:id/current-owner
func (h *ValidationHandler) CurrentOwner(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var userID *uuid.UUID
	if raw := c.Query("user_id"); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			userID = &parsed
		}
	}
	publicKey := c.Query("public_key")

	verification, err := h.validationService.VerifyCurrentOwner(c.Request.Context(), productID, userID, publicKey)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, verification)
}
