// internal/handlers/purchase.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type PurchaseHandler struct {
	purchaseService *services.PurchaseService
	paymentService  *services.PaymentService
}

func NewPurchaseHandler(purchaseService *services.PurchaseService, paymentService *services.PaymentService) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
		paymentService:  paymentService,
	}
}

// POST /purchases/propose
func (h *PurchaseHandler) Propose(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.ProposePurchaseInput
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.purchaseService.Propose(buyerID, req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, request)
}

// POST /purchases/:id/accept
func (h *PurchaseHandler) Accept(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	request, err := h.purchaseService.Accept(sellerID, requestID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, request)
}

// POST /purchases/:id/reject
func (h *PurchaseHandler) Reject(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	request, err := h.purchaseService.Reject(sellerID, requestID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, request)
}

type payRequest struct {
	PaymentTxHash   string `json:"payment_tx_hash" validate:"omitempty,tx_hash"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// POST /purchases/:id/pay
// With a payment_intent_id the card payment is verified through Stripe;
// otherwise the buyer settles off-platform and only the reference is stored.
func (h *PurchaseHandler) Pay(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req payRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if req.PaymentIntentID != "" {
		request, err := h.paymentService.ConfirmAndPay(buyerID, requestID, req.PaymentIntentID)
		if err != nil {
			utils.AppErrorResponse(c, err)
			return
		}
		utils.SuccessResponse(c, request)
		return
	}

	request, err := h.purchaseService.Pay(buyerID, requestID, req.PaymentTxHash, "")
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, request)
}

// POST /purchases/:id/buyer-accept
// Alias for the payment step when no payment reference accompanies it.
func (h *PurchaseHandler) BuyerAccept(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	request, err := h.purchaseService.Pay(buyerID, requestID, "", "")
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, request)
}

// POST /purchases/:id/payment-intent
func (h *PurchaseHandler) CreatePaymentIntent(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	intent, err := h.paymentService.CreateIntent(buyerID, requestID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, intent)
}

// POST /purchases/:id/buyer-cancel
func (h *PurchaseHandler) BuyerCancel(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	request, err := h.purchaseService.BuyerCancel(buyerID, requestID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, request)
}

type finalizeRequest struct {
	TransferTxHash string `json:"transfer_tx_hash" validate:"required,tx_hash"`
	BlockSlot      uint64 `json:"block_slot" validate:"required"`
}

// POST /purchases/:id/finalize
func (h *PurchaseHandler) Finalize(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}
	requestID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req finalizeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	request, err := h.purchaseService.Finalize(sellerID, requestID, req.TransferTxHash, req.BlockSlot)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, request)
}

// GET /purchases/requests/buyer
func (h *PurchaseHandler) BuyerRequests(c *gin.Context) {
	buyerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	requests, total, err := h.purchaseService.ListForBuyer(buyerID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, params))
}

// GET /purchases/requests/seller
func (h *PurchaseHandler) SellerRequests(c *gin.Context) {
	sellerID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c)
	requests, total, err := h.purchaseService.ListForSeller(sellerID, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(requests, total, params))
}
