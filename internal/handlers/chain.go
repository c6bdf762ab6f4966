// internal/handlers/chain.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type ChainHandler struct {
	client      chain.Client
	syncService *services.SyncService
	cfg         *config.Config
}

func NewChainHandler(client chain.Client, syncService *services.SyncService, cfg *config.Config) *ChainHandler {
	return &ChainHandler{client: client, syncService: syncService, cfg: cfg}
}

type airdropRequest struct {
	Address string `json:"address" validate:"required,public_key"`
	Amount  uint64 `json:"amount" validate:"required"`
}

// POST /chain/airdrop
// Development convenience only; refused outside environments that enable it.
func (h *ChainHandler) Airdrop(c *gin.Context) {
	if !h.cfg.Chain.AirdropEnabled {
		utils.ErrorResponse(c, 403, "PERMISSION_DENIED", "Airdrops are disabled", nil)
		return
	}

	var req airdropRequest
	if !bindAndValidate(c, &req) {
		return
	}

	signature, err := h.client.RequestAirdrop(c.Request.Context(), req.Address, req.Amount)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"signature": signature})
}

// POST /chain/sync
// Admin-triggered reconciliation pass.
func (h *ChainHandler) Sync(c *gin.Context) {
	report, err := h.syncService.Run(c.Request.Context())
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, report)
}
