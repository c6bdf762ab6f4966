// internal/handlers/product.go
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type ProductHandler struct {
	productService  *services.ProductService
	metadataService *services.MetadataService
	userService     *services.UserService
}

func NewProductHandler(productService *services.ProductService, metadataService *services.MetadataService, userService *services.UserService) *ProductHandler {
	return &ProductHandler{
		productService:  productService,
		metadataService: metadataService,
		userService:     userService,
	}
}

// GET /products
func (h *ProductHandler) List(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	var registeredBy *uuid.UUID
	if raw := c.Query("registered_by"); raw != "" {
		if parsed, err := uuid.Parse(raw); err == nil {
			registeredBy = &parsed
		}
	}

	products, total, err := h.productService.List(registeredBy, params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(products, total, params))
}

// POST /products
func (h *ProductHandler) Register(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.userService.GetByID(userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	var req services.RegisterProductInput
	if !bindAndValidate(c, &req) {
		return
	}

	product, err := h.productService.Register(user, req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, product)
}

// GET /products/:id
func (h *ProductHandler) Get(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	product, err := h.productService.GetByID(productID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, product)
}

// GET /products/serial/:serial
func (h *ProductHandler) GetBySerial(c *gin.Context) {
	product, err := h.productService.GetBySerial(c.Param("serial"))
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, product)
}

// GET /products/:id/metadata
// Serves the exact canonical bytes; re-encoding would break the on-chain
// hash.
func (h *ProductHandler) Metadata(c *gin.Context) {
	productID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	metadata, err := h.metadataService.Get(productID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	c.Header("X-Metadata-Hash", metadata.Hash)
	c.Data(http.StatusOK, "application/json", metadata.Document)
}

// POST /listings
func (h *ProductHandler) CreateListing(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	user, err := h.userService.GetByID(userID)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	var req services.CreateListingInput
	if !bindAndValidate(c, &req) {
		return
	}

	listing, err := h.productService.CreateListing(user, req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.CreatedResponse(c, listing)
}

// GET /listings
func (h *ProductHandler) ListListings(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	listings, total, err := h.productService.ListListings(params)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}
	utils.PaginatedResponse(c, utils.CreatePaginationResult(listings, total, params))
}
