// internal/handlers/auth.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

type AuthHandler struct {
	userService *services.UserService
	cfg         *config.Config
}

func NewAuthHandler(userService *services.UserService, cfg *config.Config) *AuthHandler {
	return &AuthHandler{userService: userService, cfg: cfg}
}

// POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterUserInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.userService.Register(req)
	if err != nil {
		utils.AppErrorResponse(c, err)
		return
	}

	token, err := utils.GenerateJWT(user.ID, user.Username, string(user.UserType), user.PublicKey, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to issue token")
		return
	}

	utils.CreatedResponse(c, gin.H{
		"user":  user,
		"token": token,
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.userService.Authenticate(req.Username, req.Password)
	if err != nil {
		utils.UnauthorizedResponse(c, "Invalid credentials")
		return
	}

	token, err := utils.GenerateJWT(user.ID, user.Username, string(user.UserType), user.PublicKey, h.cfg.JWT.AccessTokenTTL)
	if err != nil {
		utils.InternalErrorResponse(c, "Failed to issue token")
		return
	}

	utils.SuccessResponse(c, gin.H{
		"user":  user,
		"token": token,
	})
}

// GET /auth/me
func (h *AuthHandler) Me(c *gin.Context) {
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
	utils.SuccessResponse(c, user)
}
