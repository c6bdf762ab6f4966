// internal/router/router.go
package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chainproof/provenance-backend/internal/chain"
	"github.com/chainproof/provenance-backend/internal/config"
	"github.com/chainproof/provenance-backend/internal/events"
	"github.com/chainproof/provenance-backend/internal/handlers"
	"github.com/chainproof/provenance-backend/internal/middleware"
	"github.com/chainproof/provenance-backend/internal/services"
	"github.com/chainproof/provenance-backend/internal/utils"
)

func Initialize(db *gorm.DB, client chain.Client, broker *events.StreamBroker, cfg *config.Config) (*gin.Engine, error) {
	// Initialize services
	ledgerService := services.NewLedgerService()
	userService := services.NewUserService(db)
	notificationService := services.NewNotificationService(db, broker)
	codeService := services.NewCodeService(15 * time.Minute)
	metadataService, err := services.NewMetadataService(db, cfg)
	if err != nil {
		return nil, err
	}
	productService := services.NewProductService(db, metadataService, cfg.Chain.ProgramID)
	transferService := services.NewTransferService(db, ledgerService, userService, notificationService, codeService, client, cfg.Chain.ProgramID)
	purchaseService := services.NewPurchaseService(db, ledgerService, userService, notificationService, cfg.Chain.ProgramID)
	paymentService := services.NewPaymentService(db, purchaseService, cfg)
	validationService := services.NewValidationService(db, ledgerService, client, cfg.Chain.Commitment, cfg.Chain.ProgramID)
	syncService := services.NewSyncService(db, userService, metadataService, nil, client, cfg.Chain.ProgramID)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService, cfg)
	productHandler := handlers.NewProductHandler(productService, metadataService, userService)
	transferHandler := handlers.NewTransferHandler(transferService)
	purchaseHandler := handlers.NewPurchaseHandler(purchaseService, paymentService)
	validationHandler := handlers.NewValidationHandler(validationService)
	notificationHandler := handlers.NewNotificationHandler(notificationService, broker)
	chainHandler := handlers.NewChainHandler(client, syncService, cfg)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.Frontend.BaseURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	v1 := r.Group("/api/v1")
	{
		auth := v1.Group("/auth")
		auth.Use(middleware.AuthRateLimit())
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/me", middleware.AuthRequired(), authHandler.Me)
		}

		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.POST("", middleware.AuthRequired(), middleware.ManufacturerRequired(), productHandler.Register)
			products.GET("/serial/:serial", productHandler.GetBySerial)
			products.GET("/:id", productHandler.Get)
			products.GET("/:id/metadata", productHandler.Metadata)
			products.GET("/:id/chain", validationHandler.ProductChain)
			products.GET("/:id/current-owner", validationHandler.CurrentOwner)
		}

		listings := v1.Group("/listings")
		{
			listings.GET("", productHandler.ListListings)
			listings.POST("", middleware.AuthRequired(), productHandler.CreateListing)
		}

		transfers := v1.Group("/transfers")
		{
			transfers.POST("/propose", middleware.AuthRequired(), transferHandler.Propose)
			// Accept works for buyers who have not registered yet.
			transfers.POST("/accept", middleware.OptionalAuth(), transferHandler.Accept)
			transfers.POST("/execute", middleware.AuthRequired(), transferHandler.Execute)
			transfers.POST("/cancel", middleware.AuthRequired(), transferHandler.Cancel)
			transfers.POST("/end-tracking", middleware.AuthRequired(), transferHandler.EndTracking)
			transfers.POST("/check-ownership", transferHandler.CheckOwnership)
			transfers.POST("/ownership-history", transferHandler.OwnershipHistory)
		}

		validate := v1.Group("/validate")
		{
			validate.POST("/transaction", validationHandler.ValidateTransaction)
			validate.POST("/ownership", validationHandler.ValidateOwnership)
			validate.POST("/product-registration", validationHandler.ValidateProductRegistration)
		}

		purchases := v1.Group("/purchases")
		purchases.Use(middleware.AuthRequired())
		{
			purchases.POST("/propose", purchaseHandler.Propose)
			purchases.POST("/:id/accept", purchaseHandler.Accept)
			purchases.POST("/:id/reject", purchaseHandler.Reject)
			purchases.POST("/:id/pay", purchaseHandler.Pay)
			purchases.POST("/:id/buyer-accept", purchaseHandler.BuyerAccept)
			purchases.POST("/:id/buyer-cancel", purchaseHandler.BuyerCancel)
			purchases.POST("/:id/finalize", purchaseHandler.Finalize)
			purchases.POST("/:id/payment-intent", purchaseHandler.CreatePaymentIntent)
			purchases.GET("/requests/buyer", purchaseHandler.BuyerRequests)
			purchases.GET("/requests/seller", purchaseHandler.SellerRequests)
		}

		notifications := v1.Group("/notifications")
		notifications.Use(middleware.AuthRequired())
		{
			notifications.GET("", notificationHandler.List)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.GET("/stream", notificationHandler.Stream)
			notifications.POST("/:id/read", notificationHandler.MarkRead)
		}

		chainGroup := v1.Group("/chain")
		{
			chainGroup.POST("/airdrop", chainHandler.Airdrop)
			chainGroup.POST("/sync", middleware.AuthRequired(), middleware.AdminRequired(), chainHandler.Sync)
		}
	}

	return r, nil
}
