package router

import (
	"net/http"
	"time"

	"mpesasend/config"
	"mpesasend/internal/cache"
	"mpesasend/internal/handler"
	"mpesasend/internal/middleware"
	"mpesasend/internal/repository"
	"mpesasend/internal/service"
	"mpesasend/pkg/daraja"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, statuses cache.StatusStore, logger *zap.SugaredLogger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, 60*time.Second)))

	paymentRepo := repository.NewPaymentRepository(db)

	client := daraja.NewClient(daraja.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		Passkey:        cfg.Mpesa.Passkey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
		CacheTokens:    cfg.Mpesa.CacheTokens,
	}, nil, logger)

	paymentSvc := service.NewPaymentService(client, paymentRepo, statuses, logger)

	paymentHandler := handler.NewPaymentHandler(paymentSvc, logger)
	webhookHandler := handler.NewMpesaWebhookHandler(paymentSvc, logger)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	{
		api.POST("/payments", paymentHandler.Initiate)
		api.GET("/payments", paymentHandler.List)
		api.GET("/payments/:checkoutRequestID", paymentHandler.Status)
		api.POST("/webhooks/mpesa", webhookHandler.Handle)
	}

	return r
}
