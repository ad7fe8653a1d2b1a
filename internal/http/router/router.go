package router

import (
	"github.com/gin-gonic/gin"

	"github.com/abdikee/fejrul-islam-sub000/internal/config"
	"github.com/abdikee/fejrul-islam-sub000/internal/http/handlers"
	"github.com/abdikee/fejrul-islam-sub000/internal/http/middleware"
	"github.com/abdikee/fejrul-islam-sub000/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	verificationHandler *handlers.VerificationHandler,
	profileHandler *handlers.ProfileHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Вебсокет авторизуется токеном в query, поэтому живёт вне общего middleware.
	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/profile", profileHandler.GetMe)

		// Верификация: отправка и проверка кодов дополнительно ограничены
		// по частоте с одного IP, поверх троттлинга выдачи в БД.
		verification := protected.Group("/verification")
		rateLimit := middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod)
		{
			verification.POST("/email/send", rateLimit, verificationHandler.SendEmailCode)
			verification.POST("/phone/send", rateLimit, verificationHandler.SendPhoneCode)
			verification.POST("/verify", rateLimit, verificationHandler.Verify)
			verification.GET("/status", verificationHandler.Status)
			verification.GET("/phone/available", verificationHandler.PhoneAvailable)
			verification.POST("/phone/change", verificationHandler.ChangePhone)
		}
	}

	return r
}
