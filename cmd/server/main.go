package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/abdikee/fejrul-islam-sub000/internal/config"
	"github.com/abdikee/fejrul-islam-sub000/internal/db"
	"github.com/abdikee/fejrul-islam-sub000/internal/goroutine"
	httpHandlers "github.com/abdikee/fejrul-islam-sub000/internal/http/handlers"
	httpRouter "github.com/abdikee/fejrul-islam-sub000/internal/http/router"
	"github.com/abdikee/fejrul-islam-sub000/internal/logger"
	"github.com/abdikee/fejrul-islam-sub000/internal/notify"
	"github.com/abdikee/fejrul-islam-sub000/internal/repository"
	"github.com/abdikee/fejrul-islam-sub000/internal/service"
	"github.com/abdikee/fejrul-islam-sub000/internal/ws"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Репозитории.
	userRepo := repository.NewUserRepository(dbConn)
	codeRepo := repository.NewVerificationRepository(dbConn)

	// Транспорты доставки кодов.
	emailSender := notify.NewEmailSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom)
	smsClient := notify.NewSMSClient(cfg.SMSAPIKey, cfg.SMSSender, cfg.SMSDryRun)
	dispatcher := notify.NewDispatcher(emailSender, smsClient)

	// Вебсокеты.
	hub := ws.NewHub()
	go hub.Run()

	// Сервисы.
	verificationService := service.NewVerificationService(codeRepo, userRepo, dispatcher)
	verificationService.SetEvents(hub)

	cleanupService := service.NewCleanupService(codeRepo, cfg.CleanupInterval)
	goroutine.SafeGoWithContext(ctx, cleanupService.Run)

	// HTTP хэндлеры.
	verificationHandler := httpHandlers.NewVerificationHandler(verificationService)
	profileHandler := httpHandlers.NewProfileHandler(userRepo)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, verificationHandler, profileHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
