package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	"fleetchat/internal/adapter/api"
	"fleetchat/internal/adapter/api/handler"
	apimiddleware "fleetchat/internal/adapter/api/middleware"
	"fleetchat/internal/adapter/api/router"
	"fleetchat/internal/adapter/repository"
	"fleetchat/internal/domain/service"
	"fleetchat/internal/infrastructure/fcm"
	"fleetchat/internal/infrastructure/presence"
	"fleetchat/internal/infrastructure/ratelimit"
	"fleetchat/internal/infrastructure/websocket"
	"fleetchat/internal/usecase"
	"fleetchat/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption

	// Service account comes from an env var in production, from a file
	// path in local development.
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		if _, err := os.Stat(serviceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", serviceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", serviceAccountPath)
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	userRepo := repository.NewFirestoreUserRepository(firestoreClient)
	convRepo := repository.NewFirestoreConversationRepository(firestoreClient)
	groupRepo := repository.NewFirestoreGroupRepository(firestoreClient)
	messageRepo := repository.NewFirestoreMessageRepository(firestoreClient)

	registry := presence.NewRegistry()
	wsManager := websocket.NewManager(registry)
	wsManager.Start(ctx)

	var dispatcher service.NotificationDispatcher
	if cfg.FirebaseProject != "" {
		fcmDispatcher, err := fcm.NewDispatcher(ctx, firebaseApp, userRepo, cfg.PushTimeout)
		if err != nil {
			log.Fatalf("Failed to initialize FCM dispatcher: %v", err)
		}
		dispatcher = fcmDispatcher
	} else {
		log.Printf("No Firebase project configured; push notifications disabled")
		dispatcher = service.NoopDispatcher{}
	}

	directoryUseCase := usecase.NewDirectoryUseCase(userRepo, convRepo, groupRepo, messageRepo, registry, wsManager, cfg.AdminPageSize, cfg.MemberPageSize)
	lifecycleUseCase := usecase.NewLifecycleUseCase(userRepo, convRepo, registry, wsManager, dispatcher, directoryUseCase)
	messageUseCase := usecase.NewMessageUseCase(userRepo, convRepo, groupRepo, messageRepo, registry, wsManager, dispatcher, directoryUseCase, usecase.DefaultUnreadPolicy(), cfg.BrandTitle)
	groupUseCase := usecase.NewGroupUseCase(userRepo, convRepo, groupRepo, messageRepo, wsManager, dispatcher, directoryUseCase)

	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	wsEventHandler := handler.NewWSEventHandler(lifecycleUseCase, messageUseCase, directoryUseCase, groupUseCase, limiter)
	wsManager.SetHandler(wsEventHandler)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(cfg.JWTSecret)
	adminMiddleware := apimiddleware.NewAdminMiddleware(userRepo)
	rateLimitMiddleware := apimiddleware.NewRateLimitMiddleware(limiter)

	handlers := router.Handlers{
		Health:    handler.NewHealthHandler(firestoreClient),
		Auth:      handler.NewAuthHandler(userRepo, cfg.JWTSecret, time.Duration(cfg.JWTExpiry)*time.Second),
		Chat:      handler.NewChatHandler(messageUseCase, directoryUseCase, lifecycleUseCase),
		Group:     handler.NewGroupHandler(groupUseCase, messageUseCase),
		WebSocket: handler.NewWebSocketHandler(wsManager),
	}

	router.Setup(e, handlers, authMiddleware, adminMiddleware, rateLimitMiddleware)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}
