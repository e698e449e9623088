package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"chatpdf/internal/ai"
	appsvc "chatpdf/internal/app"
	"chatpdf/internal/bootstrap"
	"chatpdf/internal/cache"
	"chatpdf/internal/platform/cloudinary"
	"chatpdf/internal/platform/pinecone"
	"chatpdf/internal/platform/rabbitmq"
	"chatpdf/internal/repository"
	"chatpdf/internal/transport/http/handler"
	"chatpdf/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	chatRepo := repository.NewChatRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)

	fetcher := cloudinary.New(app.Config.Storage.CloudName, app.Config.Storage.TempDir)
	vectorIndex := pinecone.New(app.Config.Pinecone.Host, app.Config.Pinecone.APIKey)
	embedder := ai.NewEmbeddingClient(ai.EmbeddingConfig{
		BaseURL:   app.Config.Embedding.BaseURL,
		APIKey:    app.Config.Embedding.APIKey,
		Model:     app.Config.Embedding.Model,
		Dimension: app.Config.Embedding.Dimension,
	})
	generator := ai.NewGeminiClient(ai.GeminiConfig{
		BaseURL: app.Config.Gemini.BaseURL,
		APIKey:  app.Config.Gemini.APIKey,
		Model:   app.Config.Gemini.Model,
	})
	retryPolicy := ai.RetryPolicy{
		MaxRetries: app.Config.Gemini.MaxRetries,
		BaseDelay:  time.Duration(app.Config.Gemini.BaseDelayMS) * time.Millisecond,
	}

	publisher := rabbitmq.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	ingestService := appsvc.NewIngestService(fetcher, embedder, vectorIndex, app.Log)
	chatService := appsvc.NewChatService(
		chatRepo,
		messageRepo,
		publisher,
		historyCache,
		ingestService,
		embedder,
		vectorIndex,
		generator,
		retryPolicy,
		app.Config.Pinecone.TopK,
		app.Log,
	)

	authHandler := handler.NewAuthHandler(authService)
	chatHandler := handler.NewChatHandler(chatService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	chatGroup := v1.Group("/chats")
	chatGroup.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))
	chatGroup.POST("", chatHandler.CreateChat)
	chatGroup.GET("", chatHandler.ListChats)
	chatGroup.POST("/:id/messages", chatHandler.SendMessage)
	chatGroup.GET("/:id/history", chatHandler.GetHistory)
	chatGroup.DELETE("/:id", chatHandler.DeleteChat)

	return router
}
