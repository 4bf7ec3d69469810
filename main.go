package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"messenger-service/internal/auth"
	"messenger-service/internal/config"
	"messenger-service/internal/db"
	"messenger-service/internal/delivery"
	"messenger-service/internal/handlers"
	"messenger-service/internal/middleware"
	"messenger-service/internal/observability"
	"messenger-service/internal/rabbitmq"
	"messenger-service/internal/repositories"
	"messenger-service/internal/telemetry"
	"messenger-service/internal/ws"
)

const serviceName = "messenger-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Printf("tracing shutdown: %v", err)
		}
	}()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	defer publisher.Close()
	log.Printf("event publisher mode=%s", rabbitmq.PublisherMode(publisher))
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, "audit.messenger", serviceName, cfg.Environment)

	verifier, err := auth.NewService(ctx, auth.Config{Secret: cfg.AuthSecret, TokenExpiry: cfg.TokenExpiry})
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	userRepo := repositories.NewUserRepo(database)
	chatRepo := repositories.NewChatRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	coordinator := delivery.NewCoordinator(chatRepo, messageRepo)

	hub := ws.NewHub()

	chatHandler := handlers.NewChatHandler(chatRepo, userRepo, audit)
	messageHandler := handlers.NewMessageHandler(coordinator, chatRepo, messageRepo, hub, audit)
	wsHandler := ws.NewHandler(hub, verifier, userRepo)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(verifier)

	router.POST("/chats/direct", authMiddleware, chatHandler.StartDirectChat)
	router.GET("/chats", authMiddleware, chatHandler.ListChats)
	router.POST("/chats/group", authMiddleware, chatHandler.CreateGroupChat)
	router.PUT("/chats/:chat_id/name", authMiddleware, chatHandler.RenameGroup)
	router.PUT("/chats/:chat_id/image", authMiddleware, chatHandler.UpdateGroupImage)
	router.POST("/chats/:chat_id/members", authMiddleware, chatHandler.AddMembers)
	router.DELETE("/chats/:chat_id/members/:user_id", authMiddleware, chatHandler.RemoveMember)
	router.DELETE("/chats/:chat_id/me", authMiddleware, chatHandler.HideChat)
	router.POST("/chats/:chat_id/read", authMiddleware, messageHandler.MarkRead)
	router.POST("/chats/:chat_id/messages", authMiddleware, messageHandler.PostMessage)
	router.GET("/chats/:chat_id/messages", authMiddleware, messageHandler.ListMessages)
	router.DELETE("/chats/:chat_id/messages/:message_id/me", authMiddleware, messageHandler.HideMessage)

	router.GET("/ws", wsHandler.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("listening on %s", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	log.Printf("server stopped")
}
