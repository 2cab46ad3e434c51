package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"messaging-service/internal/auth"
	"messaging-service/internal/config"
	"messaging-service/internal/db"
	grpcserver "messaging-service/internal/grpc"
	"messaging-service/internal/handlers"
	"messaging-service/internal/logging"
	"messaging-service/internal/messaging"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/presence"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.ServiceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	database, err := db.Connect(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		return err
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	mode, reason := rabbitmq.Status(publisher)
	logger.Info("event publisher ready", "mode", mode, "noop_reason", reason)
	audit := telemetry.NewAuditEmitter(publisher, "audit.messaging", cfg.ServiceName, cfg.Environment, logger)

	codec, err := auth.NewCodec(cfg.AuthTokenKey, cfg.AuthTokenTTL)
	if err != nil {
		return err
	}

	hub := ws.NewHub(presence.NewLocal(observability.SetOnlineUsers), logger)
	service := messaging.New(messaging.Config{
		Conversations: repositories.NewConversationRepo(database),
		Messages:      repositories.NewMessageRepo(database),
		Profiles:      repositories.NewProfileRepo(database),
		Fanout:        hub,
		Audit:         audit,
		Logger:        logger,
	})
	wsHandler := ws.NewHandler(ws.HandlerConfig{
		Hub:            hub,
		Dispatcher:     ws.NewDispatcher(hub, service, logger),
		Verifier:       codec,
		Profiles:       service,
		SendBuffer:     cfg.WSSendBuffer,
		AllowedOrigins: cfg.AllowedOrigin,
		Logger:         logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(observability.RequestIDMiddleware())
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(logging.GinLogger(logger))

	api := router.Group("/api/messages", middleware.AuthMiddleware(codec, service, logger))
	handlers.NewMessagesHandler(service).Register(api)

	router.GET("/ws", wsHandler.Handle)
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	handlers.RegisterDebugRoutes(router, audit, hub, cfg.DebugRoutes)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	health := grpcserver.NewHealthServer(database, 15*time.Second, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("grpc health server listening", "addr", cfg.GRPCAddr)
		return health.Serve(lis)
	})
	g.Go(func() error {
		health.Watch(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		health.Stop()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
