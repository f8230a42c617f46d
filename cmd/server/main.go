package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ammar1510/docconnect/internal/api"
	"github.com/ammar1510/docconnect/internal/auth"
	"github.com/ammar1510/docconnect/internal/chat"
	"github.com/ammar1510/docconnect/internal/config"
	"github.com/ammar1510/docconnect/internal/database"
	"github.com/ammar1510/docconnect/internal/logger"
	"github.com/ammar1510/docconnect/internal/messaging"
	"github.com/ammar1510/docconnect/internal/notification"
	"github.com/ammar1510/docconnect/internal/presence"
	"github.com/ammar1510/docconnect/internal/queue"
	internalWs "github.com/ammar1510/docconnect/internal/websocket"
)

var log = logger.New("server")

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	// Set up logging to file
	logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Fatal("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	// Configure log to write to both file and console
	logger.Setup(io.MultiWriter(os.Stdout, logFile), cfg.LogLevel)
	log.Info("Server logging initialized - output directed to console and %s", cfg.Server.LogFile)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	auth.Init([]byte(cfg.JWT.Secret), cfg.JWT.TTL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create database connection using factory
	db, err := database.NewDatabase(ctx, database.DatabaseType(cfg.Database.Type), cfg.Database.URL)
	if err != nil {
		log.Fatal("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Connected to %s database successfully", cfg.Database.Type)

	offline, closeQueue, err := openQueue(ctx, cfg.Queue)
	if err != nil {
		log.Fatal("Failed to open offline queue: %v", err)
	}
	defer closeQueue()

	// Realtime core
	manager := internalWs.NewManager()
	tracker := presence.NewTracker(presence.NewMemoryRegistry(), db, manager.PresenceBroadcaster())
	notifications := notification.NewService(db, tracker, manager, offline)
	convs := messaging.NewConversations(db, db)
	msgs := messaging.NewMessages(db, db, convs)
	chatSvc := chat.NewService(convs, msgs, db, tracker, manager, notifications)
	gateway := internalWs.NewGateway(manager, tracker, chatSvc, notifications, db,
		internalWs.OptionsFrom(cfg.WebSocket, cfg.Server.AllowedOrigins))

	go manager.Run(ctx)

	// Initialize router with default middleware (logger and recovery)
	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api.RegisterRoutes(router, api.Handlers{
		Auth:          api.NewAuthHandler(db),
		Conversations: api.NewConversationHandler(convs, chatSvc),
		Messages:      api.NewMessageHandler(msgs, chatSvc),
		Notifications: api.NewNotificationHandler(notifications),
		Presence:      api.NewPresenceHandler(tracker),
	})

	// The socket authenticates itself so browsers can pass the token in the URL
	router.GET("/ws", gateway.HandleWebSocket)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Info("Server starting on port %s", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	// Give the server 5 seconds to finish processing remaining requests
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}

	log.Info("Server exited properly")
}

// openQueue selects the offline queue backend
func openQueue(ctx context.Context, cfg config.Queue) (queue.Queue, func(), error) {
	if cfg.Backend == "redis" {
		q, err := queue.NewRedisQueue(ctx, cfg.RedisURL, cfg.Size)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { q.Close() }, nil
	}
	log.Info("Offline queue held in memory (%d per user)", cfg.Size)
	return queue.NewMemoryQueue(cfg.Size), func() {}, nil
}
