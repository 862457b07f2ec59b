package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/vericall/vericall/internal/config"
	"github.com/vericall/vericall/internal/database"
	"github.com/vericall/vericall/internal/handlers"
	"github.com/vericall/vericall/internal/notify"
	"github.com/vericall/vericall/internal/session"
	"github.com/vericall/vericall/internal/signaling"
	"github.com/vericall/vericall/internal/turn"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the verification call server (HTTP API, signaling relay, TURN)",
	RunE:  runServe,
}

// sessionGate adapts the session store to what the signaling relay needs.
type sessionGate struct {
	store *session.Store
}

func (g sessionGate) Joinable(meetingID string) error {
	return g.store.Joinable(meetingID)
}

func (g sessionGate) Start(meetingID, agentID string) error {
	_, err := g.store.Start(meetingID, agentID)
	return err
}

func (g sessionGate) EndIfOngoing(meetingID string) {
	g.store.EndIfOngoing(meetingID)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	db, err := database.Open(cfg.DBFile)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}

	turnServer, err := turn.Start(cfg.TURNPort, cfg.TURNRealm, logger)
	if err != nil {
		return fmt.Errorf("turn: %w", err)
	}
	defer turnServer.Close()

	sessions := session.NewStore(db, cfg.SessionTTL)
	hub := signaling.NewHub(sessionGate{store: sessions}, logger)
	notifier := notify.NewNotifier(logger)

	h := handlers.New(cfg, db, sessions, hub, notifier, turnServer, logger)
	router := setupRouter(h, cfg, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr, "public_url", cfg.PublicURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func setupRouter(h *handlers.Handlers, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	if os.Getenv("GIN_MODE") == "" && cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Cache-Control"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// Agent accounts.
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.GET("/profile", h.AuthMiddleware(), h.Profile)

		// Customer verification flow.
		verification := api.Group("/verification")
		{
			verification.POST("/profile", h.SubmitProfile)
			verification.POST("/schedule", h.ScheduleMeeting)
			verification.GET("/meeting/:meeting_id", h.GetMeeting)
			verification.POST("/meeting/:meeting_id/notify", h.NotifyAdmin)
			verification.POST("/meeting/:meeting_id/start", h.AuthMiddleware(), h.StartMeeting)
			verification.POST("/meeting/:meeting_id/end", h.AuthMiddleware(), h.EndMeeting)
		}

		// Agent-side streams and push.
		api.GET("/events", h.AuthMiddleware(), h.StreamEvents)
		api.GET("/push/key", h.GetVAPIDPublicKey)
		api.POST("/push/subscribe", h.AuthMiddleware(), h.SubscribePush)
		api.POST("/push/unsubscribe", h.AuthMiddleware(), h.UnsubscribePush)

		api.GET("/turn-config", h.GetTURNConfig)
	}

	router.GET("/ws", h.HandleWebSocket)

	return router
}

// requestLogger logs completed requests through slog. The signaling and SSE
// endpoints are skipped: they are long-lived and logged by their handlers.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/ws" || path == "/api/events" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}
