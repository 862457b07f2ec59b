package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vericall/vericall/internal/config"
	"github.com/vericall/vericall/internal/notify"
	"github.com/vericall/vericall/internal/session"
	"github.com/vericall/vericall/internal/signaling"
	"github.com/vericall/vericall/internal/turn"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type Handlers struct {
	config   *config.Config
	db       *gorm.DB
	sessions *session.Store
	hub      *signaling.Hub
	notifier *notify.Notifier
	turn     *turn.Server

	wsUpgrader websocket.Upgrader
	logger     *slog.Logger
	nowFn      func() time.Time
}

func New(
	cfg *config.Config,
	db *gorm.DB,
	sessions *session.Store,
	hub *signaling.Hub,
	notifier *notify.Notifier,
	turnServer *turn.Server,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		config:   cfg,
		db:       db,
		sessions: sessions,
		hub:      hub,
		notifier: notifier,
		turn:     turnServer,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
		nowFn:  time.Now,
	}
}
