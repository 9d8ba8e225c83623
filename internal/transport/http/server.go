package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/bonfirelabs/bonfire-server/internal/auth"
	"github.com/bonfirelabs/bonfire-server/internal/config"
	"github.com/bonfirelabs/bonfire-server/internal/core"
	"github.com/bonfirelabs/bonfire-server/internal/store"
)

// NewServer builds the HTTP server: health check, WebSocket endpoint, and
// the authenticated REST read surface.
func NewServer(hub *core.Hub, verifier auth.Verifier, st store.Store, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(hub, verifier, logger)))

	roomHandlers := NewRoomHandlers(st, logger)
	api := router.Group("/api", AuthMiddleware(verifier, logger))
	api.GET("/rooms", roomHandlers.ListRooms)
	api.GET("/rooms/:id/messages", roomHandlers.ListMessages)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
