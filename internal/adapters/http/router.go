// Package http wires the gin router: the WebSocket signaling upgrade
// route and the liveness/metrics introspection surface (supplemented from
// PufferBlow-media-sfu's healthz/metrics handlers; see SPEC_FULL.md).
// Grounded on the teacher's internal/adapters/http/router.go for the
// gin-contrib/sessions cookie store and client-token cookie pattern.
package http

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/intercom/internal/adapters/ws"
	"github.com/dkeye/intercom/internal/config"
	"github.com/dkeye/intercom/internal/core"
	"github.com/dkeye/intercom/internal/signaling"
)

const clientTokenCookie = "ct"

func clientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("session_id", token)
		c.Next()
	}
}

// SetupRouter builds the gin engine: the signaling WS endpoint plus
// /healthz and /metrics. sig is the already-constructed Signaling Layer;
// wiring starts the moment a connection is accepted.
func SetupRouter(cfg *config.Config, sig *signaling.Server) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.ServerSecret))
	r.Use(sessions.Sessions("intercom", store))
	r.Use(clientTokenMiddleware())

	r.GET("/healthz", healthzHandler)
	r.GET("/metrics", metricsHandler(sig))

	r.GET("/signal", func(c *gin.Context) {
		handleSignalUpgrade(cfg, sig, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router configured")
	return r
}

func healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func metricsHandler(sig *signaling.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sessions": sig.SessionCount()})
	}
}

func handleSignalUpgrade(cfg *config.Config, sig *signaling.Server, c *gin.Context) {
	sid := core.SessionID(c.GetString("session_id"))

	wsConn, err := ws.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade failed")
		return
	}

	conn := ws.NewConn(wsConn, cfg.WriteTimeout)
	sig.Accept(sid, conn)

	stop := make(chan struct{})
	go conn.WritePump()
	go conn.PingLoop(cfg.PingPeriod, stop)
	conn.ReadPump(cfg.ReadLimit, cfg.PongWait, func(frame []byte) {
		sig.Inbound(sid, frame)
	}, func() {
		close(stop)
		sig.Disconnect(sid)
	})
}
