package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/teamhub/callwire/internal/adapters/signal"
	"github.com/teamhub/callwire/internal/app"
	"github.com/teamhub/callwire/internal/app/sfu"
	"github.com/teamhub/callwire/internal/config"
	"github.com/teamhub/callwire/internal/domain"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller, reg *app.SessionRegistry, bridge *sfu.MediaUnitBridge) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("CallwireSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/call-status", func(c *gin.Context) {
		group := domain.GroupID(c.Query("groupId"))
		if group == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "groupId required"})
			return
		}
		snap, ok := reg.Get(group)
		if !ok {
			c.JSON(http.StatusOK, gin.H{
				"active":       false,
				"initiator":    nil,
				"participants": []domain.UserID{},
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"active":       true,
			"initiator":    snap.InitiatorID,
			"participants": snap.Participants,
		})
	})

	api.GET("/calls", func(c *gin.Context) {
		c.JSON(http.StatusOK, reg.ActiveGroups())
	})

	api.GET("/router-rtp", func(c *gin.Context) {
		caps, err := bridge.RouterRTPCapabilities(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("router rtp passthrough")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "media unit unavailable"})
			return
		}
		c.Data(http.StatusOK, "application/json", caps)
	})

	return r
}
