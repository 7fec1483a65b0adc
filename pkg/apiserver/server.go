package apiserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/commutealarm/commutealarm/pkg/apiserver/handlers"
	"github.com/commutealarm/commutealarm/pkg/apiserver/middleware"
	"github.com/commutealarm/commutealarm/pkg/auth"
	"github.com/commutealarm/commutealarm/pkg/clock"
	"github.com/commutealarm/commutealarm/pkg/config"
)

// Services are the application components the HTTP layer calls into.
type Services struct {
	Schedules handlers.ScheduleService
	Outbox    handlers.OutboxLister
	Zone      clock.Zone
}

type Server struct {
	router   *gin.Engine
	services Services
	tokens   *auth.MemberTokenManager
	cfg      *config.Config
	logger   *zap.Logger
}

func NewServer(services Services, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		services: services,
		tokens:   auth.NewMemberTokenManager([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, cfg.Auth.Issuer),
		cfg:      cfg,
		logger:   logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.CORS())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	{
		member := api.Group("")
		member.Use(middleware.Auth(s.tokens))

		scheduleHandler := handlers.NewScheduleHandler(s.services.Schedules, s.services.Zone, s.logger)
		member.POST("/quick-schedules", scheduleHandler.Create)
		member.GET("/schedules", scheduleHandler.List)
		member.PATCH("/schedules/:id/alarms/:kind", scheduleHandler.SwitchAlarm)
		member.PUT("/schedules/:id/repeat", scheduleHandler.UpdateRepeat)

		admin := api.Group("/outbox")
		admin.Use(middleware.AdminToken(s.cfg.Auth.AdminToken))

		outboxHandler := handlers.NewOutboxHandler(s.services.Outbox, s.logger)
		admin.GET("/messages", outboxHandler.List)
	}

	s.router = r
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

// Tokens exposes the member token manager, mainly for issuing test tokens.
func (s *Server) Tokens() *auth.MemberTokenManager {
	return s.tokens
}
