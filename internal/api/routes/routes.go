package routes

import (
	"context"
	"time"

	"poll-service/internal/api/handlers"
	"poll-service/internal/api/middleware"
	"poll-service/internal/auth"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// PresenceReader reports the participants the shared presence store holds.
type PresenceReader interface {
	OnlineParticipants(ctx context.Context) ([]string, error)
}

// Dependencies are the collaborators the router wires into handlers.
type Dependencies struct {
	WS             *handlers.WSHandler
	Polls          handlers.PollService
	Tokens         *auth.TokenService
	Limiter        middleware.RateLimiter // optional
	Presence       PresenceReader         // optional
	AllowedOrigins []string
	Health         func() gin.H
}

type Router struct {
	engine      *gin.Engine
	wsHandler   *handlers.WSHandler
	pollHandler *handlers.PollHandler
	authHandler *handlers.AuthHandler
	rateLimitMW *middleware.RateLimitMiddleware
	authMW      *middleware.AuthMiddleware
	presence    PresenceReader
	health      func() gin.H
}

func NewRouter(deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi())

	r := &Router{
		engine:      engine,
		wsHandler:   deps.WS,
		pollHandler: handlers.NewPollHandler(deps.Polls),
		authHandler: handlers.NewAuthHandler(deps.Tokens),
		authMW:      middleware.NewAuthMiddleware(deps.Tokens),
		presence:    deps.Presence,
		health:      deps.Health,
	}
	if deps.Limiter != nil {
		r.rateLimitMW = middleware.NewRateLimitMiddleware(deps.Limiter)
	}
	return r
}

func (r *Router) SetupRoutes() {
	// Swagger documentation
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.engine.GET("/healthz", r.healthz)

	if r.wsHandler != nil {
		r.wsHandler.RegisterRoutes(r.engine)
	}

	public := r.engine.Group("/")
	if r.rateLimitMW != nil {
		public.Use(r.rateLimitMW.RateLimitIP(100, time.Minute)) // 100 requests per minute per IP
	}
	{
		public.POST("/teacher-login", r.authHandler.TeacherLogin)
		public.GET("/polls", r.pollHandler.ListPolls)
		public.GET("/polls/:username", r.pollHandler.ListPollsByOwner)
	}

	teacher := public.Group("/")
	teacher.Use(r.authMW.RequireRole(auth.RoleTeacher))
	{
		teacher.POST("/polls/:id/close", r.pollHandler.ClosePoll)
	}
}

func (r *Router) healthz(c *gin.Context) {
	body := gin.H{"status": "ok"}
	if r.health != nil {
		for k, v := range r.health() {
			body[k] = v
		}
	}
	if r.presence != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if names, err := r.presence.OnlineParticipants(ctx); err != nil {
			body["presence"] = "unavailable"
		} else {
			body["presence"] = len(names)
		}
	}
	c.JSON(200, body)
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
