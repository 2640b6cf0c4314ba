package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/MCLifeLeader/chat-service/internal/handler"
	"github.com/MCLifeLeader/chat-service/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	config   RouterConfig
	healthH  *handler.HealthHandler
	sessionH Handler
	messageH Handler
	outboxH  Handler
}

func NewRouter(
	config RouterConfig,
	healthH *handler.HealthHandler,
	sessionH Handler,
	messageH Handler,
	outboxH Handler,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:   gin.New(),
		config:   config,
		healthH:  healthH,
		sessionH: sessionH,
		messageH: messageH,
		outboxH:  outboxH,
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  r.config.RateLimit,
		Burst: r.config.RateBurst,
	})

	r.engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		middleware.CORS(r.config.CORSConfig),
		limiter.RateLimit(),
	)

	r.healthH.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	r.sessionH.RegisterRoutes(api)
	r.messageH.RegisterRoutes(api)
	r.outboxH.RegisterRoutes(api)
}
