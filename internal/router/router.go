package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/kmc/ehr-api/internal/handler"
	"github.com/kmc/ehr-api/internal/handler/prometheus"
	"github.com/kmc/ehr-api/internal/middleware"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type RouterConfig struct {
	Mode           string
	RateLimit      rate.Limit
	RateBurst      int
	RequestTimeout time.Duration
	MaxBodyBytes   int64
	CORSConfig     middleware.CORSConfig
}

// Router wires the API under /api/v1. Health and token routes are
// public; everything else goes through auth when auth is set.
type Router struct {
	engine  *gin.Engine
	auth    *middleware.AuthMiddleware
	metrics *prometheus.Handler
	health  Handler
	public  []Handler
	secured []Handler
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	metrics *prometheus.Handler,
	health Handler,
	public []Handler,
	secured []Handler,
	config RouterConfig,
) *Router {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	middleware.RegisterValidators()

	engine := gin.New()
	// Business ids contain "/" and arrive percent-encoded.
	engine.UseRawPath = true
	engine.UnescapePathValues = true

	r := &Router{
		engine:  engine,
		auth:    auth,
		metrics: metrics,
		health:  health,
		public:  public,
		secured: secured,
	}

	engine.Use(
		middleware.RequestID(),
		middleware.Recovery(),
		middleware.Logger(),
		middleware.ErrorHandler(),
	)
	if metrics != nil {
		engine.Use(metrics.Middleware())
	}
	engine.Use(
		middleware.SecurityHeaders(),
		middleware.CORS(config.CORSConfig),
		middleware.SizeLimit(middleware.SizeLimitConfig{MaxBodySize: config.MaxBodyBytes, MaxHeaderSize: 1 << 14}),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
	)
	if config.RateLimit > 0 {
		engine.Use(middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		}).RateLimit())
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(404, handler.NewErrorResponse("route not found"))
	})

	return r
}

func (r *Router) Setup() {
	if r.metrics != nil {
		r.engine.GET("/metrics", r.metrics.Handler())
	}

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	if r.health != nil {
		r.health.RegisterRoutes(api)
		if r.metrics != nil {
			api.GET("/health/metrics", r.metrics.Handler())
		}
	}

	for _, h := range r.public {
		h.RegisterRoutes(api)
	}

	protected := api.Group("")
	if r.auth != nil {
		protected.Use(r.auth.Authenticate())
	}
	for _, h := range r.secured {
		h.RegisterRoutes(protected)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
