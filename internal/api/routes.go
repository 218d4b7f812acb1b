package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/roach88/greynet/internal/telemetry"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// Gatherer backs GET /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer

	// TracerProvider traces every request. Nil uses the global provider.
	TracerProvider trace.TracerProvider

	// MutationLimiter throttles POST and DELETE on /v1/facts. Nil means
	// unlimited.
	MutationLimiter *rate.Limiter
}

// NewRouter builds the HTTP router:
//
//	GET    /v1/score
//	GET    /v1/stats
//	GET    /v1/customers/:id/transactions
//	GET    /v1/constraints
//	GET    /v1/constraints/:name/matches
//	POST   /v1/facts
//	DELETE /v1/facts/:type/:id
//	GET    /metrics
//	GET    /healthz
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	var otelOpts []otelgin.Option
	if cfg.TracerProvider != nil {
		otelOpts = append(otelOpts, otelgin.WithTracerProvider(cfg.TracerProvider))
	}
	router.Use(otelgin.Middleware(telemetry.ServiceName, otelOpts...))

	var mutation []gin.HandlerFunc
	if cfg.MutationLimiter != nil {
		mutation = append(mutation, RateLimit(cfg.MutationLimiter))
	}
	RegisterRoutes(router.Group("/v1"), h, mutation...)

	router.GET("/healthz", h.HandleHealth)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// RegisterRoutes registers the evaluator routes on rg, typically /v1.
// mutation runs before the fact insert and retract handlers.
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers, mutation ...gin.HandlerFunc) {
	rg.GET("/score", h.HandleScore)
	rg.GET("/stats", h.HandleStats)
	rg.GET("/customers/:id/transactions", h.HandleCustomerTransactions)

	constraints := rg.Group("/constraints")
	{
		constraints.GET("", h.HandleConstraints)
		constraints.GET("/:name/matches", h.HandleMatches)
	}

	facts := rg.Group("/facts", mutation...)
	{
		facts.POST("", h.HandleInsertFacts)
		facts.DELETE("/:type/:id", h.HandleRetractFact)
	}
}

// RateLimit rejects requests with 429 once l has no tokens left.
func RateLimit(l *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "mutation rate exceeded"})
			return
		}
		c.Next()
	}
}
