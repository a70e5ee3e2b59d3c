package routes

import (
	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dutysync/internal/controllers"
	"dutysync/internal/metrics"
	"dutysync/internal/store"
)

// Deps carries the wired core into the route groups.
type Deps struct {
	Duty     *controllers.DutyController
	Location *controllers.LocationController
	Store    store.Store
}

func SetupRouter(deps Deps) *gin.Engine {
	r := gin.New()

	// Middleware goes on before the groups: gin snapshots each route's
	// handler chain at registration time.
	r.Use(gin.Recovery())
	r.Use(ginlog.SetLogger(ginlog.WithLogger(func(_ *gin.Context, l zerolog.Logger) zerolog.Logger {
		return l.With().Str("service", "dutysync").Logger()
	})))

	AuthRoutes(r, deps)
	AdminRoutes(r, deps)
	DriverRoutes(r, deps)
	WebSocketRoutes(r, deps)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	return r
}
