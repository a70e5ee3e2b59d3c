package routes

import (
	"github.com/gin-gonic/gin"

	"dutysync/internal/middleware"
)

func WebSocketRoutes(r *gin.Engine, deps Deps) {
	ws := r.Group("/ws")
	{
		ws.GET("/driver/location", middleware.RequireAuthWithRole("driver"), deps.Location.DriverLocationWS)
		ws.GET("/driver/events", middleware.RequireAuthWithRole("driver"), deps.Location.DriverEventsWS)
		ws.GET("/admin/positions", middleware.RequireAuthWithRole("admin"), deps.Location.AdminPositionsWS)
	}
}
