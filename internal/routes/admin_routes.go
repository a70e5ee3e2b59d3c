package routes

import (
	"github.com/gin-gonic/gin"

	"dutysync/internal/controllers"
	"dutysync/internal/middleware"
)

func AdminRoutes(r *gin.Engine, deps Deps) {
	admin := r.Group("/admin")
	admin.Use(middleware.RequireAuthWithRole("admin"))
	{
		admin.POST("/duties", deps.Duty.AssignDuty)
		admin.GET("/duties", deps.Duty.ListDuties)
		admin.DELETE("/duties/:id", deps.Duty.CancelDuty)

		admin.GET("/drivers", controllers.ListDrivers)
		admin.GET("/drivers/:id", controllers.GetDriverProfile)
		admin.GET("/drivers/:id/track", deps.Location.DriverTrack)

		admin.GET("/reports/daywise", controllers.DaywiseReport)
		admin.GET("/overview", controllers.Overview)
	}
}
