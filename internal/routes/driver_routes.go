package routes

import (
	"github.com/gin-gonic/gin"

	"dutysync/internal/middleware"
)

func DriverRoutes(r *gin.Engine, deps Deps) {
	driver := r.Group("/driver")
	driver.Use(middleware.RequireAuthWithRole("driver"))
	{
		driver.GET("/duties", deps.Duty.MyDuties)
		driver.POST("/duties/:id/start", deps.Duty.StartDuty)
		driver.POST("/duties/:id/complete", deps.Duty.CompleteDuty)
		driver.GET("/me", deps.Duty.MyRecord)
	}
}
