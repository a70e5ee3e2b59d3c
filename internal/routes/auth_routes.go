package routes

import (
	"github.com/gin-gonic/gin"

	"dutysync/internal/controllers"
	"dutysync/internal/middleware"
)

func AuthRoutes(r *gin.Engine, deps Deps) {
	auth := r.Group("/auth")
	{
		auth.POST("/signup", controllers.SignupUser)
		auth.POST("/login", controllers.LoginUser)
		auth.POST("/logout", middleware.RequireAuth(), controllers.LogoutUser(deps.Store))
	}
}
