package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	logrus "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"dutysync/internal/config"
	"dutysync/internal/middleware"
	"dutysync/internal/models"
	"dutysync/internal/session"
	"dutysync/internal/store"
	"dutysync/internal/tracking"
)

type signupInput struct {
	Name          string `json:"name" binding:"required"`
	Email         string `json:"email" binding:"required,email"`
	Password      string `json:"password" binding:"required"`
	Phone         string `json:"phone"`
	Role          string `json:"role"`
	VehicleNumber string `json:"vehicle_number"`
	Contact       string `json:"contact"`
}

func validateAndNormalizeRole(role string) (string, error) {
	switch role {
	case "", session.RoleDriver:
		return session.RoleDriver, nil
	case session.RoleAdmin:
		return session.RoleAdmin, nil
	}
	return "", errors.New("role must be 'admin' or 'driver'")
}

// SignupUser provisions an account. For drivers it also seeds the
// operational record: Available, zero odometer floor, offline.
func SignupUser(c *gin.Context) {
	var input signupInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := validateAndNormalizeRole(input.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not hash password"})
		return
	}

	user := models.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: string(hashedPassword),
		Phone:    input.Phone,
		Role:     role,
	}

	err = config.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if role == session.RoleDriver {
			driver := models.Driver{
				UserID:         user.ID,
				Active:         true,
				ActiveStatus:   "active",
				LocationStatus: tracking.LocationOffline,
				VehicleNumber:  input.VehicleNumber,
				Contact:        input.Contact,
			}
			return tx.Create(&driver).Error
		}
		return nil
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			c.JSON(http.StatusConflict, gin.H{"error": "email already in use"})
			return
		}
		logrus.WithError(err).Error("Signup failed.")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create user: " + err.Error()})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  prepareUserResponse(user),
	})
}

func LoginUser(c *gin.Context) {
	var body struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user models.User
	if err := config.DB.Where("email = ?", body.Email).Preload("Driver").First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or invalid credentials"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error: " + err.Error()})
		}
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(body.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found or invalid credentials"})
		return
	}

	token, err := middleware.GenerateToken(user.ID, user.Role)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  prepareUserResponse(user),
	})
}

// LogoutUser marks a driver's record offline. The device side clears its
// durable driver slot, which is what actually stops stale position writes.
func LogoutUser(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := session.FromGin(c)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "no session"})
			return
		}
		if sess.IsDriver() {
			driver, err := st.GetDriverByUserID(c.Request.Context(), sess.UserID)
			if err == nil {
				if err := st.MergeDriver(c.Request.Context(), driver.ID, store.Patch{
					"locationstatus": tracking.LocationOffline,
				}); err != nil {
					logrus.WithError(err).WithField("driver_id", driver.ID).Warn("Could not mark driver offline on logout.")
				}
			}
		}
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	}
}

// prepareUserResponse strips credentials from a user for API output.
func prepareUserResponse(user models.User) gin.H {
	resp := gin.H{
		"id":        user.ID,
		"name":      user.Name,
		"email":     user.Email,
		"phone":     user.Phone,
		"role":      user.Role,
		"total_kms": user.TotalKms,
	}
	if user.Driver != nil {
		resp["driver"] = user.Driver
	}
	return resp
}
