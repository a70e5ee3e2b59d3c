package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	logrus "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"dutysync/internal/config"
	"dutysync/internal/models"
)

// ListDrivers returns every driver user with their operational record
// (admin ops board: who is available, assigned, on trip, online).
func ListDrivers(c *gin.Context) {
	var users []models.User
	if err := config.DB.Where("role = ?", "driver").
		Preload("Driver").
		Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error listing drivers: " + err.Error()})
		return
	}

	var profiles []gin.H
	for _, user := range users {
		profiles = append(profiles, prepareUserResponse(user))
	}
	c.JSON(http.StatusOK, gin.H{"data": profiles})
}

// GetDriverProfile returns one driver's record plus their completed trip
// history (admin driver-profile screen).
func GetDriverProfile(c *gin.Context) {
	driverIDStr := c.Param("id")
	driverID, err := strconv.ParseUint(driverIDStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid driver ID format."})
		return
	}

	var driver models.Driver
	if err := config.DB.Preload("User").First(&driver, uint(driverID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Driver not found."})
		} else {
			logrus.WithError(err).Error("Error fetching driver profile.")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error: " + err.Error()})
		}
		return
	}

	var trips []models.Task
	if err := config.DB.
		Where("driver_id = ? AND status = ?", driver.ID, models.TaskCompleted).
		Order("completed_at desc").
		Find(&trips).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error fetching trip history: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"driver":          driver,
		"name":            driver.User.Name,
		"total_kms":       driver.User.TotalKms,
		"completed_trips": trips,
	})
}
