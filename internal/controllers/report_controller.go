package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dutysync/internal/config"
	"dutysync/internal/models"
	"dutysync/internal/tracking"
)

type daywiseRow struct {
	TourDate     string  `json:"tour_date"`
	Trips        int64   `json:"trips"`
	Kilometers   float64 `json:"kilometers"`
	FuelQuantity float64 `json:"fuel_quantity"`
	FuelAmount   float64 `json:"fuel_amount"`
}

// DaywiseReport aggregates completed duties per tour date.
func DaywiseReport(c *gin.Context) {
	q := config.DB.Model(&models.Task{}).
		Select("tour_date, count(*) as trips, coalesce(sum(kilometers),0) as kilometers, coalesce(sum(fuel_quantity),0) as fuel_quantity, coalesce(sum(fuel_amount),0) as fuel_amount").
		Where("status = ?", models.TaskCompleted)
	if from := c.Query("from"); from != "" {
		q = q.Where("tour_date >= ?", from)
	}
	if to := c.Query("to"); to != "" {
		q = q.Where("tour_date <= ?", to)
	}

	var rows []daywiseRow
	if err := q.Group("tour_date").Order("tour_date desc").Scan(&rows).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error building report: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows})
}

// Overview returns the fleet counters the admin dashboard shows.
func Overview(c *gin.Context) {
	counts := gin.H{}
	type statusCount struct {
		Status string
		N      int64
	}
	var byStatus []statusCount
	if err := config.DB.Model(&models.Task{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error counting duties: " + err.Error()})
		return
	}
	var total int64
	for _, sc := range byStatus {
		counts[sc.Status] = sc.N
		total += sc.N
	}
	counts["total"] = total

	var driversOnline, driversOnTrip int64
	config.DB.Model(&models.Driver{}).Where("locationstatus = ?", tracking.LocationOnline).Count(&driversOnline)
	config.DB.Model(&models.Driver{}).Where("active_status = ?", models.TaskInProgress).Count(&driversOnTrip)

	c.JSON(http.StatusOK, gin.H{
		"duties":          counts,
		"drivers_online":  driversOnline,
		"drivers_on_trip": driversOnTrip,
	})
}
