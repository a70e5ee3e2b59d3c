package models

import (
	"time"

	"gorm.io/gorm"
)

type LocationHistory struct {
	gorm.Model
	DriverID         uint      `json:"driver_id" gorm:"index"`
	Driver           Driver    `gorm:"foreignKey:DriverID" json:"-"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Accuracy         float64   `json:"accuracy"` // GPS accuracy in meters
	Speed            float64   `json:"speed"`    // Speed in m/s
	Bearing          float64   `json:"bearing"`  // Direction in degrees
	IsMoving         bool      `json:"is_moving"`
	DistanceFromLast float64   `json:"distance_from_last"` // meters
	Timestamp        time.Time `json:"timestamp" gorm:"index"`
	EventType        string    `json:"event_type"` // "initial", "moving", "stopped", "idle"
}
