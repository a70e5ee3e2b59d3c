// internal/models/Task.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Duty statuses. The only legal order is assigned -> in-progress -> completed.
const (
	TaskAssigned   = "assigned"
	TaskInProgress = "in-progress"
	TaskCompleted  = "completed"
)

// Passenger is embedded into Task (passenger_* columns).
type Passenger struct {
	Name        string `json:"name"`
	Heads       int    `json:"heads"`
	Contact     string `json:"contact"`
	Designation string `json:"designation"`
	Department  string `json:"department"`
}

// Task is one passenger trip assignment, owned by exactly one driver.
type Task struct {
	gorm.Model
	DriverID uint   `json:"driver_id" gorm:"index"`
	Driver   Driver `gorm:"foreignKey:DriverID" json:"-"`

	Status    string    `json:"status" gorm:"index;default:assigned"`
	Passenger Passenger `json:"passenger" gorm:"embedded;embeddedPrefix:passenger_"`

	TourLocation string `json:"tour_location"`
	TourDate     string `json:"tour_date" gorm:"index"` // YYYY-MM-DD
	TourTime     string `json:"tour_time"`              // HH:MM
	Notes        string `json:"notes"`

	OpeningKm    float64 `json:"opening_km"`
	ClosingKm    float64 `json:"closing_km"`
	Kilometers   float64 `json:"kilometers"` // derived: ClosingKm - OpeningKm
	FuelQuantity float64 `json:"fuel_quantity"`
	FuelAmount   float64 `json:"fuel_amount"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}
