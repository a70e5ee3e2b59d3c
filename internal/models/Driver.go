// internal/models/Driver.go
package models

import (
	"time"

	"gorm.io/gorm"
)

// Driver is the live operational record for a user with role "driver".
// Status fields (Active/ActiveStatus/LastTripEndKm/TotalKilometers) are
// written by the duty lifecycle; position fields (Latitude/Longitude/
// LastUpdated/LocationStatus) are written by the location reporter. The two
// field sets are disjoint and every write is a partial update so neither
// writer clobbers the other.
type Driver struct {
	gorm.Model
	UserID uint `json:"user_id" gorm:"uniqueIndex"` // Foreign key to User
	User   User `gorm:"foreignKey:UserID" json:"-"`

	Active          bool    `json:"active" gorm:"default:true"`
	ActiveStatus    string  `json:"active_status" gorm:"column:active_status;default:active"` // "active", "assigned", "in-progress"
	LastTripEndKm   float64 `json:"last_trip_end_km"`
	TotalKilometers float64 `json:"total_kilometers"`

	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	LastUpdated    *time.Time `json:"last_updated"`
	LocationStatus string     `json:"locationstatus" gorm:"column:locationstatus;default:offline"` // "online", "offline"

	VehicleNumber string `json:"vehicle_number"`
	Contact       string `json:"contact"`
}
