package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	Name     string  `json:"name"`
	Email    string  `json:"email" gorm:"unique"`
	Password string  `json:"-"`
	Phone    string  `json:"phone"`
	Role     string  `json:"role"`      // "admin", "driver"
	TotalKms float64 `json:"total_kms"` // lifetime kilometers, written only by duty completion

	// Operational record, present when Role == "driver"
	Driver *Driver `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"driver,omitempty"`
}
