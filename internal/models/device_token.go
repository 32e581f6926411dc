package models

import (
	"time"
)

// DeviceToken is a push notification token registered by a client or driver app.
type DeviceToken struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index" json:"userId"`
	Token     string    `gorm:"not null;uniqueIndex" json:"token"`
	Platform  string    `gorm:"not null;default:'android'" json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName specifies the table name for DeviceToken
func (DeviceToken) TableName() string {
	return "device_tokens"
}
