package model

import "time"

// PushSubscription holds the browser push endpoint of an administrator who
// wants to hear about new and decided requests. Role narrows the events to one
// staff group; RoleAll receives everything.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	Role      Role      `gorm:"size:16;not null;default:all"`
	CreatedAt time.Time `gorm:"not null"`
}
