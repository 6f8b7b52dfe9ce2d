package model

import "time"

// CapacityLimit caps how many people of one role may be off on one date.
// (Date, Role) is the primary key, so setting the same pair twice updates the
// existing row.
type CapacityLimit struct {
	Date       string    `gorm:"column:off_date;primaryKey;size:10" json:"date"` // YYYY-MM-DD
	Role       Role      `gorm:"primaryKey;size:16" json:"role"`
	MaxAllowed int       `gorm:"not null" json:"max_allowed"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}
