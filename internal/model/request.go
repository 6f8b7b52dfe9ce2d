package model

import "time"

// Role scopes a request or a capacity limit to a staff group.
type Role string

const (
	RoleCaregiver Role = "caregiver"
	RoleOffice    Role = "office"
	// RoleAll marks a request that is not role scoped. It counts toward every
	// role bucket and never has a limit record of its own.
	RoleAll Role = "all"
)

// Valid reports whether r is one of the known roles, including RoleAll.
func (r Role) Valid() bool {
	return r == RoleCaregiver || r == RoleOffice || r == RoleAll
}

// Limited reports whether r can carry a CapacityLimit record.
func (r Role) Limited() bool {
	return r == RoleCaregiver || r == RoleOffice
}

// RequestKind distinguishes voluntary from mandatory time off. Unknown legacy
// values are stored and returned untouched.
type RequestKind string

const (
	KindRegular   RequestKind = "regular"
	KindMandatory RequestKind = "mandatory"
)

// RequestStatus is the lifecycle state of a TimeOffRequest.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusRejected RequestStatus = "rejected"
	StatusCanceled RequestStatus = "canceled"
)

// Counts reports whether a request in this status occupies capacity.
func (s RequestStatus) Counts() bool {
	return s == StatusPending || s == StatusApproved
}

// ReasonNotProvided is shown in place of an empty reason.
const ReasonNotProvided = "not provided"

// TimeOffRequest is a staff member's request to be off on one calendar date.
type TimeOffRequest struct {
	ID            string        `gorm:"primaryKey;size:36" json:"id"`
	RequesterName string        `gorm:"size:128;not null" json:"requester_name"`
	Date          string        `gorm:"column:off_date;size:10;not null;index" json:"date"` // YYYY-MM-DD
	Role          Role          `gorm:"size:16;not null;index" json:"role"`
	Kind          RequestKind   `gorm:"size:32;not null" json:"kind"`
	Reason        string        `gorm:"type:text" json:"reason"`
	Status        RequestStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt     time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`

	// bcrypt hash of the requester's deletion secret.
	SecretHash string `gorm:"column:deletion_secret_hash;size:72;not null" json:"-"`
}

// DisplayReason returns the reason, or ReasonNotProvided when it is empty.
func (r TimeOffRequest) DisplayReason() string {
	if r.Reason == "" {
		return ReasonNotProvided
	}
	return r.Reason
}
