package models

import "time"

// User is a community member. Staff and superuser flags gate the moderation
// and administration endpoints.
type User struct {
	BaseModel

	Username string `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email    string `gorm:"uniqueIndex;size:254;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`
	Bio      string `gorm:"type:text" json:"bio"`

	IsActive    bool `gorm:"not null" json:"is_active"`
	IsStaff     bool `gorm:"not null;default:false" json:"is_staff"`
	IsSuperuser bool `gorm:"not null;default:false" json:"is_superuser"`

	Sessions []Session     `gorm:"foreignKey:UserID" json:"-"`
	Warnings []UserWarning `gorm:"foreignKey:UserID" json:"-"`

	LastLoginAt *time.Time `json:"last_login_at"`
	LastLoginIP string     `json:"last_login_ip"`

	FailedAttempts int        `gorm:"default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// HasStaffAccess reports whether the user may perform staff-only actions.
func (u *User) HasStaffAccess() bool {
	return u.IsStaff || u.IsSuperuser
}
