package models

import "time"

// OTPPurpose records why a passcode was issued.
type OTPPurpose string

const (
	OTPPurposeLogin OTPPurpose = "login"
	OTPPurposeReset OTPPurpose = "reset"
)

// OneTimePasscode is the single live passcode for an email address. Only the
// sha256 digest of the code is stored.
type OneTimePasscode struct {
	BaseModel

	Email     string     `gorm:"size:254;not null;uniqueIndex" json:"email"`
	CodeHash  string     `gorm:"size:64;not null" json:"-"`
	Purpose   OTPPurpose `gorm:"type:varchar(16);not null" json:"purpose"`
	ExpiresAt time.Time  `gorm:"not null;index" json:"expires_at"`
	Used      bool       `gorm:"not null;default:false" json:"used"`
	UsedAt    *time.Time `json:"used_at"`
}

// Valid reports whether the code can still be consumed at now.
func (p *OneTimePasscode) Valid(now time.Time) bool {
	return !p.Used && now.Before(p.ExpiresAt)
}
