package models

import "time"

// AuthFlowKind selects what a verified passcode unlocks.
type AuthFlowKind string

const (
	AuthFlowLogin AuthFlowKind = "login"
	AuthFlowReset AuthFlowKind = "reset"
)

// AuthFlowStage is the position of a flow in the passcode state machine.
type AuthFlowStage string

const (
	AuthFlowStageOTPIssued    AuthFlowStage = "otp_issued"
	AuthFlowStageResetPending AuthFlowStage = "reset_pending"
)

// AuthFlow tracks one passcode login or reset attempt, addressed by an opaque
// flow token held by the client.
type AuthFlow struct {
	BaseModel

	TokenHash string        `gorm:"size:64;not null;uniqueIndex" json:"-"`
	Email     string        `gorm:"size:254;not null;index" json:"email"`
	Flow      AuthFlowKind  `gorm:"type:varchar(16);not null" json:"flow"`
	Stage     AuthFlowStage `gorm:"type:varchar(32);not null" json:"stage"`
	Attempts  int           `gorm:"not null;default:0" json:"attempts"`
	ExpiresAt time.Time     `gorm:"not null;index" json:"expires_at"`
}

// Expired reports whether the flow has lapsed at now.
func (f *AuthFlow) Expired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}
