package models

import "time"

// WarningSeverity grades a moderation warning.
type WarningSeverity string

const (
	WarningSeverityLow      WarningSeverity = "low"
	WarningSeverityMedium   WarningSeverity = "medium"
	WarningSeverityHigh     WarningSeverity = "high"
	WarningSeverityCritical WarningSeverity = "critical"
)

var severityDisplay = map[WarningSeverity]string{
	WarningSeverityLow:      "Low",
	WarningSeverityMedium:   "Medium",
	WarningSeverityHigh:     "High",
	WarningSeverityCritical: "Critical",
}

// Valid reports whether s is a known severity.
func (s WarningSeverity) Valid() bool {
	_, ok := severityDisplay[s]
	return ok
}

// Display returns the human readable label, e.g. "High".
func (s WarningSeverity) Display() string {
	if label, ok := severityDisplay[s]; ok {
		return label
	}
	return string(s)
}

// UserWarning is an administrative warning issued to a user.
type UserWarning struct {
	BaseModel

	UserID     string          `gorm:"type:uuid;not null;index" json:"user_id"`
	IssuedByID string          `gorm:"type:uuid;not null" json:"issued_by_id"`
	IssuedBy   *User           `gorm:"foreignKey:IssuedByID" json:"issued_by,omitempty"`
	Severity   WarningSeverity `gorm:"type:varchar(16);not null" json:"severity"`
	Reason     string          `gorm:"size:200;not null" json:"reason"`
	Details    string          `gorm:"type:text" json:"description"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	ViewedAt   *time.Time      `json:"viewed_at"`

	Justification            string     `gorm:"type:text" json:"justification"`
	JustificationSubmittedAt *time.Time `json:"justification_submitted_at"`
}
