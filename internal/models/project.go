package models

import (
	"time"

	"gorm.io/datatypes"
)

// ProjectStatus is the lifecycle state of a project.
type ProjectStatus string

const (
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
)

// Valid reports whether s is a known status.
func (s ProjectStatus) Valid() bool {
	switch s {
	case ProjectStatusPlanning, ProjectStatusActive, ProjectStatusCompleted, ProjectStatusOnHold:
		return true
	default:
		return false
	}
}

// Project is a community sustainability project.
type Project struct {
	BaseModel

	Title       string         `gorm:"size:200;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	CreatorID   string         `gorm:"type:uuid;not null;index" json:"creator_id"`
	Creator     *User          `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Status      ProjectStatus  `gorm:"type:varchar(20);not null;default:'planning'" json:"status"`
	StartDate   *time.Time     `json:"start_date,omitempty"`
	EndDate     *time.Time     `json:"end_date,omitempty"`
	Tags        datatypes.JSON `json:"tags"`

	Members []ProjectMember `gorm:"foreignKey:ProjectID" json:"members,omitempty"`
	Updates []ProjectUpdate `gorm:"foreignKey:ProjectID" json:"updates,omitempty"`
}

// ProjectMember links a user to a project.
type ProjectMember struct {
	ProjectID string    `gorm:"primaryKey;type:uuid" json:"project_id"`
	UserID    string    `gorm:"primaryKey;type:uuid;index" json:"user_id"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// ProjectUpdate is a progress post on a project.
type ProjectUpdate struct {
	BaseModel

	ProjectID string `gorm:"type:uuid;not null;index" json:"project_id"`
	AuthorID  string `gorm:"type:uuid;not null;index" json:"author_id"`
	Author    *User  `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content   string `gorm:"type:text;not null" json:"content"`
}
