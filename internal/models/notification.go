package models

import "time"

// NotificationKind classifies a notification.
type NotificationKind string

const (
	NotificationKindMessage       NotificationKind = "message"
	NotificationKindProjectUpdate NotificationKind = "project_update"
	NotificationKindEventReminder NotificationKind = "event_reminder"
	NotificationKindTopicReply    NotificationKind = "topic_reply"
	NotificationKindMention       NotificationKind = "mention"
	NotificationKindLike          NotificationKind = "like"
	NotificationKindFollow        NotificationKind = "follow"
	NotificationKindOther         NotificationKind = "other"
	NotificationKindWarning       NotificationKind = "warning_issued"
	NotificationKindAccountStatus NotificationKind = "account_status"
)

// Valid reports whether k is one of the known kinds.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotificationKindMessage, NotificationKindProjectUpdate, NotificationKindEventReminder,
		NotificationKindTopicReply, NotificationKindMention, NotificationKindLike,
		NotificationKindFollow, NotificationKindOther, NotificationKindWarning,
		NotificationKindAccountStatus:
		return true
	default:
		return false
	}
}

// OriginKind names the entity type a notification was raised for.
type OriginKind string

const (
	OriginForumPost     OriginKind = "forum_post"
	OriginMessage       OriginKind = "message"
	OriginProjectUpdate OriginKind = "project_update"
	OriginUserWarning   OriginKind = "user_warning"
	OriginUser          OriginKind = "user"
)

// Valid reports whether k is a known origin kind.
func (k OriginKind) Valid() bool {
	switch k {
	case OriginForumPost, OriginMessage, OriginProjectUpdate, OriginUserWarning, OriginUser:
		return true
	default:
		return false
	}
}

// Origin references the entity that produced a notification. The zero value
// means "no origin".
type Origin struct {
	Kind OriginKind `json:"kind"`
	ID   string     `json:"id"`
}

// IsZero reports whether the origin is unset.
func (o Origin) IsZero() bool {
	return o.Kind == "" && o.ID == ""
}

// Notification is an in-app notification stored for its recipient.
type Notification struct {
	BaseModel

	UserID  string           `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind    NotificationKind `gorm:"type:varchar(32);not null;index" json:"kind"`
	Title   string           `gorm:"type:varchar(200);not null" json:"title"`
	Message string           `gorm:"type:text" json:"message"`
	Link    string           `gorm:"type:text" json:"link,omitempty"`

	OriginType OriginKind `gorm:"type:varchar(32)" json:"origin_type,omitempty"`
	OriginID   *string    `gorm:"type:uuid" json:"origin_id,omitempty"`

	IsRead bool       `gorm:"not null;default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}

// Origin returns the originating entity reference, if any.
func (n *Notification) Origin() Origin {
	if n.OriginID == nil {
		return Origin{}
	}
	return Origin{Kind: n.OriginType, ID: *n.OriginID}
}

// SetOrigin stores o on the notification; a zero origin clears it.
func (n *Notification) SetOrigin(o Origin) {
	if o.IsZero() {
		n.OriginType = ""
		n.OriginID = nil
		return
	}
	id := o.ID
	n.OriginType = o.Kind
	n.OriginID = &id
}
