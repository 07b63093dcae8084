package models

// ForumTopic is a discussion thread.
type ForumTopic struct {
	BaseModel

	Title    string      `gorm:"size:200;not null" json:"title"`
	Content  string      `gorm:"type:text" json:"content"`
	AuthorID string      `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   *User       `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Posts    []ForumPost `gorm:"foreignKey:TopicID" json:"posts,omitempty"`
}

// ForumPost is a reply within a topic.
type ForumPost struct {
	BaseModel

	TopicID  string      `gorm:"type:uuid;not null;index" json:"topic_id"`
	Topic    *ForumTopic `gorm:"foreignKey:TopicID" json:"-"`
	AuthorID string      `gorm:"type:uuid;not null;index" json:"author_id"`
	Author   *User       `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	Content  string      `gorm:"type:text;not null" json:"content"`
}
