package models

import (
	"time"
)

/** --------------------ENTITIES-------------------- */
// PollRecord is the relational row of a poll
type PollRecord struct {
	ID              string         `gorm:"primaryKey;size:64" json:"_id"`
	Question        string         `gorm:"type:text;not null" json:"question"`
	Timer           int            `gorm:"not null" json:"timer"`
	TeacherUsername string         `gorm:"size:255;index" json:"teacherUsername"`
	Closed          bool           `gorm:"not null;default:false" json:"closed"`
	CreatedAt       time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt       time.Time      `json:"-"`
	Options         []OptionRecord `gorm:"foreignKey:PollID;constraint:OnDelete:CASCADE" json:"options"`
}

func (PollRecord) TableName() string {
	return "polls"
}

// OptionRecord is one option of a poll; Position keeps the presenter's order
type OptionRecord struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	PollID   string `gorm:"size:64;not null;uniqueIndex:idx_poll_option_position" json:"-"`
	Position int    `gorm:"not null;uniqueIndex:idx_poll_option_position" json:"-"`
	OptionID int    `gorm:"not null" json:"id"`
	Text     string `gorm:"type:text;not null" json:"text"`
	Correct  *bool  `json:"correct"`
	Votes    int    `gorm:"not null;default:0" json:"votes"`
}

func (OptionRecord) TableName() string {
	return "poll_options"
}
