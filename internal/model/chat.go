package model

import "time"

// ChatRecord is one answered query, persisted to MySQL for history.
type ChatRecord struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Question        string    `gorm:"type:text" json:"question"`
	NormalizedQuery string    `gorm:"type:text" json:"normalizedQuery"`
	Answer          string    `gorm:"type:text" json:"answer"`
	QueryType       string    `gorm:"size:32" json:"queryType"`
	IsClarification bool      `json:"isClarification"`
	EntityTag       string    `gorm:"size:128" json:"entityTag,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
