package models

import (
	"time"
)

// Post is a community post. The reputation engine reads these as
// participation signals; it never writes them.
type Post struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index" json:"user_id"`
	User         *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Content      string    `gorm:"type:text" json:"content"`
	LikeCount    int       `gorm:"default:0" json:"like_count"`
	CommentCount int       `gorm:"default:0" json:"comment_count"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (Post) TableName() string {
	return "posts"
}

// ChatMessage is a single chat message, counted as an engagement signal.
type ChatMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// MarketplaceRating is a buyer's rating of a seller (1-5).
type MarketplaceRating struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SellerID  uint      `gorm:"not null;index" json:"seller_id"`
	RaterID   uint      `gorm:"not null" json:"rater_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (MarketplaceRating) TableName() string {
	return "marketplace_ratings"
}
