package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	GameItchIO       = "itch_io"
	GameScratch      = "scratch"
	GameCustomIframe = "custom_iframe"
)

// Activity 小游戏/活动（games 表）。EmbedProvider 为空表示只有外链
type Activity struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title         string    `json:"title" gorm:"type:varchar(200);not null"`
	Description   string    `json:"description" gorm:"type:text"`
	URL           string    `json:"url" gorm:"type:varchar(512)"`
	ThumbnailURL  string    `json:"thumbnail_url" gorm:"type:varchar(512)"`
	EmbedProvider string    `json:"embed_provider" gorm:"type:varchar(32)"`
	EmbedURL      string    `json:"embed_url" gorm:"type:varchar(1024)"`
	PointsReward  int64     `json:"points_reward" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Activity) TableName() string { return "games" }

// ActivityCompletion 首次完成记录，保证奖励只发一次
type ActivityCompletion struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_completion_user_activity"`
	ActivityID  string    `json:"activity_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_completion_user_activity"`
	CompletedAt time.Time `json:"completed_at"`
}

func (ActivityCompletion) TableName() string { return "activity_completions" }

type MerchItem struct {
	ID          string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string         `json:"name" gorm:"type:varchar(200);not null"`
	Description string         `json:"description" gorm:"type:text"`
	Price       int64          `json:"price" gorm:"not null"` // cents
	Stock       int64          `json:"stock" gorm:"not null;default:0"`
	ImageURLs   datatypes.JSON `json:"image_urls" gorm:"column:image_urls"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (MerchItem) TableName() string { return "merch_items" }

const (
	MusicSpotify      = "spotify"
	MusicSoundCloud   = "soundcloud"
	MusicAppleMusic   = "apple_music"
	MusicCustomIframe = "custom_iframe"
)

type MusicEmbed struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID      string    `json:"user_id" gorm:"type:varchar(36);not null;index"`
	Service     string    `json:"service" gorm:"type:varchar(32);not null"`
	EmbedURL    string    `json:"embed_url" gorm:"type:varchar(1024);not null"`
	Title       string    `json:"title" gorm:"type:varchar(200);not null"`
	Description string    `json:"description" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at"`
}

func (MusicEmbed) TableName() string { return "music_embeds" }
