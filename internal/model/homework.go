package model

import "time"

// HomeworkPost 作业帖，points_required 为 0 表示免费
type HomeworkPost struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `json:"user_id" gorm:"type:varchar(36);not null;index:idx_homework_author"`
	Title          string    `json:"title" gorm:"type:varchar(200);not null"`
	Description    string    `json:"description" gorm:"type:text"`
	ImageURL       string    `json:"image_url" gorm:"type:varchar(512)"`
	PointsRequired int64     `json:"points_required" gorm:"not null;default:0"`
	Likes          int64     `json:"likes" gorm:"not null;default:0"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

func (HomeworkPost) TableName() string { return "homework_posts" }

type HomeworkReply struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PostID    string    `json:"post_id" gorm:"type:varchar(36);not null;index:idx_reply_post"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_reply_post"`
}

func (HomeworkReply) TableName() string { return "homework_replies" }

// UnlockRecord 解锁记录，(user_id, post_id) 唯一且永久
type UnlockRecord struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_unlock_user_post"`
	PostID     string    `json:"post_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_unlock_user_post"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

func (UnlockRecord) TableName() string { return "user_unlocked_posts" }
