package model

import "time"

// ChatMessage 聊天消息，写入后不可修改；同一房间按 (created_at, id) 排序
type ChatMessage struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RoomID     string    `json:"room_id" gorm:"type:varchar(80);not null;index:idx_chat_room_created"`
	UserID     string    `json:"user_id" gorm:"type:varchar(36);not null"`
	AuthorName string    `json:"author_name" gorm:"type:varchar(64)"`
	Content    string    `json:"content" gorm:"type:text;not null"`
	CreatedAt  time.Time `json:"created_at" gorm:"index:idx_chat_room_created"`
}

func (ChatMessage) TableName() string { return "chat_messages" }
