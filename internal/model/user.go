package model

import "time"

const (
	SubscriptionActive   = "active"
	SubscriptionInactive = "inactive"
	SubscriptionExpired  = "expired"
	SubscriptionCanceled = "canceled"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User 用户档案（profiles），points 只能通过账本增减
type User struct {
	ID                  string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username            string     `json:"username" gorm:"type:varchar(64);not null"`
	Email               string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash        string     `json:"-" gorm:"type:varchar(100);not null"`
	AvatarURL           string     `json:"avatar_url" gorm:"type:varchar(512)"`
	Points              int64      `json:"points" gorm:"not null;default:0;index:idx_profile_points"`
	SubscriptionStatus  string     `json:"subscription_status" gorm:"type:varchar(16);not null;default:inactive;index"`
	SubscriptionEndDate *time.Time `json:"subscription_end_date"`
	SubscriptionID      string     `json:"subscription_id" gorm:"type:varchar(128);index"`
	MusicService        string     `json:"music_service" gorm:"type:varchar(32)"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (User) TableName() string { return "profiles" }

// HasActiveSubscription reports whether the subscription grants access at now.
func (u *User) HasActiveSubscription(now time.Time) bool {
	if u.SubscriptionStatus != SubscriptionActive {
		return false
	}
	return u.SubscriptionEndDate == nil || u.SubscriptionEndDate.After(now)
}

// UserRole 权威角色表；token 里的 role 只是提示
type UserRole struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);not null;uniqueIndex:ux_user_role"`
	Role      string    `json:"role" gorm:"type:varchar(16);not null;uniqueIndex:ux_user_role"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserRole) TableName() string { return "user_roles" }
