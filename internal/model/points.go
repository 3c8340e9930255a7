package model

import "time"

// PointTransaction 积分流水，delta 为正表示入账
type PointTransaction struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string    `json:"user_id" gorm:"type:varchar(36);not null;index:idx_ptx_user_created"`
	Delta        int64     `json:"delta" gorm:"not null"`
	Reason       string    `json:"reason" gorm:"type:varchar(32);not null"`
	RefID        string    `json:"ref_id" gorm:"type:varchar(64)"`
	BalanceAfter int64     `json:"balance_after" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"index:idx_ptx_user_created"`
}

func (PointTransaction) TableName() string { return "point_transactions" }

const (
	ReasonUnlock            = "unlock"
	ReasonActivityCompleted = "activity_completed"
	ReasonAdminGrant        = "admin_grant"
	ReasonSignupBonus       = "signup_bonus"
)
