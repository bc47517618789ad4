package model

import "time"

// User is a Telegram account that has contacted the bot at least once.
// ReferrerID is written on creation and never changed afterwards.
type User struct {
	UserID     int64  `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ReferrerID *int64 `gorm:"column:referrer_id;index"`
	CreatedAt  time.Time
}

func (User) TableName() string {
	return "users"
}
