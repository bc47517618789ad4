package model

import "time"

// Referral is the edge between the inviting user and the invited one.
type Referral struct {
	ReferrerID int64 `gorm:"column:referrer_id;primaryKey;autoIncrement:false"`
	ReferredID int64 `gorm:"column:referred_id;primaryKey;autoIncrement:false"`
	CreatedAt  time.Time
}

func (Referral) TableName() string {
	return "referrals"
}
