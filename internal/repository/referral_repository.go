package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"referral-gate/internal/model"
)

// ReferralRepository owns the users and referrals tables.
type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// Register records the user on first contact. The referrer is stored only
// when the row is created, and the referral edge is written only if the
// stored referrer matches, so the first referrer wins and repeats are no-ops.
func (r *ReferralRepository) Register(ctx context.Context, userID int64, referrerID *int64) error {
	if referrerID != nil && *referrerID == userID {
		referrerID = nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user := model.User{UserID: userID, ReferrerID: referrerID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&user).Error; err != nil {
			return err
		}
		if referrerID == nil {
			return nil
		}

		var stored model.User
		if err := tx.Where("user_id = ?", userID).Take(&stored).Error; err != nil {
			return err
		}
		if stored.ReferrerID == nil || *stored.ReferrerID != *referrerID {
			return nil
		}

		edge := model.Referral{ReferrerID: *referrerID, ReferredID: userID}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&edge).Error
	})
	if err != nil {
		return &StorageError{Op: "register user", Err: err}
	}
	return nil
}

// ReferredBy lists every user ever referred by referrerID.
func (r *ReferralRepository) ReferredBy(ctx context.Context, referrerID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Model(&model.Referral{}).
		Where("referrer_id = ?", referrerID).
		Order("referred_id ASC").
		Pluck("referred_id", &ids).Error; err != nil {
		return nil, &StorageError{Op: "list referrals", Err: err}
	}
	return ids, nil
}

// Stats returns table totals.
func (r *ReferralRepository) Stats(ctx context.Context) (users int64, referrals int64, err error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.User{}).Count(&users).Error; err != nil {
		return 0, 0, &StorageError{Op: "count users", Err: err}
	}
	if err := db.Model(&model.Referral{}).Count(&referrals).Error; err != nil {
		return 0, 0, &StorageError{Op: "count referrals", Err: err}
	}
	return users, referrals, nil
}
