package service

import (
	"context"
	"fmt"
)

// RecordStore persists users and referral edges.
type RecordStore interface {
	Register(ctx context.Context, userID int64, referrerID *int64) error
	ReferredBy(ctx context.Context, referrerID int64) ([]int64, error)
}

// MembershipChecker answers whether a user joined every verifiable channel.
type MembershipChecker interface {
	AllVerifiableJoined(ctx context.Context, userID int64, channels []ResolvedChannel) bool
}

// EligibilityResult is the outcome of a single check.
type EligibilityResult struct {
	ChannelRequirementMet  bool
	ReferralCount          int
	Threshold              int
	ReferralRequirementMet bool
	Missing                []string
}

// Eligible reports whether the reward may be revealed.
func (r EligibilityResult) Eligible() bool {
	return r.ChannelRequirementMet && r.ReferralRequirementMet
}

// EligibilityService combines membership checks with referral counting.
type EligibilityService struct {
	store      RecordStore
	membership MembershipChecker
	channels   []ResolvedChannel
	threshold  int
}

func NewEligibilityService(store RecordStore, membership MembershipChecker, channels []ResolvedChannel, threshold int) *EligibilityService {
	return &EligibilityService{
		store:      store,
		membership: membership,
		channels:   channels,
		threshold:  threshold,
	}
}

// QualifiedReferralCount counts referred users that joined every verifiable channel.
// Each call re-verifies every referred user; nothing is cached, so the cost is
// referrals × channels lookups.
func (s *EligibilityService) QualifiedReferralCount(ctx context.Context, referrerID int64) (int, error) {
	referred, err := s.store.ReferredBy(ctx, referrerID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, userID := range referred {
		if s.membership.AllVerifiableJoined(ctx, userID, s.channels) {
			count++
		}
	}
	return count, nil
}

// Evaluate runs the full check for userID. Only storage failures are returned.
func (s *EligibilityService) Evaluate(ctx context.Context, userID int64) (EligibilityResult, error) {
	result := EligibilityResult{Threshold: s.threshold}
	result.ChannelRequirementMet = s.membership.AllVerifiableJoined(ctx, userID, s.channels)

	count, err := s.QualifiedReferralCount(ctx, userID)
	if err != nil {
		return EligibilityResult{}, fmt.Errorf("count referrals: %w", err)
	}
	result.ReferralCount = count
	result.ReferralRequirementMet = count >= s.threshold

	if !result.ChannelRequirementMet {
		result.Missing = append(result.Missing, fmt.Sprintf("You still need to join all %d channels.", len(s.channels)))
	}
	if !result.ReferralRequirementMet {
		result.Missing = append(result.Missing, fmt.Sprintf("%d/%d friends have completed all steps", count, s.threshold))
	}
	return result, nil
}
