package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"referral-gate/internal/model"
)

// MembershipStatus is the status reported by getChatMember.
type MembershipStatus string

const (
	StatusMember        MembershipStatus = "member"
	StatusAdministrator MembershipStatus = "administrator"
	StatusCreator       MembershipStatus = "creator"
	StatusLeft          MembershipStatus = "left"
	StatusKicked        MembershipStatus = "kicked"
	StatusRestricted    MembershipStatus = "restricted"
	StatusUnknown       MembershipStatus = "unknown"
)

// IsMember reports whether the status counts as having joined.
func (s MembershipStatus) IsMember() bool {
	switch s {
	case StatusMember, StatusAdministrator, StatusCreator:
		return true
	default:
		return false
	}
}

// MemberLookup asks the messaging platform for a user's status in a channel.
type MemberLookup interface {
	LookupStatus(ctx context.Context, handle model.ChannelHandle, userID int64) (MembershipStatus, error)
}

// VerificationError describes a membership lookup that could not be completed.
type VerificationError struct {
	Handle string
	UserID int64
	Err    error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verify membership of %d in %s: %v", e.UserID, e.Handle, e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// ResolvedChannel is a configured channel with its locator parsed once.
type ResolvedChannel struct {
	model.Channel
	Handle model.ChannelHandle
}

// ResolveChannels parses every locator. It is meant to run once at startup.
func ResolveChannels(channels []model.Channel) ([]ResolvedChannel, error) {
	resolved := make([]ResolvedChannel, 0, len(channels))
	for _, ch := range channels {
		handle, err := model.ParseLocator(ch.Locator)
		if err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Label, err)
		}
		resolved = append(resolved, ResolvedChannel{Channel: ch, Handle: handle})
	}
	return resolved, nil
}

// MembershipService verifies channel membership and fails closed on lookup errors.
type MembershipService struct {
	lookup  MemberLookup
	timeout time.Duration
	logger  *zap.Logger
}

func NewMembershipService(lookup MemberLookup, timeout time.Duration, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{lookup: lookup, timeout: timeout, logger: logger}
}

// Resolve classifies a locator; invite links come back unverifiable.
func (s *MembershipService) Resolve(locator string) (model.ChannelHandle, error) {
	return model.ParseLocator(locator)
}

// IsMember returns false for any status outside member/administrator/creator
// and for any lookup failure. Failures are logged, never returned.
func (s *MembershipService) IsMember(ctx context.Context, userID int64, handle model.ChannelHandle) bool {
	status, err := s.lookupStatus(ctx, userID, handle)
	if err != nil {
		s.logger.Warn("membership lookup failed",
			zap.String("channel", handle.String()),
			zap.Int64("user_id", userID),
			zap.Error(err),
		)
		return false
	}
	s.logger.Debug("membership lookup",
		zap.String("channel", handle.String()),
		zap.Int64("user_id", userID),
		zap.String("status", string(status)),
	)
	return status.IsMember()
}

func (s *MembershipService) lookupStatus(ctx context.Context, userID int64, handle model.ChannelHandle) (MembershipStatus, error) {
	if !handle.Verifiable() {
		return StatusUnknown, &VerificationError{Handle: handle.String(), UserID: userID, Err: errors.New("channel cannot be verified")}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	status, err := s.lookup.LookupStatus(ctx, handle, userID)
	if err != nil {
		return StatusUnknown, &VerificationError{Handle: handle.String(), UserID: userID, Err: err}
	}
	return status, nil
}

// AllVerifiableJoined checks every verifiable channel and skips invite-only ones.
// Every channel is looked up even after one fails.
func (s *MembershipService) AllVerifiableJoined(ctx context.Context, userID int64, channels []ResolvedChannel) bool {
	joined := true
	for _, ch := range channels {
		if !ch.Handle.Verifiable() {
			continue
		}
		if !s.IsMember(ctx, userID, ch.Handle) {
			joined = false
		}
	}
	return joined
}
