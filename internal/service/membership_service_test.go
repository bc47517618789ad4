package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"referral-gate/internal/model"
)

func TestMembershipStatusIsMember(t *testing.T) {
	positive := []MembershipStatus{StatusMember, StatusAdministrator, StatusCreator}
	negative := []MembershipStatus{StatusLeft, StatusKicked, StatusRestricted, StatusUnknown, ""}

	for _, status := range positive {
		if !status.IsMember() {
			t.Fatalf("%q should count as member", status)
		}
	}
	for _, status := range negative {
		if status.IsMember() {
			t.Fatalf("%q should not count as member", status)
		}
	}
}

func TestResolveChannelsRejectsMalformedLocator(t *testing.T) {
	_, err := ResolveChannels([]model.Channel{{Label: "Broken", Locator: "https://t.me/"}})
	if !errors.Is(err, model.ErrInvalidLocator) {
		t.Fatalf("expected ErrInvalidLocator, got %v", err)
	}
}

func TestResolveClassifiesInviteAsUnverifiable(t *testing.T) {
	svc := NewMembershipService(newFakeLookup(), time.Second, zaptest.NewLogger(t))

	handle, err := svc.Resolve("https://t.me/+IbD0SWGSSiZkM2Ri")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if handle.Verifiable() {
		t.Fatalf("invite token must be unverifiable")
	}

	handle, err = svc.Resolve("https://t.me/umarquotes")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if handle.String() != "@umarquotes" {
		t.Fatalf("expected canonical prefix, got %q", handle.String())
	}
}

func TestAllVerifiableJoinedEmptyCheckableSet(t *testing.T) {
	lookup := newFakeLookup()
	svc := NewMembershipService(lookup, time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	if !svc.AllVerifiableJoined(ctx, 1, nil) {
		t.Fatalf("no channels should be trivially satisfied")
	}

	inviteOnly := mustResolve(t, "https://t.me/+IbD0SWGSSiZkM2Ri", "t.me/joinchat/abcdef")
	if !svc.AllVerifiableJoined(ctx, 1, inviteOnly) {
		t.Fatalf("invite-only channels should be trivially satisfied")
	}
	if lookup.callCount() != 0 {
		t.Fatalf("unverifiable channels must not be looked up, got %d calls", lookup.callCount())
	}
}

func TestAllVerifiableJoinedRequiresEveryChannel(t *testing.T) {
	channels := mustResolve(t, "@first_channel", "@second_channel", "@third_channel")
	lookup := newFakeLookup()
	lookup.set("@first_channel", 1, StatusMember)
	lookup.set("@second_channel", 1, StatusCreator)
	lookup.set("@third_channel", 1, StatusAdministrator)
	svc := NewMembershipService(lookup, time.Second, zaptest.NewLogger(t))

	if !svc.AllVerifiableJoined(context.Background(), 1, channels) {
		t.Fatalf("expected user to be a member of every channel")
	}

	for _, status := range []MembershipStatus{StatusLeft, StatusKicked, StatusRestricted, StatusUnknown} {
		lookup.set("@second_channel", 1, status)
		if svc.AllVerifiableJoined(context.Background(), 1, channels) {
			t.Fatalf("status %q on one channel must fail the check", status)
		}
	}
}

func TestAllVerifiableJoinedSkipsInviteChannel(t *testing.T) {
	channels := mustResolve(t, "https://t.me/ieltswithabdulloh", "https://t.me/+IbD0SWGSSiZkM2Ri", "https://t.me/umarquotes")
	lookup := newFakeLookup()
	lookup.set("@ieltswithabdulloh", 42, StatusMember)
	lookup.set("@umarquotes", 42, StatusMember)
	svc := NewMembershipService(lookup, time.Second, zaptest.NewLogger(t))

	if !svc.AllVerifiableJoined(context.Background(), 42, channels) {
		t.Fatalf("invite channel must not cause a not-joined verdict")
	}
	if lookup.callCount() != 2 {
		t.Fatalf("expected 2 lookups, got %d", lookup.callCount())
	}
}

func TestLookupTimeoutIsIsolatedToItsChannel(t *testing.T) {
	channels := mustResolve(t, "@first_channel", "@slow_channel", "@third_channel")
	lookup := newFakeLookup()
	lookup.joinAll(5, channels)
	lookup.hang["@slow_channel"] = true

	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewMembershipService(lookup, 20*time.Millisecond, zap.New(core))

	if svc.AllVerifiableJoined(context.Background(), 5, channels) {
		t.Fatalf("timed out channel must fail closed")
	}
	if lookup.callCount() != 3 {
		t.Fatalf("every channel should still be looked up, got %d calls", lookup.callCount())
	}

	entries := logs.FilterMessage("membership lookup failed").All()
	if len(entries) != 1 {
		t.Fatalf("expected exactly one failure log, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["channel"] != "@slow_channel" || fields["user_id"] != int64(5) {
		t.Fatalf("failure log lacks context: %v", fields)
	}

	lookup.hang["@slow_channel"] = false
	if !svc.AllVerifiableJoined(context.Background(), 5, channels) {
		t.Fatalf("expected success once the channel answers")
	}
}

func TestLookupErrorFailsClosed(t *testing.T) {
	channels := mustResolve(t, "@first_channel", "-1001234567890")
	lookup := newFakeLookup()
	lookup.joinAll(9, channels)
	lookup.failures[lookupKey("-1001234567890", 9)] = errors.New("Bad Request: chat not found")

	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewMembershipService(lookup, time.Second, zap.New(core))

	if svc.IsMember(context.Background(), 9, channels[1].Handle) {
		t.Fatalf("lookup error must be treated as not a member")
	}
	if svc.AllVerifiableJoined(context.Background(), 9, channels) {
		t.Fatalf("lookup error must fail the aggregate check")
	}
	if logs.Len() != 2 {
		t.Fatalf("expected two warnings, got %d", logs.Len())
	}
}

func TestIsMemberOnUnverifiableHandle(t *testing.T) {
	lookup := newFakeLookup()
	svc := NewMembershipService(lookup, time.Second, zaptest.NewLogger(t))

	handle, err := model.ParseLocator("+abcdef")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if svc.IsMember(context.Background(), 1, handle) {
		t.Fatalf("unverifiable handle cannot report membership")
	}
	if lookup.callCount() != 0 {
		t.Fatalf("unverifiable handle must not reach the transport")
	}
}

func TestVerificationErrorUnwraps(t *testing.T) {
	cause := context.DeadlineExceeded
	err := error(&VerificationError{Handle: "@x_channel", UserID: 3, Err: cause})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected wrapped cause")
	}
}
