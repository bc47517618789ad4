package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"referral-gate/internal/model"
)

type lookupCall struct {
	handle string
	userID int64
}

// fakeLookup answers from a table keyed by "handle/user". Handles listed in
// hang block until the context expires.
type fakeLookup struct {
	mu       sync.Mutex
	statuses map[string]MembershipStatus
	failures map[string]error
	hang     map[string]bool
	calls    []lookupCall
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		statuses: make(map[string]MembershipStatus),
		failures: make(map[string]error),
		hang:     make(map[string]bool),
	}
}

func lookupKey(handle string, userID int64) string {
	return fmt.Sprintf("%s/%d", handle, userID)
}

func (f *fakeLookup) set(handle string, userID int64, status MembershipStatus) {
	f.statuses[lookupKey(handle, userID)] = status
}

func (f *fakeLookup) joinAll(userID int64, channels []ResolvedChannel) {
	for _, ch := range channels {
		if ch.Handle.Verifiable() {
			f.set(ch.Handle.String(), userID, StatusMember)
		}
	}
}

func (f *fakeLookup) LookupStatus(ctx context.Context, handle model.ChannelHandle, userID int64) (MembershipStatus, error) {
	key := lookupKey(handle.String(), userID)

	f.mu.Lock()
	f.calls = append(f.calls, lookupCall{handle: handle.String(), userID: userID})
	hang := f.hang[handle.String()]
	failure := f.failures[key]
	status, ok := f.statuses[key]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if failure != nil {
		return "", failure
	}
	if !ok {
		return StatusLeft, nil
	}
	return status, nil
}

func (f *fakeLookup) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeStore struct {
	referred map[int64][]int64
	err      error
}

func (s *fakeStore) Register(ctx context.Context, userID int64, referrerID *int64) error {
	if s.err != nil {
		return s.err
	}
	if referrerID == nil || *referrerID == userID {
		return nil
	}
	if s.referred == nil {
		s.referred = make(map[int64][]int64)
	}
	for _, id := range s.referred[*referrerID] {
		if id == userID {
			return nil
		}
	}
	s.referred[*referrerID] = append(s.referred[*referrerID], userID)
	return nil
}

func (s *fakeStore) ReferredBy(ctx context.Context, referrerID int64) ([]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.referred[referrerID], nil
}

func mustResolve(t *testing.T, locators ...string) []ResolvedChannel {
	t.Helper()
	channels := make([]model.Channel, 0, len(locators))
	for i, locator := range locators {
		channels = append(channels, model.Channel{Label: fmt.Sprintf("Channel %d", i+1), Locator: locator})
	}
	resolved, err := ResolveChannels(channels)
	if err != nil {
		t.Fatalf("resolve channels: %v", err)
	}
	return resolved
}
