package model

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidLocator is returned for channel locators that are neither a handle nor an invite link.
var ErrInvalidLocator = errors.New("invalid channel locator")

// LocatorKind tells how a configured channel can be addressed.
type LocatorKind int

const (
	LocatorUsername LocatorKind = iota + 1
	LocatorChatID
	LocatorInvite
)

// Channel is a statically configured channel the user must join.
type Channel struct {
	Label   string `yaml:"label"`
	Locator string `yaml:"locator"`
}

// ChannelHandle is the parsed form of a locator.
type ChannelHandle struct {
	Kind     LocatorKind
	Username string // canonical "@name" for LocatorUsername
	ChatID   int64
	Invite   string // invite hash for LocatorInvite
}

// Verifiable reports whether membership in the channel can be asked for.
// Private invite links carry no stable identifier, so they cannot.
func (h ChannelHandle) Verifiable() bool {
	return h.Kind == LocatorUsername || h.Kind == LocatorChatID
}

func (h ChannelHandle) String() string {
	switch h.Kind {
	case LocatorUsername:
		return h.Username
	case LocatorChatID:
		return strconv.FormatInt(h.ChatID, 10)
	case LocatorInvite:
		return "+" + h.Invite
	default:
		return ""
	}
}

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)
	chatIDPattern   = regexp.MustCompile(`^-?[0-9]+$`)
	invitePattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

var telegramHosts = []string{"t.me/", "telegram.me/", "telegram.dog/"}

// ParseLocator classifies a configured locator. Accepted forms:
//
//	https://t.me/name, t.me/name, @name, name  -> LocatorUsername
//	-1001234567890                               -> LocatorChatID
//	https://t.me/+hash, t.me/joinchat/hash, +hash -> LocatorInvite
func ParseLocator(locator string) (ChannelHandle, error) {
	raw := strings.TrimSpace(locator)
	if raw == "" {
		return ChannelHandle{}, fmt.Errorf("%w: empty", ErrInvalidLocator)
	}

	path, hasHost := stripHost(raw)
	path = strings.Trim(path, "/")
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	segments := strings.Split(path, "/")
	head := segments[0]

	switch {
	case head == "joinchat":
		if len(segments) < 2 || !invitePattern.MatchString(segments[1]) {
			return ChannelHandle{}, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
		}
		return ChannelHandle{Kind: LocatorInvite, Invite: segments[1]}, nil
	case strings.HasPrefix(head, "+"):
		hash := strings.TrimPrefix(head, "+")
		if !invitePattern.MatchString(hash) {
			return ChannelHandle{}, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
		}
		return ChannelHandle{Kind: LocatorInvite, Invite: hash}, nil
	case !hasHost && chatIDPattern.MatchString(head):
		id, err := strconv.ParseInt(head, 10, 64)
		if err != nil {
			return ChannelHandle{}, fmt.Errorf("%w: %q: %v", ErrInvalidLocator, locator, err)
		}
		return ChannelHandle{Kind: LocatorChatID, ChatID: id}, nil
	}

	name := strings.TrimPrefix(head, "@")
	if !usernamePattern.MatchString(name) {
		return ChannelHandle{}, fmt.Errorf("%w: %q", ErrInvalidLocator, locator)
	}
	return ChannelHandle{Kind: LocatorUsername, Username: "@" + name}, nil
}

func stripHost(raw string) (string, bool) {
	rest := raw
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	rest = strings.TrimPrefix(rest, "www.")
	lower := strings.ToLower(rest)
	for _, host := range telegramHosts {
		if strings.HasPrefix(lower, host) {
			return rest[len(host):], true
		}
	}
	return rest, false
}
