package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"referral-gate/internal/model"
	"referral-gate/internal/service"
)

type chatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ChatMemberLookup implements service.MemberLookup with getChatMember.
type ChatMemberLookup struct {
	api chatMemberGetter
}

func NewChatMemberLookup(api chatMemberGetter) *ChatMemberLookup {
	return &ChatMemberLookup{api: api}
}

type chatMemberResult struct {
	member tgbotapi.ChatMember
	err    error
}

// LookupStatus returns as soon as ctx is done; the HTTP call itself keeps
// running in the background until the client gives up.
func (l *ChatMemberLookup) LookupStatus(ctx context.Context, handle model.ChannelHandle, userID int64) (service.MembershipStatus, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{UserID: userID},
	}
	switch handle.Kind {
	case model.LocatorUsername:
		cfg.SuperGroupUsername = handle.Username
	case model.LocatorChatID:
		cfg.ChatID = handle.ChatID
	default:
		return service.StatusUnknown, fmt.Errorf("channel %s has no chat id", handle)
	}

	done := make(chan chatMemberResult, 1)
	go func() {
		member, err := l.api.GetChatMember(cfg)
		done <- chatMemberResult{member: member, err: err}
	}()

	select {
	case <-ctx.Done():
		return service.StatusUnknown, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return service.StatusUnknown, fmt.Errorf("get chat member: %w", res.err)
		}
		return statusFromTelegram(res.member.Status), nil
	}
}

func statusFromTelegram(status string) service.MembershipStatus {
	switch s := service.MembershipStatus(status); s {
	case service.StatusMember, service.StatusAdministrator, service.StatusCreator,
		service.StatusLeft, service.StatusKicked, service.StatusRestricted:
		return s
	default:
		return service.StatusUnknown
	}
}
