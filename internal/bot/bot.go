package bot

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"referral-gate/internal/config"
	"referral-gate/internal/model"
	"referral-gate/internal/service"
)

const cbCheck = "check"

const (
	btnDone          = "DONE ✅"
	msgGenericError  = "😔 Something went wrong. Please try again in a minute."
	msgNotThereYet   = "⚠️ You're not quite there yet. Please complete:"
	msgCongratsTitle = "✅ Congratulations! Here's your invite link:"
	msgUnknown       = "I didn't get that. Send /start to see the steps or tap DONE ✅ when you're ready."
)

// botAPI is the part of tgbotapi.BotAPI the bot relies on.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot turns Telegram updates into registrations and eligibility checks.
type Bot struct {
	api         botAPI
	username    string
	store       service.RecordStore
	eligibility *service.EligibilityService
	stats       *service.StatsService
	channels    []service.ResolvedChannel
	config      *config.Config
	logger      *zap.Logger
}

// NewAPI authorizes against the Bot API.
func NewAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return api, nil
}

func New(api *tgbotapi.BotAPI, store service.RecordStore, eligibility *service.EligibilityService, stats *service.StatsService, channels []service.ResolvedChannel, cfg *config.Config, logger *zap.Logger) *Bot {
	logger.Info("bot authorized", zap.String("account", api.Self.UserName))
	return newBot(api, api.Self.UserName, store, eligibility, stats, channels, cfg, logger)
}

func newBot(api botAPI, username string, store service.RecordStore, eligibility *service.EligibilityService, stats *service.StatsService, channels []service.ResolvedChannel, cfg *config.Config, logger *zap.Logger) *Bot {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:         api,
		username:    username,
		store:       store,
		eligibility: eligibility,
		stats:       stats,
		channels:    channels,
		config:      cfg,
		logger:      logger,
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Info("start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Error("handle callback", zap.Error(err))
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Error("handle message", zap.Error(err))
			}
		}
	}

	return ctx.Err()
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	if !msg.IsCommand() {
		return b.sendText(msg.Chat.ID, msgUnknown)
	}

	b.logger.Info("command",
		zap.Int64("user_id", msg.From.ID),
		zap.String("command", msg.Command()),
		zap.String("args", msg.CommandArguments()),
	)

	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "check":
		return b.handleCheck(ctx, msg.Chat.ID, msg.From.ID)
	case "link":
		return b.handleLink(ctx, msg)
	case "stats":
		return b.handleStats(ctx, msg)
	case "help":
		return b.handleHelp(msg)
	default:
		return b.sendText(msg.Chat.ID, "Command is not supported. See /help.")
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	userID := msg.From.ID
	referrerID := parseReferrer(msg.CommandArguments(), userID)

	if err := b.store.Register(ctx, userID, referrerID); err != nil {
		b.logger.Error("register user", zap.Int64("user_id", userID), zap.Error(err))
		return b.sendText(msg.Chat.ID, msgGenericError)
	}
	if referrerID != nil {
		b.logger.Info("user registered", zap.Int64("user_id", userID), zap.Int64("referrer_id", *referrerID))
	} else {
		b.logger.Info("user registered", zap.Int64("user_id", userID))
	}

	return b.sendWithReplyMarkup(msg.Chat.ID, b.startText(userID), b.channelKeyboard())
}

func (b *Bot) handleCheck(ctx context.Context, chatID, userID int64) error {
	result, err := b.eligibility.Evaluate(ctx, userID)
	if err != nil {
		b.logger.Error("evaluate eligibility", zap.Int64("user_id", userID), zap.Error(err))
		return b.sendText(chatID, msgGenericError)
	}

	b.logger.Info("eligibility checked",
		zap.Int64("user_id", userID),
		zap.Bool("channels_joined", result.ChannelRequirementMet),
		zap.Int("referrals", result.ReferralCount),
		zap.Bool("eligible", result.Eligible()),
	)
	return b.sendText(chatID, renderResult(result, b.config.RewardLink))
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	referred, err := b.store.ReferredBy(ctx, msg.From.ID)
	if err != nil {
		b.logger.Error("list referrals", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return b.sendText(msg.Chat.ID, msgGenericError)
	}
	text := fmt.Sprintf(
		"🔗 Your personal link:\n%s\n\nFriends who opened it: %d. They count once they join all channels too.",
		escape(ReferralLink(b.username, msg.From.ID)),
		len(referred),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) error {
	if !b.config.IsAdmin(msg.From.ID) {
		return b.sendText(msg.Chat.ID, "Command is not supported. See /help.")
	}
	stats, err := b.stats.Snapshot(ctx)
	if err != nil {
		b.logger.Error("stats snapshot", zap.Error(err))
		return b.sendText(msg.Chat.ID, msgGenericError)
	}
	return b.sendText(msg.Chat.ID, fmt.Sprintf("📊 <b>Stats</b>\n• Users: %d\n• Referrals: %d", stats.Users, stats.Referrals))
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /start — show the steps and channel buttons\n" +
		"• /check — check your progress\n" +
		"• /link — your personal referral link\n" +
		"• /help — this message"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}

	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Warn("callback ack", zap.Error(err))
	}

	if cb.Data != cbCheck {
		return nil
	}
	b.logger.Info("callback check", zap.Int64("user_id", cb.From.ID))
	return b.handleCheck(ctx, cb.Message.Chat.ID, cb.From.ID)
}

func (b *Bot) startText(userID int64) string {
	link := escape(ReferralLink(b.username, userID))
	text := b.config.StartText
	if !strings.Contains(text, "{link}") {
		text += "\n\n🔗 Your personal link:\n{link}"
	}
	return strings.NewReplacer(
		"{channels}", strconv.Itoa(len(b.channels)),
		"{threshold}", strconv.Itoa(b.config.ReferralThreshold),
		"{link}", link,
	).Replace(text)
}

func (b *Bot) channelKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, ch := range b.channels {
		url := channelURL(ch)
		if url == "" {
			continue
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(fmt.Sprintf("Subscribe to %s", ch.Label), url),
		))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(btnDone, cbCheck),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

// ReferralLink is the deep link that registers the opener as referred by userID.
func ReferralLink(botUsername string, userID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", botUsername, userID)
}

// parseReferrer reads the /start payload. Non-numeric payloads and
// self-references are dropped.
func parseReferrer(args string, userID int64) *int64 {
	raw := strings.TrimSpace(args)
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 || id == userID {
		return nil
	}
	return &id
}

func renderResult(result service.EligibilityResult, rewardLink string) string {
	if result.Eligible() {
		return fmt.Sprintf("%s\n\n%s", msgCongratsTitle, escape(rewardLink))
	}
	var sb strings.Builder
	sb.WriteString(msgNotThereYet)
	for _, line := range result.Missing {
		sb.WriteString("\n• ")
		sb.WriteString(escape(line))
	}
	return sb.String()
}

func channelURL(ch service.ResolvedChannel) string {
	locator := strings.TrimSpace(ch.Locator)
	if strings.HasPrefix(locator, "https://") || strings.HasPrefix(locator, "http://") {
		return locator
	}
	switch ch.Handle.Kind {
	case model.LocatorUsername:
		return "https://t.me/" + strings.TrimPrefix(ch.Handle.Username, "@")
	case model.LocatorInvite:
		return "https://t.me/+" + ch.Handle.Invite
	default:
		return ""
	}
}

func escape(s string) string {
	return html.EscapeString(s)
}
