package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/metrics"
)

var _ adapter.ChatProvider = (*ChatProvider)(nil)

// ChatProvider implements adapter.ChatProvider on the Telegram Bot API.
type ChatProvider struct {
	bot *tgbotapi.BotAPI
}

func NewChatProvider(bot *tgbotapi.BotAPI) *ChatProvider {
	return &ChatProvider{bot: bot}
}

func (p *ChatProvider) MemberStatus(ctx context.Context, chatID, userID int64) (adapter.MemberStatus, error) {
	member, err := p.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	})
	if err != nil {
		mapped := mapAPIError(err)
		if errors.Is(mapped, domain.ErrMemberNotFound) {
			return adapter.MemberStatusNone, nil
		}
		return adapter.MemberStatusNone, mapped
	}
	switch member.Status {
	case "creator":
		return adapter.MemberStatusOwner, nil
	case "administrator":
		return adapter.MemberStatusAdmin, nil
	case "member":
		return adapter.MemberStatusMember, nil
	case "restricted":
		if member.IsMember {
			return adapter.MemberStatusMember, nil
		}
		return adapter.MemberStatusNone, nil
	default: // left, kicked
		return adapter.MemberStatusNone, nil
	}
}

func (p *ChatProvider) CreateInviteLink(ctx context.Context, chatID int64, ttl time.Duration, memberLimit int) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:  tgbotapi.ChatConfig{ChatID: chatID},
		ExpireDate:  int(time.Now().Add(ttl).Unix()),
		MemberLimit: memberLimit,
	}
	resp, err := p.bot.Request(cfg)
	if err != nil {
		return "", mapAPIError(err)
	}
	var link tgbotapi.ChatInviteLink
	if err := json.Unmarshal(resp.Result, &link); err != nil {
		return "", err
	}
	metrics.IncInviteLinksCreated(1)
	return link.InviteLink, nil
}

// KickMember removes via ban then unban, so the user can come back later
// through a fresh invite link.
func (p *ChatProvider) KickMember(ctx context.Context, chatID, userID int64) error {
	ban := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	}
	if _, err := p.bot.Request(ban); err != nil {
		return mapAPIError(err)
	}
	unban := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	}
	if _, err := p.bot.Request(unban); err != nil {
		return mapAPIError(err)
	}
	return nil
}

func (p *ChatProvider) SendMessage(ctx context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := p.bot.Send(msg); err != nil {
		return mapAPIError(err)
	}
	return nil
}

// mapAPIError translates Telegram API failures into domain errors so the
// use cases stay platform-agnostic.
func mapAPIError(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	if apiErr.RetryAfter > 0 {
		metrics.IncChatRateLimited()
		return &adapter.RateLimitedError{RetryAfter: time.Duration(apiErr.RetryAfter) * time.Second}
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(msg, "user not found"),
		strings.Contains(msg, "participant_id_invalid"),
		strings.Contains(msg, "user_not_participant"):
		return domain.ErrMemberNotFound
	case strings.Contains(msg, "chat owner"),
		strings.Contains(msg, "can't remove chat owner"):
		return domain.ErrCannotKickOwner
	case apiErr.Code == 403, strings.Contains(msg, "not enough rights"):
		return domain.ErrPermissionDenied
	}
	return err
}
