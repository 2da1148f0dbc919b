package model

import (
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

// Group is a membership target: a Telegram group or channel that active
// subscribers should be invited to and revokees removed from.
type Group struct {
	ID        string
	ChatID    int64
	Title     string
	CreatedAt time.Time
}

func NewGroup(id string, chatID int64, title string) (*Group, error) {
	if id == "" || chatID == 0 || title == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Group{ID: id, ChatID: chatID, Title: title, CreatedAt: time.Now()}, nil
}
