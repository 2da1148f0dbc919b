package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

// User is a domain entity representing a Telegram user in our system.
// Users are upserted on first contact and never hard-deleted.
type User struct {
	ID           string
	TelegramID   int64
	Username     string
	FirstName    string
	ReferralCode string // optional, unique; empty until the user asks for one
	RegisteredAt time.Time
	LastActiveAt time.Time
}

func NewUser(id string, tgID int64, username, firstName string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if tgID <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:           id,
		TelegramID:   tgID,
		Username:     username,
		FirstName:    firstName,
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
func (u *User) Touch()       { u.LastActiveAt = time.Now() }

// DefaultReferralCode derives the user's referral code from the Telegram ID.
func (u *User) DefaultReferralCode() string {
	return fmt.Sprintf("REF%d", u.TelegramID)
}
