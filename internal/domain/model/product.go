package model

import (
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

// Product is a purchasable access plan. Prices are stored in centavos to
// avoid float drift. A nil DurationDays means lifetime, non-expiring access.
type Product struct {
	ID           string
	Name         string
	PriceCents   int64
	DurationDays *int // nil = lifetime
	CreatedAt    time.Time
}

// NewProduct validates and constructs a product.
func NewProduct(id, name string, priceCents int64, durationDays *int) (*Product, error) {
	if id == "" || name == "" || priceCents < 0 {
		return nil, domain.ErrInvalidArgument
	}
	if durationDays != nil && *durationDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Product{
		ID:           id,
		Name:         name,
		PriceCents:   priceCents,
		DurationDays: durationDays,
		CreatedAt:    time.Now(),
	}, nil
}

func (p *Product) IsZero() bool      { return p == nil || p.ID == "" }
func (p *Product) IsLifetime() bool  { return p.DurationDays == nil }
