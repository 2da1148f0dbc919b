package model

import (
	"time"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain"
)

// PaymentCharge is the structured correlation record for an external PIX
// charge. It is persisted alongside the pending subscription and looked up
// by payment ID when the asynchronous confirmation arrives, instead of
// packing user/product/coupon/referrer into a delimited string.
type PaymentCharge struct {
	PaymentID    string // provider payment id, globally unique
	UserID       string
	ProductID    string
	CouponID     string // empty if none
	ReferrerID   string // empty if the purchase carried no referral
	ReferralCode string
	AmountCents  int64
	Provider     string
	CreatedAt    time.Time
}

func NewPaymentCharge(paymentID, userID, productID string, amountCents int64, provider string) (*PaymentCharge, error) {
	if paymentID == "" || userID == "" || productID == "" || amountCents < 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &PaymentCharge{
		PaymentID:   paymentID,
		UserID:      userID,
		ProductID:   productID,
		AmountCents: amountCents,
		Provider:    provider,
		CreatedAt:   time.Now(),
	}, nil
}

// PixCharge is the delivery-ready payload returned by the payment gateway
// when a charge is created.
type PixCharge struct {
	PaymentID     string
	QRCodeBase64  string
	CopyPasteCode string
}
