package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/config"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/model"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/domain/ports/adapter"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/metrics"
)

const defaultBaseURL = "https://api.mercadopago.com"

var _ adapter.PaymentGateway = (*MercadoPagoGateway)(nil)

// MercadoPagoGateway implements adapter.PaymentGateway against the Mercado
// Pago payments API, PIX method only.
type MercadoPagoGateway struct {
	accessToken     string
	notificationURL string
	baseURL         string
	client          *http.Client
	log             *zerolog.Logger
}

func NewMercadoPagoGateway(cfg *config.MercadoPagoConfig, logger *zerolog.Logger) *MercadoPagoGateway {
	l := logger.With().Str("component", "MercadoPago").Logger()
	return &MercadoPagoGateway{
		accessToken:     cfg.AccessToken,
		notificationURL: cfg.NotificationURL,
		baseURL:         defaultBaseURL,
		client:          &http.Client{Timeout: 15 * time.Second},
		log:             &l,
	}
}

func (g *MercadoPagoGateway) Name() string { return "mercadopago" }

type createPaymentRequest struct {
	TransactionAmount float64      `json:"transaction_amount"`
	Description       string       `json:"description"`
	PaymentMethodID   string       `json:"payment_method_id"`
	ExternalReference string       `json:"external_reference"`
	NotificationURL   string       `json:"notification_url,omitempty"`
	Payer             paymentPayer `json:"payer"`
}

type paymentPayer struct {
	Email string `json:"email"`
}

type paymentResponse struct {
	ID                 json.Number `json:"id"`
	Status             string      `json:"status"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
}

// CreateCharge creates a one-shot PIX charge. Amounts travel in centavos
// internally and convert to reais only at this boundary.
func (g *MercadoPagoGateway) CreateCharge(ctx context.Context, idempotencyKey string, amountCents int64, description, correlationID string) (*model.PixCharge, error) {
	body := createPaymentRequest{
		TransactionAmount: float64(amountCents) / 100,
		Description:       description,
		PaymentMethodID:   "pix",
		ExternalReference: correlationID,
		NotificationURL:   g.notificationURL,
		Payer:             paymentPayer{Email: fmt.Sprintf("%s@buyer.invalid", correlationID)},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Idempotency-Key", idempotencyKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mercadopago create payment: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		g.log.Error().Int("status", resp.StatusCode).Bytes("body", raw).Msg("create payment rejected")
		return nil, fmt.Errorf("mercadopago create payment: status %d", resp.StatusCode)
	}

	var out paymentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("mercadopago create payment: decode: %w", err)
	}
	metrics.IncChargesCreated(g.Name())
	return &model.PixCharge{
		PaymentID:     out.ID.String(),
		QRCodeBase64:  out.PointOfInteraction.TransactionData.QRCodeBase64,
		CopyPasteCode: out.PointOfInteraction.TransactionData.QRCode,
	}, nil
}

func (g *MercadoPagoGateway) ChargeStatus(ctx context.Context, paymentID string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/v1/payments/"+paymentID, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mercadopago get payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mercadopago get payment: status %d", resp.StatusCode)
	}
	var out paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mercadopago get payment: decode: %w", err)
	}
	return out.Status, nil
}
