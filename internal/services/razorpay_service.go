package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rideshare/seat-booking-backend/internal/config"
	"github.com/rideshare/seat-booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// Gateway payment statuses that count as paid
const (
	PaymentStatusCaptured   = "captured"
	PaymentStatusAuthorized = "authorized"
)

// Webhook events handled by the reconciliation service
const (
	WebhookPaymentCaptured = "payment.captured"
	WebhookPaymentFailed   = "payment.failed"
)

// RazorpayService talks to the Razorpay orders and payments API
type RazorpayService struct {
	config *config.PaymentConfig
	logger *logrus.Logger
	client *http.Client
}

// NewRazorpayService creates a new Razorpay client
func NewRazorpayService(cfg *config.PaymentConfig, logger *logrus.Logger) *RazorpayService {
	return &RazorpayService{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OrderRequest describes an order to create
type OrderRequest struct {
	Amount   int64             `json:"amount"` // minor units
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// GatewayNotes are the free-form notes attached to an order or payment.
// The API sends an empty array instead of an empty object.
type GatewayNotes map[string]string

// UnmarshalJSON accepts both an object and an empty array
func (n *GatewayNotes) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "[]" || trimmed == "null" {
		*n = GatewayNotes{}
		return nil
	}
	m := map[string]string{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*n = m
	return nil
}

// GatewayOrder is an order as returned by the gateway
type GatewayOrder struct {
	ID       string       `json:"id"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	Receipt  string       `json:"receipt"`
	Status   string       `json:"status"`
	Notes    GatewayNotes `json:"notes"`
}

// GatewayPayment is a payment as returned by the gateway
type GatewayPayment struct {
	ID       string       `json:"id"`
	OrderID  string       `json:"order_id"`
	Status   string       `json:"status"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
	Method   string       `json:"method"`
	Notes    GatewayNotes `json:"notes"`
}

// IsSuccessful reports whether the payment was captured or authorized
func (p *GatewayPayment) IsSuccessful() bool {
	return p.Status == PaymentStatusCaptured || p.Status == PaymentStatusAuthorized
}

// WebhookEvent is the envelope of a payment webhook
type WebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity GatewayPayment `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type gatewayErrorBody struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// KeyID returns the public key id the checkout widget needs
func (s *RazorpayService) KeyID() string {
	return s.config.KeyID
}

// CreateOrder creates a payment order
func (s *RazorpayService) CreateOrder(ctx context.Context, req OrderRequest) (*GatewayOrder, error) {
	if req.Currency == "" {
		req.Currency = s.config.Currency
	}

	var order GatewayOrder
	if err := s.do(ctx, http.MethodPost, "/v1/orders", req, &order); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"amount":   order.Amount,
		"receipt":  order.Receipt,
	}).Info("Payment order created")

	return &order, nil
}

// FetchOrder returns an order by id
func (s *RazorpayService) FetchOrder(ctx context.Context, orderID string) (*GatewayOrder, error) {
	var order GatewayOrder
	if err := s.do(ctx, http.MethodGet, "/v1/orders/"+orderID, nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// FetchPayment returns a payment by id
func (s *RazorpayService) FetchPayment(ctx context.Context, paymentID string) (*GatewayPayment, error) {
	var payment GatewayPayment
	if err := s.do(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

// VerifySignature checks the checkout signature:
// hex(HMAC-SHA256(key secret, orderID + "|" + paymentID))
func (s *RazorpayService) VerifySignature(orderID, paymentID, signature string) bool {
	return verifyHMAC(s.config.KeySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhookSignature checks a webhook body against its signature header
func (s *RazorpayService) VerifyWebhookSignature(body []byte, signature string) bool {
	if s.config.WebhookSecret == "" {
		return false
	}
	return verifyHMAC(s.config.WebhookSecret, body, signature)
}

// ParseWebhook verifies and decodes a webhook body
func (s *RazorpayService) ParseWebhook(body []byte, signature string) (*WebhookEvent, error) {
	if !s.VerifyWebhookSignature(body, signature) {
		return nil, &models.AuthenticityError{Message: "webhook signature verification failed"}
	}
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, models.NewValidationError("body", "invalid webhook payload")
	}
	return &event, nil
}

// SignPayload returns the signature the gateway would produce for payload
func SignPayload(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifyHMAC(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := SignPayload(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// do performs an authenticated API call and decodes the JSON response into out
func (s *RazorpayService) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(s.config.BaseURL, "/")+path, body)
	if err != nil {
		return &models.GatewayError{Err: err}
	}
	req.SetBasicAuth(s.config.KeyID, s.config.KeySecret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Error("Payment gateway request failed")
		return &models.GatewayError{Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &models.GatewayError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gwErr gatewayErrorBody
		_ = json.Unmarshal(respBody, &gwErr)
		s.logger.WithFields(logrus.Fields{
			"path":        path,
			"status_code": resp.StatusCode,
			"code":        gwErr.Error.Code,
		}).Warn("Payment gateway returned an error")
		return &models.GatewayError{
			Code:        gwErr.Error.Code,
			Description: gwErr.Error.Description,
			Err:         fmt.Errorf("status %d", resp.StatusCode),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &models.GatewayError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}
