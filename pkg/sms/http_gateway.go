package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPGateway sends SMS through a provider's GET URL API authenticated with
// an API key, the style used by most Indian bulk SMS providers
type HTTPGateway struct {
	apiURL string
	apiKey string
	sender string // registered sender id
	client *http.Client
}

// NewHTTPGateway creates a new HTTP SMS gateway
func NewHTTPGateway(apiURL, apiKey, sender string) *HTTPGateway {
	return &HTTPGateway{
		apiURL: apiURL,
		apiKey: apiKey,
		sender: sender,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
}

// Send delivers one message
func (g *HTTPGateway) Send(ctx context.Context, phone, message string) (string, error) {
	if phone == "" {
		return "", fmt.Errorf("phone number is required")
	}

	params := url.Values{}
	params.Add("apikey", g.apiKey)
	params.Add("to", strings.TrimPrefix(phone, "+"))
	params.Add("sender", g.sender)
	params.Add("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build SMS request: %w", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send SMS: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read SMS response: %w", err)
	}
	responseStr := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("SMS API returned status %d: %s", resp.StatusCode, responseStr)
	}

	// Providers answer either a JSON envelope or a bare "1" for success
	if responseStr == "1" {
		return "", nil
	}
	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("unexpected SMS response: %s", responseStr)
	}
	if !strings.EqualFold(parsed.Status, "success") {
		return "", fmt.Errorf("SMS sending failed: %s", parsed.Error)
	}
	return parsed.MessageID, nil
}

// GetName returns the name of this SMS gateway
func (g *HTTPGateway) GetName() string {
	return "HTTP URL Gateway"
}
