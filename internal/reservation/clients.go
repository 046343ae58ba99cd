package reservation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/AndresEncalada/tolerancia-fallos/internal/apperr"
)

// InventoryResult is the successful reservation response of the inventory
// collaborator.
type InventoryResult struct {
	ItemID         string `json:"item_id"`
	RemainingStock int    `json:"remaining_stock"`
}

// InventoryClient normalizes the inventory responses into the error
// taxonomy: 400 is a sold-out business outcome, 404 an unknown item, and
// anything else (5xx, unreachable) a dependency failure that feeds the
// breaker.
type InventoryClient struct {
	baseURL string
	http    *http.Client
}

func NewInventoryClient(baseURL string, client *http.Client) *InventoryClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &InventoryClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *InventoryClient) Reserve(ctx context.Context, itemID string) (InventoryResult, error) {
	resp, err := postJSON(ctx, c.http, c.baseURL+"/api/inventory/reserve", map[string]any{"item_id": itemID})
	if err != nil {
		return InventoryResult{}, fmt.Errorf("%w: %v", apperr.ErrInventoryDown, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return InventoryResult{}, apperr.ErrSoldOut
	case resp.StatusCode == http.StatusNotFound:
		return InventoryResult{}, apperr.ErrItemNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return InventoryResult{}, fmt.Errorf("%w: status %d", apperr.ErrInventoryDown, resp.StatusCode)
	}

	var result InventoryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return InventoryResult{}, fmt.Errorf("%w: invalid response: %v", apperr.ErrInventoryDown, err)
	}
	return result, nil
}

// PaymentClient calls the payment collaborator under the caller-imposed
// deadline. A deadline hit maps to the distinct payment-timeout kind; any
// other failure is a gateway failure.
type PaymentClient struct {
	baseURL string
	http    *http.Client
}

func NewPaymentClient(baseURL string, client *http.Client) *PaymentClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &PaymentClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *PaymentClient) Process(ctx context.Context, amount float64) (string, error) {
	resp, err := postJSON(ctx, c.http, c.baseURL+"/api/payment/process", map[string]any{"amount": amount})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", apperr.ErrPaymentTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", apperr.ErrPaymentGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d", apperr.ErrPaymentGateway, resp.StatusCode)
	}

	var result struct {
		TransactionID string `json:"transaction_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: invalid response: %v", apperr.ErrPaymentGateway, err)
	}
	return result.TransactionID, nil
}

// NotificationClient is the best-effort email collaborator.
type NotificationClient struct {
	baseURL string
	http    *http.Client
}

func NewNotificationClient(baseURL string, client *http.Client) *NotificationClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &NotificationClient{baseURL: strings.TrimRight(baseURL, "/"), http: client}
}

func (c *NotificationClient) Send(ctx context.Context, email, message string) error {
	resp, err := postJSON(ctx, c.http, c.baseURL+"/api/notification/send", map[string]any{"email": email, "message": message})
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrNotificationDown, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", apperr.ErrNotificationDown, resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url string, body any) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return client.Do(req)
}
