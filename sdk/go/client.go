package freshledgersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Freshledger HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	ActorID     string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Thresholds is the acceptable-range configuration for a condition reading.
type Thresholds struct {
	MinTemp     float64 `json:"min_temp"`
	MaxTemp     float64 `json:"max_temp"`
	MinHumidity float64 `json:"min_humidity"`
	MaxHumidity float64 `json:"max_humidity"`
}

// ConditionReading is the environment measurement carried by transport and
// receipt events.
type ConditionReading struct {
	TempCelsius     float64    `json:"current_temp_celsius"`
	HumidityPercent float64    `json:"current_humidity_percent"`
	Thresholds      Thresholds `json:"thresholds"`
}

// PaymentTerms is the payload of a payment request.
type PaymentTerms struct {
	QualityVerified   bool     `json:"quality_verified"`
	DeliveryConfirmed bool     `json:"delivery_confirmed"`
	QuantityKg        float64  `json:"quantity_kg"`
	AgreedPricePerKg  float64  `json:"agreed_price_per_kg"`
	SpoilageRate      *float64 `json:"spoilage_rate,omitempty"`
}

// Event represents one ledger entry.
type Event struct {
	ID        int64  `json:"id"`
	ActorID   string `json:"actor_id"`
	ProductID string `json:"product_id"`
	Location  string `json:"location"`
	Type      string `json:"event_type"`
	TS        string `json:"ts"`
	Details   struct {
		Condition *ConditionReading `json:"condition,omitempty"`
		Payment   *PaymentTerms     `json:"payment,omitempty"`
		Note      string            `json:"note,omitempty"`
	} `json:"details"`
	Violation *bool `json:"violation_detected,omitempty"`
}

// ConditionResult is the outcome of a conditions evaluation.
type ConditionResult struct {
	EventID    int64    `json:"event_id"`
	ProductID  string   `json:"product_id"`
	Status     string   `json:"status"`
	Violations []string `json:"violations,omitempty"`
}

// PaymentDecision is the outcome of a payment evaluation.
type PaymentDecision struct {
	EventID            int64   `json:"event_id"`
	ProductID          string  `json:"product_id"`
	Status             string  `json:"status"`
	HasPriorViolation  bool    `json:"has_prior_violation"`
	SpoilageRate       float64 `json:"spoilage_rate"`
	SpoilageKg         float64 `json:"spoilage_kg"`
	AdjustedQuantityKg float64 `json:"adjusted_quantity_kg"`
	Amount             float64 `json:"amount"`
}

// EventList wraps list responses.
type EventList struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
}

// AppendEvent holds the caller-supplied part of a new ledger entry.
type AppendEvent struct {
	ProductID string            `json:"product_id"`
	Location  string            `json:"location,omitempty"`
	Type      string            `json:"event_type"`
	Condition *ConditionReading `json:"condition,omitempty"`
	Payment   *PaymentTerms     `json:"payment,omitempty"`
	Note      string            `json:"note,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Append stores a new event in the ledger.
func (c *Client) Append(ctx context.Context, in AppendEvent) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodPost, "v0/events", in, &resp)
	return resp, err
}

// Events lists ledger events, optionally filtered by product.
func (c *Client) Events(ctx context.Context, productID string, limit int) ([]Event, error) {
	endpoint := "v0/events"
	params := url.Values{}
	if productID != "" {
		params.Set("product_id", productID)
	}
	if limit > 0 {
		params.Set("limit", fmt.Sprint(limit))
	}
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var resp EventList
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

// Event fetches one ledger entry by id.
func (c *Client) Event(ctx context.Context, id int64) (Event, error) {
	var resp Event
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/events/%d", id), nil, &resp)
	return resp, err
}

// EvaluateConditions runs the conditions rule against a stored event.
func (c *Client) EvaluateConditions(ctx context.Context, id int64) (ConditionResult, error) {
	var resp ConditionResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/events/%d/conditions", id), nil, &resp)
	return resp, err
}

// EvaluatePayment runs the pricing rule against a stored payment request.
func (c *Client) EvaluatePayment(ctx context.Context, id int64) (PaymentDecision, error) {
	var resp PaymentDecision
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("v0/events/%d/payment", id), nil, &resp)
	return resp, err
}

// Violations lists events flagged with violations for a product.
func (c *Client) Violations(ctx context.Context, productID string) ([]Event, error) {
	var resp EventList
	endpoint := fmt.Sprintf("v0/products/%s/violations", url.PathEscape(productID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Events, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
