package domain

import "fmt"

// EventType discriminates the Details payload carried by an Event.
type EventType string

const (
	EventHarvest          EventType = "HARVEST"
	EventProcess          EventType = "PROCESS"
	EventTransport        EventType = "TRANSPORT"
	EventWarehouseReceipt EventType = "WAREHOUSE_RECEIPT"
	EventRetailReceipt    EventType = "RETAIL_RECEIPT"
	EventPaymentRequest   EventType = "PAYMENT_REQUEST"
)

// ConditionBearing reports whether events of this type carry a condition
// reading that the conditions evaluator can check.
func (t EventType) ConditionBearing() bool {
	switch t {
	case EventTransport, EventWarehouseReceipt, EventRetailReceipt:
		return true
	}
	return false
}

// Known reports whether t is one of the fixed event types.
func (t EventType) Known() bool {
	switch t {
	case EventHarvest, EventProcess, EventTransport, EventWarehouseReceipt, EventRetailReceipt, EventPaymentRequest:
		return true
	}
	return false
}

// Thresholds is the acceptable-range configuration attached to a
// condition-bearing event. Bounds are closed: a reading equal to a bound is
// within range.
type Thresholds struct {
	MinTemp     float64 `json:"min_temp" yaml:"min_temp"`
	MaxTemp     float64 `json:"max_temp" yaml:"max_temp"`
	MinHumidity float64 `json:"min_humidity" yaml:"min_humidity"`
	MaxHumidity float64 `json:"max_humidity" yaml:"max_humidity"`
}

// ConditionReading is the Details variant for TRANSPORT, WAREHOUSE_RECEIPT
// and RETAIL_RECEIPT events.
type ConditionReading struct {
	TempCelsius     float64    `json:"current_temp_celsius" yaml:"current_temp_celsius"`
	HumidityPercent float64    `json:"current_humidity_percent" yaml:"current_humidity_percent"`
	Thresholds      Thresholds `json:"thresholds" yaml:"thresholds"`
}

// PaymentTerms is the Details variant for PAYMENT_REQUEST events.
// SpoilageRate is optional; the pricing evaluator resolves a nil rate to the
// configured default at evaluation time, never at append time.
type PaymentTerms struct {
	QualityVerified   bool     `json:"quality_verified" yaml:"quality_verified"`
	DeliveryConfirmed bool     `json:"delivery_confirmed" yaml:"delivery_confirmed"`
	QuantityKg        float64  `json:"quantity_kg" yaml:"quantity_kg"`
	AgreedPricePerKg  float64  `json:"agreed_price_per_kg" yaml:"agreed_price_per_kg"`
	SpoilageRate      *float64 `json:"spoilage_rate,omitempty" yaml:"spoilage_rate,omitempty"`
}

// Details is the tagged payload of an Event. At most one variant pointer is
// set; Note is free-form context for HARVEST and PROCESS entries.
type Details struct {
	Condition *ConditionReading `json:"condition,omitempty" yaml:"condition,omitempty"`
	Payment   *PaymentTerms     `json:"payment,omitempty" yaml:"payment,omitempty"`
	Note      string            `json:"note,omitempty" yaml:"note,omitempty"`
}

// EventInput is the caller-supplied part of an Event; the ledger assigns the
// id and timestamp at append time.
type EventInput struct {
	ActorID   string    `json:"actor_id" yaml:"actor_id"`
	ProductID string    `json:"product_id" yaml:"product_id"`
	Location  string    `json:"location" yaml:"location"`
	Type      EventType `json:"event_type" yaml:"event_type"`
	Details   Details   `json:"details" yaml:"details"`
}

// Event is one ledger entry. Immutable once appended except for Violation,
// which the conditions evaluator sets exactly once through the ledger.
type Event struct {
	ID        int64     `json:"id"`
	ActorID   string    `json:"actor_id"`
	ProductID string    `json:"product_id"`
	Location  string    `json:"location"`
	Type      EventType `json:"event_type"`
	TS        string    `json:"ts" format:"date-time"`
	Details   Details   `json:"details"`
	Violation *bool     `json:"violation_detected,omitempty"`
}

// ViolationDetected treats an absent flag as false, never as an error.
func (e Event) ViolationDetected() bool {
	return e.Violation != nil && *e.Violation
}

// ConditionReading returns the condition variant or an error when the event
// does not carry one.
func (e Event) ConditionReading() (*ConditionReading, error) {
	if !e.Type.ConditionBearing() || e.Details.Condition == nil {
		return nil, fmt.Errorf("event %d (%s) carries no condition reading", e.ID, e.Type)
	}
	return e.Details.Condition, nil
}

// PaymentTerms returns the payment variant or an error when the event does
// not carry one.
func (e Event) PaymentTerms() (*PaymentTerms, error) {
	if e.Type != EventPaymentRequest || e.Details.Payment == nil {
		return nil, fmt.Errorf("event %d (%s) carries no payment terms", e.ID, e.Type)
	}
	return e.Details.Payment, nil
}

// Condition evaluation statuses.
const (
	StatusConditionsMet      = "Conditions Met"
	StatusConditionViolation = "Condition Violation"
)

// ConditionResult is the outcome of evaluating one condition-bearing event.
// Violations lists human-readable messages, temperature first.
type ConditionResult struct {
	EventID    int64    `json:"event_id"`
	ProductID  string   `json:"product_id"`
	Status     string   `json:"status" enum:"Conditions Met,Condition Violation"`
	Violations []string `json:"violations,omitempty"`
}

// Payment decision statuses, in precedence order.
const (
	StatusPaymentReleased = "Payment Released"
	StatusQualityPending  = "Quality Pending"
	StatusDeliveryPending = "Delivery Pending"
	StatusPending         = "Pending"
)

// PaymentDecision is the outcome of evaluating one PAYMENT_REQUEST event.
type PaymentDecision struct {
	EventID            int64   `json:"event_id"`
	ProductID          string  `json:"product_id"`
	Status             string  `json:"status" enum:"Payment Released,Quality Pending,Delivery Pending,Pending"`
	HasPriorViolation  bool    `json:"has_prior_violation"`
	SpoilageRate       float64 `json:"spoilage_rate"`
	SpoilageKg         float64 `json:"spoilage_kg"`
	AdjustedQuantityKg float64 `json:"adjusted_quantity_kg"`
	Amount             float64 `json:"amount"`
}
