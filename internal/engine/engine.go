package engine

import (
	"context"
	"fmt"

	"freshledger/internal/config"
	"freshledger/internal/domain"
	"freshledger/internal/ledger"
)

// InvalidEventError reports a precondition violation: an event handed to an
// evaluator that cannot legally evaluate it. It names the offending field so
// the driver can surface it instead of propagating a wrong numeric answer.
type InvalidEventError struct {
	EventID int64
	Field   string
	Reason  string
}

func (e InvalidEventError) Error() string {
	return fmt.Sprintf("invalid event %d: %s %s", e.EventID, e.Field, e.Reason)
}

// Engine evaluates business rules against events stored in the ledger.
// It never mutates stored events directly; the one annotation it produces
// goes through Ledger.MarkViolation.
type Engine struct {
	Ledger *ledger.Ledger
	Config *config.Config
}

func New(l *ledger.Ledger, cfg *config.Config) Engine {
	return Engine{Ledger: l, Config: cfg}
}

// EvaluateConditions runs the two range checks on a condition-bearing event
// and commits the resulting violation flag to the ledger. Both checks always
// run; messages are ordered temperature first, humidity second.
func (e Engine) EvaluateConditions(ctx context.Context, evt domain.Event) (domain.ConditionResult, error) {
	if !evt.Type.ConditionBearing() {
		return domain.ConditionResult{}, InvalidEventError{EventID: evt.ID, Field: "event_type", Reason: fmt.Sprintf("%s is not condition-bearing", evt.Type)}
	}
	reading, err := evt.ConditionReading()
	if err != nil {
		return domain.ConditionResult{}, InvalidEventError{EventID: evt.ID, Field: "details.condition", Reason: "is required"}
	}
	th := reading.Thresholds

	var violations []string
	if reading.TempCelsius < th.MinTemp || reading.TempCelsius > th.MaxTemp {
		violations = append(violations, fmt.Sprintf(
			"temperature %.1f°C outside allowed range %.1f°C to %.1f°C",
			reading.TempCelsius, th.MinTemp, th.MaxTemp))
	}
	if reading.HumidityPercent < th.MinHumidity || reading.HumidityPercent > th.MaxHumidity {
		violations = append(violations, fmt.Sprintf(
			"humidity %.1f%% outside allowed range %.1f%% to %.1f%%",
			reading.HumidityPercent, th.MinHumidity, th.MaxHumidity))
	}

	if err := e.Ledger.MarkViolation(ctx, evt.ID, len(violations) > 0); err != nil {
		return domain.ConditionResult{}, err
	}

	status := domain.StatusConditionsMet
	if len(violations) > 0 {
		status = domain.StatusConditionViolation
	}
	return domain.ConditionResult{
		EventID:    evt.ID,
		ProductID:  evt.ProductID,
		Status:     status,
		Violations: violations,
	}, nil
}

// EvaluatePricing decides whether payment is released for a PAYMENT_REQUEST
// event. Spoilage is computed from ledger history (prior flagged violations
// for the same product), never from the request itself; the quality and
// delivery booleans gate only the release, not the spoilage computation.
// Results are not clamped: negative adjusted quantities pass through as
// computed.
func (e Engine) EvaluatePricing(ctx context.Context, evt domain.Event) (domain.PaymentDecision, error) {
	if evt.Type != domain.EventPaymentRequest {
		return domain.PaymentDecision{}, InvalidEventError{EventID: evt.ID, Field: "event_type", Reason: fmt.Sprintf("%s is not a payment request", evt.Type)}
	}
	terms, err := evt.PaymentTerms()
	if err != nil {
		return domain.PaymentDecision{}, InvalidEventError{EventID: evt.ID, Field: "details.payment", Reason: "is required"}
	}
	if terms.QuantityKg < 0 {
		return domain.PaymentDecision{}, InvalidEventError{EventID: evt.ID, Field: "quantity_kg", Reason: "must be non-negative"}
	}
	if terms.AgreedPricePerKg < 0 {
		return domain.PaymentDecision{}, InvalidEventError{EventID: evt.ID, Field: "agreed_price_per_kg", Reason: "must be non-negative"}
	}

	rate := e.Config.Pricing.DefaultSpoilageRate
	if terms.SpoilageRate != nil {
		rate = *terms.SpoilageRate
	}

	prior := e.Ledger.FindByProductWithViolation(ctx, evt.ProductID)
	hasPriorViolation := len(prior) > 0

	spoilageKg := 0.0
	if hasPriorViolation {
		spoilageKg = rate * terms.QuantityKg
	}
	adjusted := terms.QuantityKg - spoilageKg

	d := domain.PaymentDecision{
		EventID:            evt.ID,
		ProductID:          evt.ProductID,
		HasPriorViolation:  hasPriorViolation,
		SpoilageRate:       rate,
		SpoilageKg:         spoilageKg,
		AdjustedQuantityKg: adjusted,
	}
	switch {
	case terms.QualityVerified && terms.DeliveryConfirmed:
		d.Status = domain.StatusPaymentReleased
		d.Amount = adjusted * terms.AgreedPricePerKg
	case !terms.QualityVerified:
		// Quality wins over delivery regardless of delivery's value.
		d.Status = domain.StatusQualityPending
	case !terms.DeliveryConfirmed:
		d.Status = domain.StatusDeliveryPending
	default:
		// unreachable: the cases above are exhaustive over the two booleans
		d.Status = domain.StatusPending
	}
	return d, nil
}
