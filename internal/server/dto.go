package server

import (
	"fmt"

	"freshledger/internal/domain"
	"freshledger/internal/scenario"
)

// Request payloads

type ConditionReadingRequest struct {
	TempCelsius     float64            `json:"current_temp_celsius"`
	HumidityPercent float64            `json:"current_humidity_percent" minimum:"0" maximum:"100"`
	Thresholds      *domain.Thresholds `json:"thresholds,omitempty"`
}

type PaymentTermsRequest struct {
	QualityVerified   bool     `json:"quality_verified"`
	DeliveryConfirmed bool     `json:"delivery_confirmed"`
	QuantityKg        float64  `json:"quantity_kg" minimum:"0"`
	AgreedPricePerKg  float64  `json:"agreed_price_per_kg" minimum:"0"`
	SpoilageRate      *float64 `json:"spoilage_rate,omitempty"`
}

type AppendEventRequest struct {
	ProductID string                   `json:"product_id" minLength:"1"`
	Location  string                   `json:"location,omitempty"`
	Type      string                   `json:"event_type" enum:"HARVEST,PROCESS,TRANSPORT,WAREHOUSE_RECEIPT,RETAIL_RECEIPT,PAYMENT_REQUEST"`
	Condition *ConditionReadingRequest `json:"condition,omitempty"`
	Payment   *PaymentTermsRequest     `json:"payment,omitempty"`
	Note      string                   `json:"note,omitempty"`
}

func (r AppendEventRequest) toInput(actorID string) (domain.EventInput, error) {
	t := domain.EventType(r.Type)
	in := domain.EventInput{
		ActorID:   actorID,
		ProductID: r.ProductID,
		Location:  r.Location,
		Type:      t,
		Details:   domain.Details{Note: r.Note},
	}
	switch {
	case t.ConditionBearing():
		if r.Condition == nil {
			return in, fmt.Errorf("condition details required for event type %s", t)
		}
		if r.Condition.Thresholds == nil {
			return in, fmt.Errorf("thresholds required for event type %s", t)
		}
		in.Details.Condition = &domain.ConditionReading{
			TempCelsius:     r.Condition.TempCelsius,
			HumidityPercent: r.Condition.HumidityPercent,
			Thresholds:      *r.Condition.Thresholds,
		}
	case t == domain.EventPaymentRequest:
		if r.Payment == nil {
			return in, fmt.Errorf("payment details required for event type %s", t)
		}
		in.Details.Payment = &domain.PaymentTerms{
			QualityVerified:   r.Payment.QualityVerified,
			DeliveryConfirmed: r.Payment.DeliveryConfirmed,
			QuantityKg:        r.Payment.QuantityKg,
			AgreedPricePerKg:  r.Payment.AgreedPricePerKg,
			SpoilageRate:      r.Payment.SpoilageRate,
		}
	}
	return in, nil
}

type ScenarioEntryRequest struct {
	ActorID         string                   `json:"actor_id,omitempty"`
	ProductID       string                   `json:"product_id" minLength:"1"`
	Location        string                   `json:"location,omitempty"`
	Type            string                   `json:"event_type" enum:"HARVEST,PROCESS,TRANSPORT,WAREHOUSE_RECEIPT,RETAIL_RECEIPT,PAYMENT_REQUEST"`
	Condition       *ConditionReadingRequest `json:"condition,omitempty"`
	Payment         *PaymentTermsRequest     `json:"payment,omitempty"`
	Note            string                   `json:"note,omitempty"`
	ThresholdPreset string                   `json:"threshold_preset,omitempty"`
}

type RunScenarioRequest struct {
	Name   string                 `json:"name,omitempty"`
	Events []ScenarioEntryRequest `json:"events,omitempty"`
}

func (r RunScenarioRequest) toScenario() scenario.Scenario {
	s := scenario.Scenario{Name: r.Name}
	for _, e := range r.Events {
		entry := scenario.Entry{
			ActorID:         e.ActorID,
			ProductID:       e.ProductID,
			Location:        e.Location,
			Type:            domain.EventType(e.Type),
			Details:         domain.Details{Note: e.Note},
			ThresholdPreset: e.ThresholdPreset,
		}
		if e.Condition != nil {
			reading := domain.ConditionReading{
				TempCelsius:     e.Condition.TempCelsius,
				HumidityPercent: e.Condition.HumidityPercent,
			}
			if e.Condition.Thresholds != nil {
				reading.Thresholds = *e.Condition.Thresholds
			}
			entry.Details.Condition = &reading
		}
		if e.Payment != nil {
			entry.Details.Payment = &domain.PaymentTerms{
				QualityVerified:   e.Payment.QualityVerified,
				DeliveryConfirmed: e.Payment.DeliveryConfirmed,
				QuantityKg:        e.Payment.QuantityKg,
				AgreedPricePerKg:  e.Payment.AgreedPricePerKg,
				SpoilageRate:      e.Payment.SpoilageRate,
			}
		}
		s.Events = append(s.Events, entry)
	}
	return s
}

// Response payloads

type EventListResponse struct {
	Events []domain.Event `json:"events"`
	Total  int            `json:"total"`
}
