package driver

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"freshledger/internal/domain"
	"freshledger/internal/engine"
	"freshledger/internal/scenario"
)

// Outcome records what happened to one scenario event: the stored ledger
// entry plus the evaluator result, if the event was dispatched to one.
type Outcome struct {
	Event     domain.Event            `json:"event"`
	Condition *domain.ConditionResult `json:"condition,omitempty"`
	Payment   *domain.PaymentDecision `json:"payment,omitempty"`
}

// Report summarizes one scenario run.
type Report struct {
	RunID          string    `json:"run_id"`
	Scenario       string    `json:"scenario"`
	Outcomes       []Outcome `json:"outcomes"`
	ViolationCount int       `json:"violation_count"`
	ReleasedTotal  float64   `json:"released_total"`
}

// Run feeds a scenario through the engine: each event is appended to the
// ledger in order, then dispatched by type. Condition-bearing events with a
// reading go to the conditions evaluator, payment requests to the pricing
// evaluator, everything else is appended without dispatch. Order matters:
// pricing only sees violations already committed by earlier condition
// evaluations.
func Run(ctx context.Context, eng engine.Engine, s scenario.Scenario) (Report, error) {
	inputs, err := s.Resolve(eng.Config)
	if err != nil {
		return Report{}, err
	}
	report := Report{
		RunID:    uuid.New().String(),
		Scenario: s.Name,
	}
	for _, in := range inputs {
		evt := eng.Ledger.Append(ctx, in)
		out := Outcome{Event: evt}
		switch {
		case evt.Type.ConditionBearing() && evt.Details.Condition != nil:
			res, err := eng.EvaluateConditions(ctx, evt)
			if err != nil {
				return report, fmt.Errorf("evaluate conditions for event %d: %w", evt.ID, err)
			}
			out.Condition = &res
			// the stored flag is part of the outcome's ledger view
			out.Event, _ = eng.Ledger.Get(ctx, evt.ID)
			if res.Status == domain.StatusConditionViolation {
				report.ViolationCount++
			}
		case evt.Type == domain.EventPaymentRequest:
			dec, err := eng.EvaluatePricing(ctx, evt)
			if err != nil {
				return report, fmt.Errorf("evaluate pricing for event %d: %w", evt.ID, err)
			}
			out.Payment = &dec
			if dec.Status == domain.StatusPaymentReleased {
				report.ReleasedTotal += dec.Amount
			}
		}
		report.Outcomes = append(report.Outcomes, out)
	}
	return report, nil
}
