package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"freshledger/internal/config"
	"freshledger/internal/domain"
	"freshledger/internal/engine"
	"freshledger/internal/ledger"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	l := ledger.New()
	l.Now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: engine.New(l, config.Default()), Ctx: context.Background()}
}

func (env testEnv) appendCondition(t *testing.T, product string, temp, humidity float64, th domain.Thresholds) domain.Event {
	t.Helper()
	return env.Engine.Ledger.Append(env.Ctx, domain.EventInput{
		ActorID:   "tester",
		ProductID: product,
		Location:  "truck",
		Type:      domain.EventTransport,
		Details: domain.Details{Condition: &domain.ConditionReading{
			TempCelsius:     temp,
			HumidityPercent: humidity,
			Thresholds:      th,
		}},
	})
}

func (env testEnv) appendPayment(t *testing.T, product string, terms domain.PaymentTerms) domain.Event {
	t.Helper()
	return env.Engine.Ledger.Append(env.Ctx, domain.EventInput{
		ActorID:   "tester",
		ProductID: product,
		Location:  "farm",
		Type:      domain.EventPaymentRequest,
		Details:   domain.Details{Payment: &terms},
	})
}

func TestConditionsWithinRange(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	evt := env.appendCondition(t, "P-1", 24, 50, th)
	res, err := env.Engine.EvaluateConditions(env.Ctx, evt)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if res.Status != domain.StatusConditionsMet || len(res.Violations) != 0 {
		t.Fatalf("expected met with no violations, got %+v", res)
	}
	stored, _ := env.Engine.Ledger.Get(env.Ctx, evt.ID)
	if stored.Violation == nil || *stored.Violation {
		t.Fatalf("expected violation flag stored as false")
	}
}

func TestConditionsBoundsAreClosed(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	// readings exactly at the bounds are within range
	evt := env.appendCondition(t, "P-1", 28, 40, th)
	res, err := env.Engine.EvaluateConditions(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusConditionsMet {
		t.Fatalf("expected met at bounds, got %+v", res)
	}
}

func TestConditionsTemperatureOnly(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	evt := env.appendCondition(t, "P-1", 30, 50, th)
	res, err := env.Engine.EvaluateConditions(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != domain.StatusConditionViolation {
		t.Fatalf("expected violation, got %s", res.Status)
	}
	if len(res.Violations) != 1 || !strings.Contains(res.Violations[0], "temperature") {
		t.Fatalf("expected exactly one temperature message, got %v", res.Violations)
	}
}

func TestConditionsBothChecksRun(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	evt := env.appendCondition(t, "P-1", 10, 95, th)
	res, err := env.Engine.EvaluateConditions(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Violations) != 2 {
		t.Fatalf("expected two messages, got %v", res.Violations)
	}
	// temperature first, humidity second, regardless of severity
	if !strings.Contains(res.Violations[0], "temperature") || !strings.Contains(res.Violations[1], "humidity") {
		t.Fatalf("expected temperature message first, got %v", res.Violations)
	}
}

func TestConditionsAnnotationPersists(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	bad := env.appendCondition(t, "P-1", 30, 50, th)
	good := env.appendCondition(t, "P-1", 24, 50, th)
	if _, err := env.Engine.EvaluateConditions(env.Ctx, bad); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.EvaluateConditions(env.Ctx, good); err != nil {
		t.Fatal(err)
	}
	flagged := env.Engine.Ledger.FindByProductWithViolation(env.Ctx, "P-1")
	if len(flagged) != 1 || flagged[0].ID != bad.ID {
		t.Fatalf("expected only the breaching event flagged, got %+v", flagged)
	}
}

func TestConditionsRejectsWrongType(t *testing.T) {
	env := newTestEnv(t)
	evt := env.Engine.Ledger.Append(env.Ctx, domain.EventInput{
		ActorID: "tester", ProductID: "P-1", Type: domain.EventHarvest,
		Details: domain.Details{Note: "harvest"},
	})
	_, err := env.Engine.EvaluateConditions(env.Ctx, evt)
	var ie engine.InvalidEventError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidEventError, got %v", err)
	}
	if ie.Field != "event_type" {
		t.Fatalf("expected event_type field, got %s", ie.Field)
	}
}

func TestConditionsRejectsMissingReading(t *testing.T) {
	env := newTestEnv(t)
	evt := env.Engine.Ledger.Append(env.Ctx, domain.EventInput{
		ActorID: "tester", ProductID: "P-1", Type: domain.EventTransport,
	})
	_, err := env.Engine.EvaluateConditions(env.Ctx, evt)
	var ie engine.InvalidEventError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidEventError, got %v", err)
	}
}

func TestPricingNoPriorViolation(t *testing.T) {
	env := newTestEnv(t)
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: true,
		QuantityKg: 200, AgreedPricePerKg: 10,
	})
	dec, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if dec.HasPriorViolation || dec.SpoilageKg != 0 {
		t.Fatalf("expected zero spoilage, got %+v", dec)
	}
	if dec.Status != domain.StatusPaymentReleased || dec.Amount != 2000 {
		t.Fatalf("expected full payment 2000, got %+v", dec)
	}
}

func TestPricingAppliesSpoilage(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	bad := env.appendCondition(t, "MANGO-2024-001", 30, 50, th)
	if _, err := env.Engine.EvaluateConditions(env.Ctx, bad); err != nil {
		t.Fatal(err)
	}
	rate := 0.15
	evt := env.appendPayment(t, "MANGO-2024-001", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: true,
		QuantityKg: 500, AgreedPricePerKg: 350, SpoilageRate: &rate,
	})
	dec, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.HasPriorViolation {
		t.Fatalf("expected prior violation")
	}
	if dec.SpoilageKg != 75 || dec.AdjustedQuantityKg != 425 {
		t.Fatalf("expected spoilage 75kg adjusted 425kg, got %+v", dec)
	}
	if dec.Status != domain.StatusPaymentReleased || dec.Amount != 148750 {
		t.Fatalf("expected 148750 released, got %+v", dec)
	}
}

func TestPricingDefaultSpoilageRate(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 2, MaxTemp: 8, MinHumidity: 60, MaxHumidity: 90}
	bad := env.appendCondition(t, "P-1", 12, 75, th)
	if _, err := env.Engine.EvaluateConditions(env.Ctx, bad); err != nil {
		t.Fatal(err)
	}
	// no explicit rate: the config default 0.15 applies at evaluation time
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: true,
		QuantityKg: 100, AgreedPricePerKg: 1,
	})
	dec, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if dec.SpoilageRate != 0.15 || dec.SpoilageKg != 15 || dec.Amount != 85 {
		t.Fatalf("expected default rate 0.15 applied, got %+v", dec)
	}
}

func TestPricingQualityWinsOverDelivery(t *testing.T) {
	env := newTestEnv(t)
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: false, DeliveryConfirmed: false,
		QuantityKg: 10, AgreedPricePerKg: 5,
	})
	dec, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Status != domain.StatusQualityPending || dec.Amount != 0 {
		t.Fatalf("expected quality pending with zero amount, got %+v", dec)
	}
}

func TestPricingDeliveryPending(t *testing.T) {
	env := newTestEnv(t)
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: false,
		QuantityKg: 10, AgreedPricePerKg: 5,
	})
	dec, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if dec.Status != domain.StatusDeliveryPending || dec.Amount != 0 {
		t.Fatalf("expected delivery pending, got %+v", dec)
	}
}

func TestPricingUnclampedArithmetic(t *testing.T) {
	env := newTestEnv(t)
	th := domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60}
	bad := env.appendCondition(t, "P-1", 35, 50, th)
	if _, err := env.Engine.EvaluateConditions(env.Ctx, bad); err != nil {
		t.Fatal(err)
	}
	// a rate above 1 drives the adjusted quantity negative; it passes through
	rate := 1.5
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: true,
		QuantityKg: 100, AgreedPricePerKg: 2, SpoilageRate: &rate,
	})
	dec, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	if err != nil {
		t.Fatal(err)
	}
	if dec.AdjustedQuantityKg != -50 || dec.Amount != -100 {
		t.Fatalf("expected pass-through arithmetic, got %+v", dec)
	}
}

func TestPricingRejectsWrongType(t *testing.T) {
	env := newTestEnv(t)
	evt := env.Engine.Ledger.Append(env.Ctx, domain.EventInput{
		ActorID: "tester", ProductID: "P-1", Type: domain.EventHarvest,
	})
	_, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	var ie engine.InvalidEventError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidEventError, got %v", err)
	}
}

func TestPricingRejectsNegativeQuantity(t *testing.T) {
	env := newTestEnv(t)
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: true,
		QuantityKg: -1, AgreedPricePerKg: 5,
	})
	_, err := env.Engine.EvaluatePricing(env.Ctx, evt)
	var ie engine.InvalidEventError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InvalidEventError, got %v", err)
	}
	if ie.Field != "quantity_kg" {
		t.Fatalf("expected quantity_kg field, got %s", ie.Field)
	}
}

func TestPricingNeverWritesViolationFlag(t *testing.T) {
	env := newTestEnv(t)
	evt := env.appendPayment(t, "P-1", domain.PaymentTerms{
		QualityVerified: true, DeliveryConfirmed: true,
		QuantityKg: 10, AgreedPricePerKg: 5,
	})
	if _, err := env.Engine.EvaluatePricing(env.Ctx, evt); err != nil {
		t.Fatal(err)
	}
	stored, _ := env.Engine.Ledger.Get(env.Ctx, evt.ID)
	if stored.Violation != nil {
		t.Fatalf("pricing evaluator must not annotate events")
	}
}
