package scenario_test

import (
	"strings"
	"testing"

	"freshledger/internal/config"
	"freshledger/internal/domain"
	"freshledger/internal/scenario"
)

func TestSampleRoundTrip(t *testing.T) {
	s := scenario.Sample()
	data, err := s.ToYAML()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	parsed, err := scenario.FromYAML(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Name != s.Name || len(parsed.Events) != len(s.Events) {
		t.Fatalf("round trip mismatch: %s %d", parsed.Name, len(parsed.Events))
	}
	last := parsed.Events[len(parsed.Events)-1]
	if last.Type != domain.EventPaymentRequest || last.Details.Payment == nil {
		t.Fatalf("expected trailing payment request, got %+v", last)
	}
	if last.Details.Payment.SpoilageRate == nil || *last.Details.Payment.SpoilageRate != 0.15 {
		t.Fatalf("expected explicit spoilage rate 0.15")
	}
}

func TestFromYAMLRejectsUnknownType(t *testing.T) {
	yaml := `
name: bad
events:
  - product_id: P-1
    event_type: TELEPORT
`
	_, err := scenario.FromYAML([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "unknown event type") {
		t.Fatalf("expected unknown type error, got %v", err)
	}
}

func TestFromYAMLRejectsMissingProduct(t *testing.T) {
	yaml := `
name: bad
events:
  - event_type: HARVEST
`
	_, err := scenario.FromYAML([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), "product_id") {
		t.Fatalf("expected product error, got %v", err)
	}
}

func TestFromYAMLRejectsEmpty(t *testing.T) {
	if _, err := scenario.FromYAML([]byte("name: empty\n")); err == nil {
		t.Fatalf("expected error for empty scenario")
	}
}

func TestResolveNamedPreset(t *testing.T) {
	cfg := config.Default()
	s := scenario.Scenario{
		Name: "preset",
		Events: []scenario.Entry{{
			ProductID: "P-1",
			Type:      domain.EventTransport,
			Details: domain.Details{Condition: &domain.ConditionReading{
				TempCelsius: 5, HumidityPercent: 70,
			}},
			ThresholdPreset: "chilled",
		}},
	}
	inputs, err := s.Resolve(cfg)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	th := inputs[0].Details.Condition.Thresholds
	if th.MinTemp != 2 || th.MaxTemp != 8 {
		t.Fatalf("expected chilled thresholds, got %+v", th)
	}
}

func TestResolveUnknownPreset(t *testing.T) {
	s := scenario.Scenario{
		Name: "preset",
		Events: []scenario.Entry{{
			ProductID: "P-1",
			Type:      domain.EventTransport,
			Details: domain.Details{Condition: &domain.ConditionReading{
				TempCelsius: 5, HumidityPercent: 70,
			}},
			ThresholdPreset: "nope",
		}},
	}
	if _, err := s.Resolve(config.Default()); err == nil {
		t.Fatalf("expected unknown preset error")
	}
}

func TestResolveFallsBackToTypeDefault(t *testing.T) {
	cfg := config.Default()
	s := scenario.Scenario{
		Name: "default",
		Events: []scenario.Entry{{
			ProductID: "P-1",
			Type:      domain.EventWarehouseReceipt,
			Details: domain.Details{Condition: &domain.ConditionReading{
				TempCelsius: 5, HumidityPercent: 70,
			}},
		}},
	}
	inputs, err := s.Resolve(cfg)
	if err != nil {
		t.Fatal(err)
	}
	// WAREHOUSE_RECEIPT maps to the chilled preset by default
	th := inputs[0].Details.Condition.Thresholds
	if th.MinTemp != 2 || th.MaxTemp != 8 {
		t.Fatalf("expected default chilled thresholds, got %+v", th)
	}
}

func TestResolveKeepsInlineThresholds(t *testing.T) {
	cfg := config.Default()
	inline := domain.Thresholds{MinTemp: -1, MaxTemp: 1, MinHumidity: 10, MaxHumidity: 20}
	s := scenario.Scenario{
		Name: "inline",
		Events: []scenario.Entry{{
			ProductID: "P-1",
			Type:      domain.EventTransport,
			Details: domain.Details{Condition: &domain.ConditionReading{
				TempCelsius: 0, HumidityPercent: 15, Thresholds: inline,
			}},
		}},
	}
	inputs, err := s.Resolve(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if inputs[0].Details.Condition.Thresholds != inline {
		t.Fatalf("expected inline thresholds preserved, got %+v", inputs[0].Details.Condition.Thresholds)
	}
}
