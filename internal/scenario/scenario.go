package scenario

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"freshledger/internal/config"
	"freshledger/internal/domain"
)

// Scenario is a finite, ordered sequence of event inputs fed to the driver.
type Scenario struct {
	Name   string  `yaml:"name"`
	Events []Entry `yaml:"events"`
}

// Entry is one scenario event. Condition-bearing entries either carry inline
// thresholds or name a preset from the config; when both are absent the
// config's per-type default preset applies.
type Entry struct {
	ActorID         string           `yaml:"actor_id"`
	ProductID       string           `yaml:"product_id"`
	Location        string           `yaml:"location"`
	Type            domain.EventType `yaml:"event_type"`
	Details         domain.Details   `yaml:"details"`
	ThresholdPreset string           `yaml:"threshold_preset,omitempty"`
}

// FromFile reads a scenario from YAML.
func FromFile(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	return FromYAML(data)
}

// FromYAML parses a scenario from raw YAML bytes.
func FromYAML(data []byte) (Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario yaml: %w", err)
	}
	if len(s.Events) == 0 {
		return Scenario{}, fmt.Errorf("scenario has no events")
	}
	for i, e := range s.Events {
		if !e.Type.Known() {
			return Scenario{}, fmt.Errorf("scenario event %d: unknown event type %q", i, e.Type)
		}
		if e.ProductID == "" {
			return Scenario{}, fmt.Errorf("scenario event %d: product_id is required", i)
		}
	}
	return s, nil
}

// Resolve turns scenario entries into ledger inputs, filling thresholds from
// named or default presets where entries left them out.
func (s Scenario) Resolve(cfg *config.Config) ([]domain.EventInput, error) {
	inputs := make([]domain.EventInput, 0, len(s.Events))
	for i, e := range s.Events {
		in := domain.EventInput{
			ActorID:   e.ActorID,
			ProductID: e.ProductID,
			Location:  e.Location,
			Type:      e.Type,
			Details:   e.Details,
		}
		if e.Type.ConditionBearing() && in.Details.Condition != nil {
			switch {
			case e.ThresholdPreset != "":
				th, err := cfg.Preset(e.ThresholdPreset)
				if err != nil {
					return nil, fmt.Errorf("scenario event %d: %w", i, err)
				}
				reading := *in.Details.Condition
				reading.Thresholds = th
				in.Details.Condition = &reading
			case in.Details.Condition.Thresholds == (domain.Thresholds{}):
				if th, ok := cfg.DefaultPreset(e.Type); ok {
					reading := *in.Details.Condition
					reading.Thresholds = th
					in.Details.Condition = &reading
				}
			}
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// Sample returns the built-in mango shipment scenario: a harvest, a transport
// leg that breaches its temperature ceiling, a clean warehouse receipt, and a
// payment request for the full 500kg at 350 per kg.
func Sample() Scenario {
	spoilage := 0.15
	return Scenario{
		Name: "mango-shipment",
		Events: []Entry{
			{
				ActorID:   "FARM-042",
				ProductID: "MANGO-2024-001",
				Location:  "Ratnagiri Farm",
				Type:      domain.EventHarvest,
				Details:   domain.Details{Note: "500kg Alphonso mangoes harvested"},
			},
			{
				ActorID:   "PROC-007",
				ProductID: "MANGO-2024-001",
				Location:  "Ratnagiri Packhouse",
				Type:      domain.EventProcess,
				Details:   domain.Details{Note: "sorted, graded and crated"},
			},
			{
				ActorID:   "TRK-118",
				ProductID: "MANGO-2024-001",
				Location:  "NH-66 reefer truck",
				Type:      domain.EventTransport,
				Details: domain.Details{Condition: &domain.ConditionReading{
					TempCelsius:     30,
					HumidityPercent: 50,
					Thresholds:      domain.Thresholds{MinTemp: 20, MaxTemp: 28, MinHumidity: 40, MaxHumidity: 60},
				}},
			},
			{
				ActorID:   "WH-MUM-03",
				ProductID: "MANGO-2024-001",
				Location:  "Mumbai cold store",
				Type:      domain.EventWarehouseReceipt,
				Details: domain.Details{Condition: &domain.ConditionReading{
					TempCelsius:     6,
					HumidityPercent: 75,
					Thresholds:      domain.Thresholds{MinTemp: 2, MaxTemp: 8, MinHumidity: 60, MaxHumidity: 90},
				}},
			},
			{
				ActorID:   "RET-551",
				ProductID: "MANGO-2024-001",
				Location:  "Mumbai retail DC",
				Type:      domain.EventRetailReceipt,
				Details: domain.Details{Condition: &domain.ConditionReading{
					TempCelsius:     7,
					HumidityPercent: 80,
					Thresholds:      domain.Thresholds{MinTemp: 2, MaxTemp: 8, MinHumidity: 60, MaxHumidity: 90},
				}},
			},
			{
				ActorID:   "FARM-042",
				ProductID: "MANGO-2024-001",
				Location:  "Ratnagiri Farm",
				Type:      domain.EventPaymentRequest,
				Details: domain.Details{Payment: &domain.PaymentTerms{
					QualityVerified:   true,
					DeliveryConfirmed: true,
					QuantityKg:        500,
					AgreedPricePerKg:  350,
					SpoilageRate:      &spoilage,
				}},
			},
		},
	}
}

// ToYAML renders a scenario for fl scenario sample.
func (s Scenario) ToYAML() ([]byte, error) {
	return yaml.Marshal(s)
}
