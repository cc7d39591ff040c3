package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"freshledger/internal/domain"
)

// Config models freshledger.yml.
type Config struct {
	Pricing struct {
		DefaultSpoilageRate float64 `yaml:"default_spoilage_rate" json:"default_spoilage_rate"`
	} `yaml:"pricing" json:"pricing"`
	Thresholds struct {
		Presets  map[string]domain.Thresholds `yaml:"presets" json:"presets"`
		Defaults map[string]string            `yaml:"defaults" json:"defaults"`
	} `yaml:"thresholds" json:"thresholds"`
}

// Load reads and validates config from a directory.
func Load(dir string) (*Config, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with fl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Pricing.DefaultSpoilageRate < 0 || c.Pricing.DefaultSpoilageRate > 1 {
		return fmt.Errorf("config.pricing.default_spoilage_rate must be within [0,1], got %v", c.Pricing.DefaultSpoilageRate)
	}
	for name, t := range c.Thresholds.Presets {
		if name == "" {
			return fmt.Errorf("config.thresholds.presets contains empty preset name")
		}
		if t.MinTemp > t.MaxTemp {
			return fmt.Errorf("preset %s: min_temp %v exceeds max_temp %v", name, t.MinTemp, t.MaxTemp)
		}
		if t.MinHumidity > t.MaxHumidity {
			return fmt.Errorf("preset %s: min_humidity %v exceeds max_humidity %v", name, t.MinHumidity, t.MaxHumidity)
		}
	}
	for evtType, preset := range c.Thresholds.Defaults {
		if !domain.EventType(evtType).ConditionBearing() {
			return fmt.Errorf("default threshold preset mapped to non condition-bearing event type %s", evtType)
		}
		if _, ok := c.Thresholds.Presets[preset]; !ok {
			return fmt.Errorf("default preset %s for event type %s not defined", preset, evtType)
		}
	}
	return nil
}

// Preset resolves a named threshold preset.
func (c *Config) Preset(name string) (domain.Thresholds, error) {
	t, ok := c.Thresholds.Presets[name]
	if !ok {
		return domain.Thresholds{}, fmt.Errorf("threshold preset %s not found", name)
	}
	return t, nil
}

// DefaultPreset resolves the preset configured for an event type, if any.
func (c *Config) DefaultPreset(t domain.EventType) (domain.Thresholds, bool) {
	name, ok := c.Thresholds.Defaults[string(t)]
	if !ok {
		return domain.Thresholds{}, false
	}
	preset, ok := c.Thresholds.Presets[name]
	return preset, ok
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "freshledger.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(defaultTemplate))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `pricing:
  default_spoilage_rate: 0.15

thresholds:
  presets:
    chilled:
      min_temp: 2
      max_temp: 8
      min_humidity: 60
      max_humidity: 90

    ambient:
      min_temp: 20
      max_temp: 28
      min_humidity: 40
      max_humidity: 60

    frozen:
      min_temp: -25
      max_temp: -15
      min_humidity: 30
      max_humidity: 70

  defaults:
    TRANSPORT: ambient
    WAREHOUSE_RECEIPT: chilled
    RETAIL_RECEIPT: chilled
`
