package tuning

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	SweepInterval time.Duration `yaml:"sweep_interval"`

	Persist    Persist    `yaml:"persist"`
	Render     Render     `yaml:"render"`
	RateLimits RateLimits `yaml:"rate_limits"`
}

type Persist struct {
	Retries int           `yaml:"retries"`
	Backoff time.Duration `yaml:"backoff"`
	Timeout time.Duration `yaml:"timeout"`
}

type Render struct {
	IconItem   string `yaml:"icon_item"`
	DateLayout string `yaml:"date_layout"`
	TimeZone   string `yaml:"time_zone"`
}

type RateLimits struct {
	ObserveEvery time.Duration `yaml:"observe_every"`
	ObserveBurst int           `yaml:"observe_burst"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		SweepInterval:   60 * time.Second,
		Persist: Persist{
			Retries: 3,
			Backoff: 500 * time.Millisecond,
			Timeout: 10 * time.Second,
		},
		Render: Render{
			IconItem:   "OAK_SIGN",
			DateLayout: "01/02/2006 03:04 PM",
			TimeZone:   "Local",
		},
		RateLimits: RateLimits{
			ObserveEvery: 10 * time.Second,
			ObserveBurst: 3,
		},
	}
}

// Load reads path over Defaults; keys missing from the file keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if t.Persist.Retries < 0 {
		return fmt.Errorf("persist.retries must be >= 0")
	}
	if t.RateLimits.ObserveEvery < 0 || t.RateLimits.ObserveBurst < 0 {
		return fmt.Errorf("rate_limits must be >= 0")
	}
	if _, err := t.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves render.time_zone ("" and "Local" mean the process zone).
func (t Tuning) Location() (*time.Location, error) {
	switch t.Render.TimeZone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(t.Render.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("render.time_zone: %w", err)
	}
	return loc, nil
}
