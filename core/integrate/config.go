package integrate

import (
	"time"

	"github.com/structweave/stb2ifc/core/model"
)

// Config controls mode selection and fallback policy for one conversion
// call. It is immutable for the duration of the call.
type Config struct {
	// Mode selects the conversion strategy.
	Mode model.ConversionMode `yaml:"mode"`

	// EnableFallback allows falling back to the legacy converter when the
	// primary strategy raises or fails the quality gate.
	EnableFallback bool `yaml:"enable_fallback"`

	// FallbackThreshold is advisory; the pipeline does not enforce
	// timeouts itself. Callers wanting bounded execution wrap the call.
	FallbackThreshold time.Duration `yaml:"fallback_threshold"`

	// DuplicateTolerance is the number of duplicates the quality gate
	// accepts before rejecting an element-centric result.
	DuplicateTolerance int `yaml:"duplicate_tolerance"`

	// ConfidenceThreshold bounds the accepted fraction of low-confidence
	// classifications: the gate fails when the coordinate-classified
	// fraction exceeds 1 - ConfidenceThreshold.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// DefaultConfig returns the default integration configuration.
func DefaultConfig() Config {
	return Config{
		Mode:                model.ModeHybrid,
		EnableFallback:      true,
		FallbackThreshold:   5 * time.Second,
		DuplicateTolerance:  0,
		ConfidenceThreshold: 0.7,
	}
}
