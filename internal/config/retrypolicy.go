package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	domainwf "meridian/internal/domain/services/workflow"
)

// retryOverride is the YAML shape for one step's retry tuning. Durations
// are given in milliseconds since YAML has no native duration type.
type retryOverride struct {
	MaxRetries int `yaml:"max_retries"`
	BaseDelay  int `yaml:"base_delay_ms"`
	MaxDelay   int `yaml:"max_delay_ms"`
}

// RetryPolicies maps step id to a RetryPolicy override, falling back to
// domainwf.DefaultRetryPolicy for any step not listed.
type RetryPolicies map[string]domainwf.RetryPolicy

// LoadRetryPolicies reads a YAML file of per-step retry overrides
// (spec.md §4.2's RetryPolicy is per-step, but its exact values are left
// to the implementation; this lets operators tune them without a
// redeploy). A missing file is not an error — callers get an empty map
// and every step falls back to the default policy.
func LoadRetryPolicies(path string) (RetryPolicies, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RetryPolicies{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read retry policy file: %w", err)
	}

	var raw map[string]retryOverride
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse retry policy file: %w", err)
	}

	out := make(RetryPolicies, len(raw))
	for stepID, o := range raw {
		out[stepID] = domainwf.RetryPolicy{
			MaxRetries: o.MaxRetries,
			BaseDelay:  time.Duration(o.BaseDelay) * time.Millisecond,
			MaxDelay:   time.Duration(o.MaxDelay) * time.Millisecond,
		}
	}
	return out, nil
}

// For looks up a step's override, falling back to domainwf.DefaultRetryPolicy.
func (p RetryPolicies) For(stepID string) domainwf.RetryPolicy {
	if policy, ok := p[stepID]; ok {
		return policy
	}
	return domainwf.DefaultRetryPolicy()
}
