// Package hazard turns per-district climate series into hazard indicator
// records. Which indicator applies to which variable, and with what
// parameters, comes from a YAML file so researchers can tune thresholds
// without a rebuild.
package hazard

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Indicator names accepted in the params file.
const (
	IndicatorExceedanceCount     = "exceedance_count"
	IndicatorStandardizedAnomaly = "standardized_anomaly"
)

// MetricSpec configures one indicator for one variable.
type MetricSpec struct {
	Variable      string  `yaml:"variable"`
	Indicator     string  `yaml:"indicator"`
	Threshold     float64 `yaml:"threshold"`
	BaselineStart int     `yaml:"baseline_start"`
	BaselineEnd   int     `yaml:"baseline_end"`
}

// Params is the parsed hazard parameters file.
type Params struct {
	Metrics []MetricSpec `yaml:"metrics"`
}

// LoadParams reads and validates the hazard parameters file.
func LoadParams(path string) (Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("read hazard params: %w", err)
	}

	var p Params
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return Params{}, fmt.Errorf("parse hazard params: %w", err)
	}
	if len(p.Metrics) == 0 {
		return Params{}, fmt.Errorf("hazard params %s define no metrics", path)
	}

	for i, m := range p.Metrics {
		if m.Variable == "" {
			return Params{}, fmt.Errorf("metric %d has no variable", i)
		}
		switch m.Indicator {
		case IndicatorExceedanceCount:
			// threshold of zero is legal, e.g. frost days on Celsius data
		case IndicatorStandardizedAnomaly:
			if m.BaselineStart <= 0 || m.BaselineEnd < m.BaselineStart {
				return Params{}, fmt.Errorf("metric %s: baseline window %d-%d is invalid",
					m.Variable, m.BaselineStart, m.BaselineEnd)
			}
		default:
			return Params{}, fmt.Errorf("metric %s: unknown indicator %q", m.Variable, m.Indicator)
		}
	}
	return p, nil
}

// forVariable returns the metric specs that apply to a variable. A variable
// can carry several indicators.
func (p Params) forVariable(variable string) []MetricSpec {
	var out []MetricSpec
	for _, m := range p.Metrics {
		if m.Variable == variable {
			out = append(out, m)
		}
	}
	return out
}
