package domain

import "time"

// HazardRecord is the output unit of the pipeline: one aggregated or derived
// value per (district, period, variable). The table is append-only; the
// external statistical collaborator consumes it as a flat artifact.
type HazardRecord struct {
	DistrictID string    `json:"district_id"`
	Period     string    `json:"period"` // e.g. "2021-06" or a season label
	Variable   string    `json:"variable"`
	Value      float64   `json:"value"`
	ProducedAt time.Time `json:"produced_at"`
}

// NewHazardRecord stamps a record with the package clock so replays under a
// fake clock are reproducible.
func NewHazardRecord(districtID, period, variable string, value float64) HazardRecord {
	return HazardRecord{
		DistrictID: districtID,
		Period:     period,
		Variable:   variable,
		Value:      value,
		ProducedAt: clock.Now(),
	}
}
