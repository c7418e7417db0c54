package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// DefaultVariables is the ERA5 variable set used for the India crop study.
var DefaultVariables = []string{
	"maximum_2m_temperature_since_previous_post_processing",
	"minimum_2m_temperature_since_previous_post_processing",
	"total_precipitation",
	"surface_net_solar_radiation",
	"2m_dewpoint_temperature",
}

// IndiaArea is the default study bounding box (8-38N, 68-98E).
var IndiaArea = BoundingBox{MinLat: 8, MaxLat: 38, MinLon: 68, MaxLon: 98}

// FormatZip is the archive format requested from the remote service: a zip
// of per-variable CSV members.
const FormatZip = "zip"

// BoundingBox is a WGS-84 spatial subset. Well-formed means min <= max on
// both axes.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

// Valid reports whether the box is well-formed.
func (b BoundingBox) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}

// Hash returns a short deterministic digest of the box, used in archive keys
// so the same region always maps to the same file names.
func (b BoundingBox) Hash() string {
	input := fmt.Sprintf("%.4f|%.4f|%.4f|%.4f", b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:4])
}

// RequestSpec describes a full retrieval request before partitioning.
// Immutable once submitted.
type RequestSpec struct {
	Variables []string    `json:"variables"`
	StartYear int         `json:"start_year"`
	EndYear   int         `json:"end_year"`
	Area      BoundingBox `json:"area"`
	Format    string      `json:"format"` // archive payload format, e.g. "csv"
}

// Validate checks the spec invariants. All violations are
// ErrInvalidSpecification.
func (s RequestSpec) Validate() error {
	if len(s.Variables) == 0 {
		return fmt.Errorf("%w: no variables", ErrInvalidSpecification)
	}
	if s.StartYear > s.EndYear {
		return fmt.Errorf("%w: year range %d-%d is inverted", ErrInvalidSpecification, s.StartYear, s.EndYear)
	}
	if s.StartYear == 0 || s.EndYear == 0 {
		return fmt.Errorf("%w: year range is empty", ErrInvalidSpecification)
	}
	if !s.Area.Valid() {
		return fmt.Errorf("%w: bounding box min exceeds max", ErrInvalidSpecification)
	}
	return nil
}

// Status is the lifecycle state of a sub-request. Transitions are owned by
// the retrieval worker handling the sub-request and are recorded through the
// manifest store's single synchronized update path.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusRunning   Status = "running"
	StatusComplete  Status = "complete"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// SubRequest is one bounded, independently retryable partition of a
// RequestSpec: one year, a subset of its variables, and a month span.
type SubRequest struct {
	ID         string      `json:"id"`
	BatchID    string      `json:"batch_id"`
	Variables  []string    `json:"variables"`
	Year       int         `json:"year"`
	StartMonth time.Month  `json:"start_month"`
	EndMonth   time.Month  `json:"end_month"`
	Area       BoundingBox `json:"area"`
	Format     string      `json:"format"`

	Status    Status    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	FilePath  string    `json:"file_path,omitempty"`
}

// Key returns the content address of the sub-request: a deterministic digest
// of everything that identifies the data it fetches. Two sub-requests with
// the same key produce byte-identical archives, so a present file for a key
// is never re-fetched.
func (r SubRequest) Key() string {
	input := fmt.Sprintf("%s|%d|%d|%d|%s|%s",
		strings.Join(r.Variables, ","), r.Year, r.StartMonth, r.EndMonth, r.Area.Hash(), r.Format)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:8])
}

// ArchivePath returns the on-disk location of the raw archive relative to the
// raw data root: raw/<year>/era5_<year>_<mm>-<mm>_<key>.zip.
func (r SubRequest) ArchivePath(rawDir string) string {
	name := fmt.Sprintf("era5_%d_%02d-%02d_%s.zip", r.Year, r.StartMonth, r.EndMonth, r.Key())
	return filepath.Join(rawDir, fmt.Sprintf("%d", r.Year), name)
}

// Days returns the number of days covered by the sub-request's month span.
func (r SubRequest) Days() int {
	days := 0
	for m := r.StartMonth; m <= r.EndMonth; m++ {
		days += daysInMonth(r.Year, m)
	}
	return days
}

// cost is the partitioning unit: covered days times variable count. The
// remote service throttles by retrieval volume, which this approximates.
func (r SubRequest) cost() int {
	return r.Days() * len(r.Variables)
}

// BuildSubRequests partitions a RequestSpec into sub-requests no larger than
// maxCost (days x variables). Partition order: calendar year first, then
// variable, then month ranges. Returns ErrInvalidSpecification for a
// malformed spec or a threshold too small to fit a single month of a single
// variable.
func BuildSubRequests(spec RequestSpec, maxCost int) ([]SubRequest, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if maxCost < 31 {
		return nil, fmt.Errorf("%w: size threshold %d cannot fit one variable-month", ErrInvalidSpecification, maxCost)
	}

	var subs []SubRequest
	for year := spec.StartYear; year <= spec.EndYear; year++ {
		whole := SubRequest{
			Variables:  spec.Variables,
			Year:       year,
			StartMonth: time.January,
			EndMonth:   time.December,
			Area:       spec.Area,
			Format:     spec.Format,
			Status:     StatusPending,
		}
		if whole.cost() <= maxCost {
			subs = append(subs, withID(whole))
			continue
		}
		// Year too large: one sub-request per variable.
		for _, v := range spec.Variables {
			perVar := whole
			perVar.Variables = []string{v}
			if perVar.cost() <= maxCost {
				subs = append(subs, withID(perVar))
				continue
			}
			// Still too large: split the year into month ranges.
			subs = append(subs, splitMonths(perVar, maxCost)...)
		}
	}
	return subs, nil
}

// splitMonths chops a single-variable year into contiguous month spans whose
// day counts stay within maxCost.
func splitMonths(sr SubRequest, maxCost int) []SubRequest {
	var out []SubRequest
	start := time.January
	days := 0
	for m := time.January; m <= time.December; m++ {
		d := daysInMonth(sr.Year, m)
		if days+d > maxCost && days > 0 {
			chunk := sr
			chunk.StartMonth = start
			chunk.EndMonth = m - 1
			out = append(out, withID(chunk))
			start = m
			days = 0
		}
		days += d
	}
	chunk := sr
	chunk.StartMonth = start
	chunk.EndMonth = time.December
	out = append(out, withID(chunk))
	return out
}

func withID(sr SubRequest) SubRequest {
	sr.ID = sr.Key()
	return sr
}

func daysInMonth(year int, m time.Month) int {
	// Day 0 of the next month is the last day of m.
	return time.Date(year, m+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
