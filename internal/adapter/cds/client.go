package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/agrimet-labs/climate-hazard-etl/internal/domain"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
)

// Client talks to a CDS-style reanalysis retrieval service: submit a request,
// poll the queued job, stream the prepared archive. The wire schema is owned
// by the remote service; the client only depends on the job lifecycle.
type Client struct {
	baseURL      string
	apiKey       string
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *observability.Metrics
}

// NewClient creates a retrieval client. The http.Client carries no global
// timeout; per-attempt deadlines come from the caller's context.
func NewClient(baseURL, apiKey string, pollInterval time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:      baseURL,
		apiKey:       apiKey,
		httpClient:   &http.Client{},
		pollInterval: pollInterval,
		logger:       logger,
		metrics:      metrics,
	}
}

// Job states reported by the remote queue.
const (
	stateQueued    = "queued"
	stateRunning   = "running"
	stateCompleted = "completed"
	stateFailed    = "failed"
)

// retrievalRequest is the submission payload.
type retrievalRequest struct {
	Variables  []string   `json:"variable"`
	Year       string     `json:"year"`
	Months     []string   `json:"month"`
	Area       [4]float64 `json:"area"` // north, west, south, east
	Format     string     `json:"format"`
	ProductKey string     `json:"product_type"`
}

// jobResponse is returned by both submission and polling.
type jobResponse struct {
	RequestID string `json:"request_id"`
	State     string `json:"state"`
	Location  string `json:"location,omitempty"` // download URL once completed
	Error     string `json:"error,omitempty"`
}

// Fetch executes one sub-request end-to-end: submit, poll until the remote
// job is terminal, stream the archive to destPath. destPath is the caller's
// temp file; promotion to the final name is the worker's job. All failures
// are classified into the domain taxonomy.
func (c *Client) Fetch(ctx context.Context, sub domain.SubRequest, destPath string) error {
	jobID, err := c.submit(ctx, sub)
	if err != nil {
		return err
	}

	location, err := c.waitForJob(ctx, jobID)
	if err != nil {
		return err
	}

	n, err := c.download(ctx, location, destPath)
	if err != nil {
		return err
	}

	c.metrics.ArchiveBytes.Observe(float64(n))
	c.logger.Debug("archive downloaded", "sub_request", sub.ID, "job", jobID, "bytes", n)
	return nil
}

func (c *Client) submit(ctx context.Context, sub domain.SubRequest) (string, error) {
	months := make([]string, 0, int(sub.EndMonth-sub.StartMonth)+1)
	for m := sub.StartMonth; m <= sub.EndMonth; m++ {
		months = append(months, fmt.Sprintf("%02d", m))
	}
	payload := retrievalRequest{
		Variables:  sub.Variables,
		Year:       fmt.Sprintf("%d", sub.Year),
		Months:     months,
		Area:       [4]float64{sub.Area.MaxLat, sub.Area.MinLon, sub.Area.MinLat, sub.Area.MaxLon},
		Format:     sub.Format,
		ProductKey: "reanalysis",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal retrieval request: %w", err)
	}

	u := c.baseURL + "/resources/reanalysis-era5-single-levels"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	var job jobResponse
	if err := c.doJSON(req, &job); err != nil {
		return "", err
	}
	if job.RequestID == "" {
		return "", domain.Transientf("submission returned no request id")
	}
	c.logger.Debug("retrieval submitted", "sub_request", sub.ID, "job", job.RequestID)
	return job.RequestID, nil
}

// waitForJob polls the remote queue on a fixed interval until the job is
// terminal or the context expires.
func (c *Client) waitForJob(ctx context.Context, jobID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.pollJob(ctx, jobID)
		if err != nil {
			return "", err
		}
		c.metrics.RemotePollsTotal.Inc()

		switch job.State {
		case stateCompleted:
			if job.Location == "" {
				return "", domain.Transientf("job %s completed without a download location", jobID)
			}
			return job.Location, nil
		case stateFailed:
			// The queue accepted the request, so a failure here is the
			// service's side and worth retrying.
			return "", domain.Transientf("remote job %s failed: %s", jobID, job.Error)
		case stateQueued, stateRunning:
			// keep polling
		default:
			return "", domain.Transientf("remote job %s in unknown state %q", jobID, job.State)
		}

		select {
		case <-ctx.Done():
			return "", domain.Transient(ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) pollJob(ctx context.Context, jobID string) (jobResponse, error) {
	u := c.baseURL + "/tasks/" + jobID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return jobResponse{}, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	var job jobResponse
	if err := c.doJSON(req, &job); err != nil {
		return jobResponse{}, err
	}
	return job, nil
}

// download streams the archive to destPath. A Content-Length mismatch is a
// short transfer and therefore transient.
func (c *Client) download(ctx context.Context, location, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, domain.Transient(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return 0, err
	}

	f, err := os.Create(destPath)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", destPath, err)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil {
		return n, domain.Transient(copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close %s: %w", destPath, closeErr)
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, domain.Transientf("short transfer: got %d of %d bytes", n, resp.ContentLength)
	}
	if n == 0 {
		return n, domain.Transientf("empty archive body")
	}
	return n, nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Transient(err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Transientf("decode response: %v", err)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyStatus maps HTTP status codes onto the failure taxonomy: 4xx is a
// permanent rejection, everything else non-2xx is transient.
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err := fmt.Errorf("status %d: %s", resp.StatusCode, body)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return domain.Rejection(err)
	}
	return domain.Transient(err)
}
