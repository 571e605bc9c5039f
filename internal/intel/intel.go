// Package intel queries an external reputation service for known-sample
// verdicts by content hash. Lookups are advisory: the classifier never
// needs them, but a report lets an operator cross-check local predictions
// against community detections.
package intel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"binsift/internal/loader"
)

// ErrNotFound is returned when the service has no report for a hash.
var ErrNotFound = errors.New("intel: hash not known")

// Report is the service's verdict for one sample.
type Report struct {
	SHA256     string `json:"sha256"`
	Detections int    `json:"detections"`
	TotalScans int    `json:"total_scans"`
	FirstSeen  string `json:"first_seen"`
	LastSeen   string `json:"last_seen"`
}

// Malicious reports whether the community verdict leans malicious. A single
// detection is treated as noise.
func (r Report) Malicious() bool {
	return r.Detections > 1
}

// Label maps the report onto the corpus label convention.
func (r Report) Label() int {
	if r.Malicious() {
		return loader.LabelMalicious
	}
	return loader.LabelBenign
}

type Client struct {
	key, base string
	rest      *resty.Client
}

func NewClient(key, base string, timeout time.Duration) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	return &Client{key, base, r}
}

// LookupHash fetches the report for a SHA-256 hash.
func (c *Client) LookupHash(ctx context.Context, sha256 string) (*Report, error) {
	if sha256 == "" {
		return nil, fmt.Errorf("intel: empty hash")
	}
	path := "/api/v1/files/" + sha256

	report := &Report{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("x-apikey", c.key).
		SetResult(report).
		Get(c.base + path)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sha256)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("API error: status %d, body: %s", resp.StatusCode(), resp.String())
	}

	return report, nil
}

// Agreement compares a local prediction with the service verdict for the
// same sample. ErrNotFound passes through so callers can skip unknown
// hashes.
func (c *Client) Agreement(ctx context.Context, sha256 string, predictedLabel int) (bool, error) {
	report, err := c.LookupHash(ctx, sha256)
	if err != nil {
		return false, err
	}
	return report.Label() == predictedLabel, nil
}
