package simbad

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lcogt/nres-sn/internal/observability"
)

// DefaultBaseURL is the SIMBAD TAP synchronous query endpoint.
const DefaultBaseURL = "https://simbad.cds.unistra.fr/simbad/sim-tap/sync"

// vMagQuery selects the main identifier and V-band flux of the object known
// under the given identifier. The LEFT JOIN keeps objects without V flux so
// "unknown object" and "no V magnitude" both come back as a missing value.
const vMagQuery = `SELECT TOP 1 basic.main_id, flux.flux ` +
	`FROM basic JOIN ident ON ident.oidref = basic.oid ` +
	`LEFT JOIN flux ON flux.oidref = basic.oid AND flux.filter = 'V' ` +
	`WHERE ident.id = '%s'`

// Client implements domain.Catalog using the SIMBAD TAP service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a SIMBAD client. baseURL may be empty to use DefaultBaseURL.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// VMagnitude returns the V magnitude of the named object. found is false if
// SIMBAD does not know the identifier or lists no V flux for it.
func (c *Client) VMagnitude(ctx context.Context, name string) (float64, bool, error) {
	params := url.Values{
		"REQUEST": {"doQuery"},
		"LANG":    {"ADQL"},
		"FORMAT":  {"json"},
		"QUERY":   {fmt.Sprintf(vMagQuery, escapeADQL(name))},
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.CatalogAPIDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.CatalogRequests.WithLabelValues("error").Inc()
		return 0, false, err
	}

	mag, ok := resp.vMagnitude()
	if !ok {
		c.metrics.CatalogRequests.WithLabelValues("not_found").Inc()
		return 0, false, nil
	}
	c.metrics.CatalogRequests.WithLabelValues("success").Inc()
	c.logger.Debug("simbad resolved", "name", name, "main_id", resp.mainID(), "vmag", mag)
	return mag, true, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) (response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return response{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return response{}, fmt.Errorf("simbad request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return response{}, fmt.Errorf("simbad TAP error: status %d: %s", resp.StatusCode, body)
	}

	var tapResp response
	if err := json.NewDecoder(resp.Body).Decode(&tapResp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return tapResp, nil
}

// escapeADQL doubles single quotes for use inside an ADQL string literal.
func escapeADQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// SIMBAD TAP JSON response types.

type response struct {
	Metadata []column `json:"metadata"`
	Data     [][]any  `json:"data"`
}

type column struct {
	Name string `json:"name"`
}

func (r response) columnIndex(name string) int {
	for i, c := range r.Metadata {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// vMagnitude returns the flux column of the first row, if present and numeric.
func (r response) vMagnitude() (float64, bool) {
	idx := r.columnIndex("flux")
	if idx < 0 || len(r.Data) == 0 || idx >= len(r.Data[0]) {
		return 0, false
	}
	v, ok := r.Data[0][idx].(float64)
	return v, ok
}

func (r response) mainID() string {
	idx := r.columnIndex("main_id")
	if idx < 0 || len(r.Data) == 0 || idx >= len(r.Data[0]) {
		return ""
	}
	s, _ := r.Data[0][idx].(string)
	return s
}
