package location

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/abemis/portal/metrics"
)

// DefaultBaseURL is the public PSGC API.
const DefaultBaseURL = "https://psgc.gitlab.io/api"

const (
	defaultTimeout     = 15 * time.Second
	defaultUserAgent   = "abemis-portal/1.0"
	maxResponseSize    = 8 << 20
	maxErrorBodyLength = 256
	maxCodeLength      = 10
)

// Client fetches hierarchy tiers from the upstream API. Responses are cached
// for the life of the process and concurrent requests for the same path
// share one upstream call. Failed requests are not retried.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	logger    *slog.Logger
	metrics   *metrics.Metrics

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string][]Area
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.http.Timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) { cl.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(cl *Client) { cl.metrics = m }
}

// NewClient creates a client for baseURL. An empty baseURL uses
// DefaultBaseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: defaultTimeout},
		userAgent: defaultUserAgent,
		logger:    slog.Default(),
		cache:     make(map[string][]Area),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Regions lists every region.
func (c *Client) Regions(ctx context.Context) ([]Area, error) {
	return c.fetch(ctx, TierRegion, "/regions.json")
}

// Provinces lists the provinces of a region.
func (c *Client) Provinces(ctx context.Context, regionCode string) ([]Area, error) {
	return c.child(ctx, TierProvince, "regions", regionCode)
}

// Districts lists the districts of a province.
func (c *Client) Districts(ctx context.Context, provinceCode string) ([]Area, error) {
	return c.child(ctx, TierDistrict, "provinces", provinceCode)
}

// CitiesOfDistrict lists the cities and municipalities of a district.
func (c *Client) CitiesOfDistrict(ctx context.Context, districtCode string) ([]Area, error) {
	return c.child(ctx, TierCity, "districts", districtCode)
}

// CitiesOfProvince lists the cities and municipalities of a province.
func (c *Client) CitiesOfProvince(ctx context.Context, provinceCode string) ([]Area, error) {
	return c.child(ctx, TierCity, "provinces", provinceCode)
}

// Barangays lists the barangays of a city or municipality.
func (c *Client) Barangays(ctx context.Context, cityCode string) ([]Area, error) {
	return c.child(ctx, TierBarangay, "cities-municipalities", cityCode)
}

// List fetches tier under parentCode. Cities are looked up under a district
// when parentTier is TierDistrict and under a province otherwise.
func (c *Client) List(ctx context.Context, tier Tier, parentTier Tier, parentCode string) ([]Area, error) {
	switch tier {
	case TierRegion:
		return c.Regions(ctx)
	case TierProvince:
		return c.Provinces(ctx, parentCode)
	case TierDistrict:
		return c.Districts(ctx, parentCode)
	case TierCity:
		if parentTier == TierDistrict {
			return c.CitiesOfDistrict(ctx, parentCode)
		}
		return c.CitiesOfProvince(ctx, parentCode)
	case TierBarangay:
		return c.Barangays(ctx, parentCode)
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidTier, tier)
}

func (c *Client) child(ctx context.Context, tier Tier, parent, code string) ([]Area, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: %s", ErrParentMissing, tier)
	}
	if !validCode(code) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCode, code)
	}
	return c.fetch(ctx, tier, "/"+parent+"/"+code+"/"+string(tier)+".json")
}

// validCode reports whether code has the PSGC shape: up to ten digits.
func validCode(code string) bool {
	if len(code) > maxCodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Client) fetch(ctx context.Context, tier Tier, path string) ([]Area, error) {
	c.mu.RLock()
	cached, ok := c.cache[path]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(path, func() (any, error) {
		areas, err := c.get(ctx, path)
		c.metrics.LocationRequest(tier.String(), err)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[path] = areas
		c.mu.Unlock()
		return areas, nil
	})
	if err != nil {
		c.logger.Warn("Location fetch failed", "tier", tier, "path", path, "error", err)
		return nil, err
	}
	return v.([]Area), nil
}

func (c *Client) get(ctx context.Context, path string) ([]Area, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var areas []Area
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&areas); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrUpstream, path, err)
	}
	if areas == nil {
		areas = []Area{}
	}
	return areas, nil
}
