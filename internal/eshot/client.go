package eshot

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

	"github.com/eshotmap/eshot_core/internal/csvfeed"
	"github.com/eshotmap/eshot_core/internal/logging"
	"github.com/eshotmap/eshot_core/internal/models"
)

const (
	DefaultStopsURL  = "https://openfiles.izmir.bel.tr/211488/docs/eshot-otobus-duraklari.csv"
	DefaultLinesURL  = "https://openfiles.izmir.bel.tr/211488/docs/eshot-otobus-hatlari.csv"
	DefaultBusesURL  = "https://openapi.izmir.bel.tr/api/iztek/duragayaklasanotobusler"
	DefaultUserAgent = "Mozilla/5.0 (Android 10; Mobile; rv:88.0) Gecko/88.0 Firefox/88.0"
	DefaultTimeout   = 15 * time.Second
)

// DownloadError reports a failed static feed download.
// StatusCode is 0 when no response was received.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Config holds upstream endpoints and HTTP behavior
type Config struct {
	StopsURL  string
	LinesURL  string
	BusesURL  string // base; the stop id is appended as a path segment
	UserAgent string
	Timeout   time.Duration
}

// DefaultConfig returns the public Izmir open data endpoints
func DefaultConfig() Config {
	return Config{
		StopsURL:  DefaultStopsURL,
		LinesURL:  DefaultLinesURL,
		BusesURL:  DefaultBusesURL,
		UserAgent: DefaultUserAgent,
		Timeout:   DefaultTimeout,
	}
}

// Client fetches the static CSV feeds and the live approaching-buses feed.
// The upstream host answers 403 to default Go user agents, so every request
// carries a browser-like one.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client. Zero fields in cfg take their defaults.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	def := DefaultConfig()
	if cfg.StopsURL == "" {
		cfg.StopsURL = def.StopsURL
	}
	if cfg.LinesURL == "" {
		cfg.LinesURL = def.LinesURL
	}
	if cfg.BusesURL == "" {
		cfg.BusesURL = def.BusesURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// FetchStopsBlob downloads the raw stops CSV
func (c *Client) FetchStopsBlob(ctx context.Context) ([]byte, error) {
	return c.fetchBlob(ctx, c.cfg.StopsURL)
}

// FetchLinesBlob downloads the raw lines CSV
func (c *Client) FetchLinesBlob(ctx context.Context) ([]byte, error) {
	return c.fetchBlob(ctx, c.cfg.LinesURL)
}

// Fetch downloads the blob for a static resource
func (c *Client) Fetch(ctx context.Context, res models.Resource) ([]byte, error) {
	switch res {
	case models.ResourceStops:
		return c.FetchStopsBlob(ctx)
	case models.ResourceLines:
		return c.FetchLinesBlob(ctx)
	default:
		return nil, fmt.Errorf("unknown resource %q", res)
	}
}

func (c *Client) fetchBlob(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	resp, err := c.get(ctx, rawURL, "text/csv, text/plain, */*")
	if err != nil {
		return nil, &DownloadError{URL: rawURL, Err: err}
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "close feed body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &DownloadError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DownloadError{URL: rawURL, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	logging.LogOperation(c.logger, "downloaded feed",
		slog.String("url", rawURL),
		slog.Int("bytes", len(body)),
		slog.Duration("duration", time.Since(start)))

	return body, nil
}

// busDTO is the upstream JSON shape. Coordinates arrive as comma-decimal
// strings and KoorX carries the latitude.
type busDTO struct {
	OtobusID         int     `json:"OtobusId"`
	HatNumarasi      int     `json:"HatNumarasi"`
	HatAdi           string  `json:"HatAdi"`
	KoorX            *string `json:"KoorX"`
	KoorY            *string `json:"KoorY"`
	KalanDurakSayisi int     `json:"KalanDurakSayisi"`
	HattinYonu       int     `json:"HattinYonu"`
}

func (d busDTO) toModel() models.ApproachingBus {
	bus := models.ApproachingBus{
		BusID:          d.OtobusID,
		LineNo:         d.HatNumarasi,
		LineName:       strings.TrimSpace(d.HatAdi),
		RemainingStops: d.KalanDurakSayisi,
		Direction:      d.HattinYonu,
	}

	lat, okLat := parseCoordinate(d.KoorX)
	lon, okLon := parseCoordinate(d.KoorY)
	if okLat && okLon && csvfeed.ValidateCoordinates(lat, lon) {
		bus.Latitude = &lat
		bus.Longitude = &lon
	}
	return bus
}

func parseCoordinate(raw *string) (float64, bool) {
	if raw == nil {
		return 0, false
	}
	return csvfeed.ParseDecimal(*raw)
}

// FetchApproachingBuses returns the buses heading to stopID.
// The live feed is best effort: any failure is logged and yields an empty list.
func (c *Client) FetchApproachingBuses(ctx context.Context, stopID string) []models.ApproachingBus {
	buses := []models.ApproachingBus{}

	stopID = strings.TrimSpace(stopID)
	if stopID == "" {
		return buses
	}

	rawURL := strings.TrimRight(c.cfg.BusesURL, "/") + "/" + url.PathEscape(stopID)

	resp, err := c.get(ctx, rawURL, "application/json")
	if err != nil {
		c.logger.Warn("live feed request failed",
			slog.String("stop_id", stopID),
			slog.String("error", err.Error()))
		return buses
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "close live feed body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("live feed returned non-success status",
			slog.String("stop_id", stopID),
			slog.Int("status", resp.StatusCode))
		return buses
	}

	var dtos []busDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		c.logger.Warn("live feed decode failed",
			slog.String("stop_id", stopID),
			slog.String("error", err.Error()))
		return buses
	}

	for _, d := range dtos {
		buses = append(buses, d.toModel())
	}
	return buses
}

func (c *Client) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", accept)

	return c.httpClient.Do(req)
}
