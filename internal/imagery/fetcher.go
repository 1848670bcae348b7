package imagery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/semaphore"

	"recon-flyover/internal/common"
	"recon-flyover/internal/geo"
)

const (
	// DefaultTimeout bounds each imagery request
	DefaultTimeout = 10 * time.Second

	// DefaultMinBytes rejects "no imagery" placeholder tiles
	DefaultMinBytes = 1000

	// maxImageBytes caps how much of a response body is read
	maxImageBytes = 32 << 20
)

var (
	// ErrFetchFailed means every source in the chain failed for a viewpoint
	ErrFetchFailed = errors.New("all imagery sources failed")

	// ErrProviderUnavailable wraps a single source failure inside the chain
	ErrProviderUnavailable = errors.New("imagery provider unavailable")
)

// Fetch outcomes reported to the Recorder
const (
	OutcomeSuccess      = "success"
	OutcomeCached       = "cached"
	OutcomeRateLimited  = "rate_limited"
	OutcomeHTTPError    = "http_error"
	OutcomeTooSmall     = "too_small"
	OutcomeNotImage     = "not_image"
	OutcomeNetworkError = "network_error"
)

// TileStore is an optional tile cache consulted before the network
type TileStore interface {
	Get(provider string, z, x, y int) ([]byte, bool)
	Set(provider string, z, x, y int, data []byte) error
}

// Recorder receives one observation per source attempt
type Recorder interface {
	RecordFetch(source, outcome string)
}

// Result describes a successful fetch
type Result struct {
	Path   string `json:"path"`
	Source string `json:"source"`
	Bytes  int    `json:"bytes"`
	Cached bool   `json:"cached"`
	// Tiled is set when the image is exactly one slippy tile
	Tiled bool `json:"tiled"`
}

// Fetcher walks an ordered source chain and keeps the first acceptable image
type Fetcher struct {
	sources   []Source
	client    *http.Client
	minBytes  int
	userAgent string
	cache     TileStore
	limits    *RateLimitTracker
	recorder  Recorder
	sem       *semaphore.Weighted
}

// NewFetcher creates a fetcher over the given sources
func NewFetcher(sources []Source, timeout time.Duration, minBytes int) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if minBytes <= 0 {
		minBytes = DefaultMinBytes
	}
	return &Fetcher{
		sources:   sources,
		client:    common.NewHTTPClient(timeout),
		minBytes:  minBytes,
		userAgent: common.UserAgent,
		limits:    NewRateLimitTracker(),
	}
}

// SetCache enables tile caching for tile-addressed sources
func (f *Fetcher) SetCache(store TileStore) {
	f.cache = store
}

// SetRecorder sets the observer for source attempts
func (f *Fetcher) SetRecorder(rec Recorder) {
	f.recorder = rec
}

// SetUserAgent overrides the User-Agent header
func (f *Fetcher) SetUserAgent(ua string) {
	if ua != "" {
		f.userAgent = ua
	}
}

// SetMaxConcurrent caps in-flight downloads across every caller of the
// fetcher. Zero or less removes the cap.
func (f *Fetcher) SetMaxConcurrent(n int) {
	if n <= 0 {
		f.sem = nil
		return
	}
	f.sem = semaphore.NewWeighted(int64(n))
}

// RateLimits returns the per-provider rate limit tracker
func (f *Fetcher) RateLimits() *RateLimitTracker {
	return f.limits
}

// Sources returns the source names in chain order
func (f *Fetcher) Sources() []string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return names
}

// Fetch retrieves imagery for the viewpoint and writes it to dest.
// Sources are tried in order; the first response with HTTP 200, more than
// minBytes of payload and a decodable JPEG, PNG or WebP header wins and
// later sources are not contacted.
func (f *Fetcher) Fetch(ctx context.Context, vp geo.Viewpoint, zoom int, dest string) (Result, error) {
	var failures []string

	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		data, cached, err := f.fetchFromSource(ctx, src, vp.Coordinate, zoom)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, ctxErr
			}
			log.Printf("[Fetcher] frame %s: %s failed: %v", vp.Label(), src.Name(), err)
			failures = append(failures, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}

		if err := writeFileAtomic(dest, data); err != nil {
			return Result{}, fmt.Errorf("failed to save imagery: %w", err)
		}

		log.Printf("[Fetcher] frame %s: %s accepted (%d bytes, cached=%v)", vp.Label(), src.Name(), len(data), cached)
		_, tiled := src.(TileAddressed)
		return Result{Path: dest, Source: src.Name(), Bytes: len(data), Cached: cached, Tiled: tiled}, nil
	}

	return Result{}, fmt.Errorf("%w for frame %s: %s", ErrFetchFailed, vp.Label(), strings.Join(failures, "; "))
}

func (f *Fetcher) fetchFromSource(ctx context.Context, src Source, c geo.Coordinate, zoom int) ([]byte, bool, error) {
	tiled, isTiled := src.(TileAddressed)
	var tile geo.TileAddress
	if isTiled {
		tile = tiled.Tile(c, zoom)
	}

	if isTiled && f.cache != nil {
		if data, ok := f.cache.Get(src.Name(), tile.Zoom, tile.X, tile.Y); ok && len(data) > f.minBytes && checkImage(data) == nil {
			f.record(src.Name(), OutcomeCached)
			return data, true, nil
		}
	}

	data, outcome, err := f.download(ctx, src.Name(), src.URL(c, zoom))
	f.record(src.Name(), outcome)
	if err != nil {
		return nil, false, err
	}

	if isTiled && f.cache != nil {
		if err := f.cache.Set(src.Name(), tile.Zoom, tile.X, tile.Y, data); err != nil {
			log.Printf("[Fetcher] Warning: failed to cache tile %s %s: %v", src.Name(), tile, err)
		}
	}
	return data, false, nil
}

func (f *Fetcher) download(ctx context.Context, provider, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, OutcomeNetworkError, fmt.Errorf("%w: failed to create request: %v", ErrProviderUnavailable, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	if f.sem != nil {
		if err := f.sem.Acquire(ctx, 1); err != nil {
			return nil, OutcomeNetworkError, err
		}
		defer f.sem.Release(1)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, OutcomeNetworkError, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if f.limits.Observe(provider, resp.StatusCode) {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, OutcomeRateLimited, fmt.Errorf("%w: rate limited (HTTP %d)", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, OutcomeHTTPError, fmt.Errorf("%w: unexpected status code %d", ErrProviderUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, OutcomeNetworkError, fmt.Errorf("%w: failed to read body: %v", ErrProviderUnavailable, err)
	}
	if len(data) <= f.minBytes {
		return nil, OutcomeTooSmall, fmt.Errorf("%w: payload too small (%d bytes)", ErrProviderUnavailable, len(data))
	}
	if err := checkImage(data); err != nil {
		return nil, OutcomeNotImage, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	return data, OutcomeSuccess, nil
}

// checkImage rejects error pages and other bodies that are not a raster
func checkImage(data []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("payload is not an image: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%s payload has no pixels (%dx%d)", format, cfg.Width, cfg.Height)
	}
	return nil
}

func (f *Fetcher) record(source, outcome string) {
	if f.recorder != nil {
		f.recorder.RecordFetch(source, outcome)
	}
}

// writeFileAtomic writes to a temp file and renames it into place so a
// canceled request never leaves a truncated image at dest
func writeFileAtomic(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}
	tmp := dest + ".part"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, dest)
}
