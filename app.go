package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/posthog/posthog-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"recon-flyover/internal/api"
	"recon-flyover/internal/cache"
	"recon-flyover/internal/config"
	"recon-flyover/internal/enhance"
	"recon-flyover/internal/events"
	"recon-flyover/internal/flyover"
	"recon-flyover/internal/geo"
	"recon-flyover/internal/geocode"
	"recon-flyover/internal/hud"
	"recon-flyover/internal/imagery"
	"recon-flyover/internal/mission"
	"recon-flyover/internal/observability"
	"recon-flyover/internal/repository"
	"recon-flyover/internal/taskqueue"
	"recon-flyover/internal/utils/naming"
)

// Linker flags
var (
	AppVersion string = "0.0.0-dev"
)

// App wires the recon pipeline to its stores and side channels
type App struct {
	settings  *config.Settings
	resolver  *geocode.Resolver
	fetcher   *imagery.Fetcher
	pipeline  *flyover.Pipeline
	tileCache *cache.TileCache
	metrics   *observability.Collector

	repo      repository.MissionRepository
	db        *repository.SQLiteDB
	natsConn  *nats.Conn
	publisher *events.Publisher
	phClient  posthog.Client
	taskQueue *taskqueue.QueueManager
}

// NewApp builds the geocoder chain, imagery chain, optional tile cache and
// pipeline from settings. metrics may be nil.
func NewApp(settings *config.Settings, metrics *observability.Collector) (*App, error) {
	sources, err := buildSources(settings.Imagery)
	if err != nil {
		return nil, err
	}

	fetcher := imagery.NewFetcher(sources, settings.Imagery.Timeout, settings.Imagery.MinBytes)
	if settings.Imagery.UserAgent != "" {
		fetcher.SetUserAgent(settings.Imagery.UserAgent)
	}
	fetcher.SetMaxConcurrent(settings.Imagery.MaxConcurrent)

	a := newApp(settings, buildResolver(settings.Geocode), fetcher, metrics)

	if settings.Cache.Enabled {
		cacheDir := settings.Cache.Dir
		if cacheDir == "" {
			cacheDir = cache.GetCacheDir()
		}
		ttl := time.Duration(settings.Cache.TTLDays) * 24 * time.Hour
		tileCache, err := cache.New(cacheDir, settings.Cache.MaxEntries, ttl)
		if err != nil {
			slog.Warn("tile cache unavailable, continuing without it", "dir", cacheDir, "error", err)
		} else {
			a.tileCache = tileCache
			fetcher.SetCache(tileCache)
			slog.Info("tile cache enabled", "dir", cacheDir, "max_entries", settings.Cache.MaxEntries)
		}
	}

	return a, nil
}

func newApp(settings *config.Settings, resolver *geocode.Resolver, fetcher *imagery.Fetcher, metrics *observability.Collector) *App {
	pipeline := flyover.NewPipeline(
		fetcher,
		enhance.New(enhance.DefaultOptions()),
		hud.New(hud.DefaultLayout()),
		flyover.Options{
			RingZoom:  settings.Flyover.RingZoom,
			NadirZoom: settings.Flyover.NadirZoom,
			Workers:   settings.Flyover.Workers,
		},
	)

	if metrics != nil {
		resolver.SetRecorder(metrics)
		fetcher.SetRecorder(metrics)
		pipeline.SetRecorder(metrics)
	}

	fetcher.RateLimits().SetOnRateLimit(func(ev imagery.RateLimitEvent) {
		slog.Warn("imagery provider rate limited", "source", ev.Provider, "status", ev.StatusCode, "count", ev.Count)
	})

	return &App{
		settings: settings,
		resolver: resolver,
		fetcher:  fetcher,
		pipeline: pipeline,
		metrics:  metrics,
	}
}

func buildResolver(cfg config.GeocodeConfig) *geocode.Resolver {
	providers := []geocode.Provider{
		geocode.NewNominatim("", cfg.UserAgent, cfg.Timeout),
	}
	if cfg.MapboxToken != "" {
		providers = append(providers, geocode.NewMapbox("", cfg.MapboxToken, cfg.Timeout))
	}
	if cfg.GooglePlacesAPIKey != "" {
		providers = append(providers, geocode.NewGooglePlaces("", cfg.GooglePlacesAPIKey, cfg.Timeout))
	}

	fallback := geo.Coordinate{Latitude: cfg.DefaultLatitude, Longitude: cfg.DefaultLongitude}
	return geocode.NewResolver(fallback, providers...)
}

func buildSources(cfg config.ImageryConfig) ([]imagery.Source, error) {
	sources := imagery.DefaultSources(cfg.GoogleMapsAPIKey)
	for _, custom := range cfg.CustomSources {
		if !custom.Enabled {
			continue
		}
		switch custom.Type {
		case "xyz":
			src, err := imagery.NewTileSource(custom.Name, custom.URL)
			if err != nil {
				return nil, err
			}
			sources = append(sources, src)
		case "static":
			sources = append(sources, imagery.NewStaticMapSource(custom.Name, custom.URL, custom.APIKey))
		}
	}
	return sources, nil
}

// OpenStore opens the sqlite mission store
func (a *App) OpenStore(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := repository.NewSQLiteDB(path)
	if err != nil {
		return err
	}
	a.db = db
	a.repo = db
	return nil
}

// Repository returns the mission store, nil until OpenStore succeeds
func (a *App) Repository() repository.MissionRepository {
	return a.repo
}

// ConnectEvents connects to NATS when a URL is configured. A failed
// connection is logged and events are dropped.
func (a *App) ConnectEvents() {
	cfg := a.settings.NATS
	if cfg.URL == "" {
		return
	}
	nc, err := events.Connect(cfg)
	if err != nil {
		slog.Warn("mission events disabled", "error", err)
		return
	}
	a.natsConn = nc
	a.publisher = events.NewPublisher(nc, cfg.SubjectPrefix)
	slog.Info("mission events enabled", "url", nc.ConnectedUrl(), "prefix", cfg.SubjectPrefix)
}

// EnableAnalytics starts the PostHog client when an API key is configured
func (a *App) EnableAnalytics() {
	cfg := a.settings.PostHog
	if cfg.APIKey == "" {
		return
	}
	client, err := posthog.NewWithConfig(cfg.APIKey, posthog.Config{Endpoint: cfg.Host})
	if err != nil {
		slog.Warn("failed to initialize PostHog", "error", err)
		return
	}
	a.phClient = client
}

// StartQueue starts the background mission queue used by the API
func (a *App) StartQueue(workers, capacity int) error {
	a.taskQueue = taskqueue.NewQueueManager(a, workers, capacity)
	a.taskQueue.SetOnTaskComplete(func(task taskqueue.Task, err error) {
		slog.Info("queued mission finished", "mission_id", task.ID, "status", task.Status)
	})
	return a.taskQueue.StartQueue()
}

// SetProgress sets a callback invoked after every processed viewpoint
func (a *App) SetProgress(fn func(done, total int)) {
	a.pipeline.SetProgress(fn)
}

// Recon runs one recon mission for a POI and returns its result. On failure
// the result carries status failed and the error is returned alongside it.
func (a *App) Recon(ctx context.Context, poi, hint string) (*mission.Result, error) {
	return a.run(ctx, mission.NewResult("", poi, hint))
}

// Submit queues a mission and returns its pending result
func (a *App) Submit(ctx context.Context, poi, location string) (*mission.Result, error) {
	if a.taskQueue == nil {
		return nil, taskqueue.ErrQueueStopped
	}

	result := mission.NewResult("", poi, location)
	if err := a.save(ctx, result); err != nil {
		return nil, err
	}

	if err := a.taskQueue.AddTask(taskqueue.NewTask(result.ID, poi, location)); err != nil {
		result.MarkFailed(err)
		a.save(ctx, result)
		return nil, err
	}
	return result, nil
}

// Cancel stops a queued or running mission
func (a *App) Cancel(id string) error {
	if a.taskQueue == nil {
		return fmt.Errorf("%w: %s", taskqueue.ErrTaskNotFound, id)
	}
	return a.taskQueue.CancelTask(id)
}

// ExecuteTask runs a queued mission
func (a *App) ExecuteTask(ctx context.Context, task taskqueue.Task) error {
	result := mission.NewResult(task.ID, task.POI, task.Location)
	if a.repo != nil {
		if stored, err := a.repo.GetByID(ctx, task.ID); err == nil {
			result = stored
		}
	}
	_, err := a.run(ctx, result)
	return err
}

// ProviderStatus reports configured providers and rate-limited sources
func (a *App) ProviderStatus() api.ProviderStatus {
	return api.ProviderStatus{
		Geocoders:  a.resolver.Providers(),
		Imagery:    a.fetcher.Sources(),
		RateLimits: a.fetcher.RateLimits().Snapshot(),
	}
}

func (a *App) run(ctx context.Context, result *mission.Result) (*mission.Result, error) {
	ctx, span := otel.Tracer("recon-flyover").Start(ctx, "recon.mission")
	span.SetAttributes(
		attribute.String("mission.id", result.ID),
		attribute.String("mission.poi", result.POI),
	)
	defer span.End()

	logger := slog.With("mission_id", result.ID, "poi", result.POI)
	logger.Info("recon mission started", "location", result.Location)

	result.MarkRunning()
	if err := a.save(ctx, result); err != nil {
		logger.Warn("failed to persist running mission", "error", err)
	}

	err := a.execute(ctx, result, logger)
	if err != nil {
		result.MarkFailed(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("recon mission failed", "error", err)
	} else {
		logger.Info("recon mission completed", "frames", len(result.Frames), "viewer", result.ViewerPath)
	}

	a.finish(result)
	return result, err
}

func (a *App) execute(ctx context.Context, result *mission.Result, logger *slog.Logger) error {
	cfg := a.settings.Flyover

	resolution, err := a.resolver.Resolve(ctx, result.POI, result.Location)
	if err != nil {
		return fmt.Errorf("geocode %q: %w", result.POI, err)
	}
	center := resolution.Coordinate
	result.Coordinate = center
	result.Geocoder = resolution.Provider
	result.Fallback = resolution.Fallback
	if resolution.Fallback {
		logger.Warn("geocoding fell back to default coordinate", "coordinate", center.String())
	}

	viewpoints, err := geo.GenerateRing(center, cfg.RadiusKm, cfg.FrameCount)
	if err != nil {
		return err
	}
	result.Plan = mission.NewPlan(result.POI, result.Location, center, viewpoints)

	outDir, err := naming.OutputDir(cfg.OutputRoot, result.POI, result.ID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	result.OutputDir = outDir

	frames := a.pipeline.Run(ctx, viewpoints, outDir, flyover.Target{
		POI:      result.POI,
		Location: result.Location,
	})
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mission interrupted: %w", err)
	}

	seq, err := flyover.Assemble(frames, result.POI, center)
	if err != nil {
		return err
	}
	seq.Location = result.Location

	viewerPath, err := flyover.WriteViewer(seq, outDir)
	if err != nil {
		return err
	}
	result.MarkCompleted(seq, viewerPath)

	if path, err := flyover.WriteMetadata(seq, outDir); err != nil {
		logger.Warn("failed to write flyover metadata", "error", err)
	} else {
		result.MetadataPath = path
	}

	if cfg.GeoTIFF {
		if path, err := flyover.WriteNadirGeoTIFF(seq, outDir); err != nil {
			logger.Warn("nadir GeoTIFF export skipped", "error", err)
		} else {
			result.GeoTIFFPath = path
		}
	}

	if a.settings.Video.Enabled {
		if path, err := flyover.ExportVideo(seq, outDir, a.settings.Video.Export); err != nil {
			logger.Warn("flyover video export failed", "error", err)
		} else {
			result.VideoPath = path
		}
	}
	return nil
}

// finish persists, publishes and records a terminal result
func (a *App) finish(result *mission.Result) {
	// The request context may be canceled; bookkeeping still runs
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.save(ctx, result); err != nil {
		slog.Warn("failed to persist mission", "mission_id", result.ID, "error", err)
	}
	if err := a.publisher.PublishResult(result); err != nil {
		slog.Warn("failed to publish mission event", "mission_id", result.ID, "error", err)
	}
	a.metrics.RecordMission(string(result.Status), result.Duration())
	a.TrackEvent("mission_completed", map[string]interface{}{
		"status":   string(result.Status),
		"frames":   len(result.Frames),
		"fallback": result.Fallback,
		"geocoder": result.Geocoder,
		"video":    result.VideoPath != "",
		"geotiff":  result.GeoTIFFPath != "",
		"version":  AppVersion,
		"os":       goruntime.GOOS,
	})
}

func (a *App) save(ctx context.Context, result *mission.Result) error {
	if a.repo == nil {
		return nil
	}
	return a.repo.Save(ctx, result)
}

// TrackEvent sends an event to PostHog
func (a *App) TrackEvent(event string, props map[string]interface{}) {
	if a.phClient != nil {
		a.phClient.Enqueue(posthog.Capture{
			DistinctId: "recon-flyover",
			Event:      event,
			Properties: props,
		})
	}
}

// Shutdown releases every resource the app opened
func (a *App) Shutdown() {
	if a.taskQueue != nil {
		a.taskQueue.Close()
	}
	if a.tileCache != nil {
		if err := a.tileCache.Close(); err != nil {
			slog.Warn("failed to flush tile cache", "error", err)
		}
	}
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.natsConn.Close()
		}
	}
	if a.phClient != nil {
		a.phClient.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Warn("failed to close mission store", "error", err)
		}
	}
}

// describe renders a one-line summary of a result for the CLI
func describe(r *mission.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %-8s %s", r.ID, r.Status, r.POI)
	if r.Location != "" {
		fmt.Fprintf(&b, " (%s)", r.Location)
	}
	fmt.Fprintf(&b, "  %s  frames=%d", r.Coordinate, len(r.Frames))
	if r.Fallback {
		b.WriteString(" [default coordinate]")
	}
	if r.Error != "" {
		fmt.Fprintf(&b, "  error=%s", r.Error)
	}
	return b.String()
}
