package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"recon-flyover/internal/api"
	"recon-flyover/internal/config"
	"recon-flyover/internal/logging"
	"recon-flyover/internal/mission"
	"recon-flyover/internal/observability"
	"recon-flyover/internal/repository"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "recon-flyover",
	Short: "Point-of-interest reconnaissance with simulated drone flyovers",
	Long: `Geocodes a point of interest, captures satellite imagery on a ring of
viewpoints around it, enhances and annotates each frame with a drone HUD, and
assembles the frames into an HTML flyover viewer.`,
	SilenceUsage: true,
}

var reconCmd = &cobra.Command{
	Use:   "recon",
	Short: "Run one recon mission",
	RunE:  runRecon,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the mission API",
	RunE:  runServe,
}

var missionsCmd = &cobra.Command{
	Use:   "missions",
	Short: "Inspect stored missions",
}

var missionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent missions",
	RunE:  runMissionsList,
}

var missionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one mission as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runMissionsShow,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration file",
	RunE:  runConfigInit,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the tile cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show tile cache statistics",
	RunE:  runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached tiles (all, or only expired with --expired)",
	RunE:  runCacheClear,
}

var (
	target      string
	location    string
	frameCount  int
	radiusKm    float64
	outputRoot  string
	withVideo   bool
	withGeoTIFF bool
	withCache   bool
	jsonOutput  bool
	persist     bool
	serveHost   string
	servePort   int
	listStatus  string
	listPOI     string
	listLimit   int
	forceInit   bool
	onlyExpired bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("RECON_CONFIG"), "Config file path (default ~/.recon-flyover/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	reconCmd.Flags().StringVarP(&target, "target", "t", "", "Point of interest name")
	reconCmd.Flags().StringVarP(&location, "location", "l", "", "Location hint appended to the geocoding query")
	reconCmd.Flags().IntVarP(&frameCount, "frames", "n", 0, "Number of ring frames")
	reconCmd.Flags().Float64VarP(&radiusKm, "radius", "r", 0, "Ring radius in km")
	reconCmd.Flags().StringVarP(&outputRoot, "out", "o", "", "Output root directory")
	reconCmd.Flags().BoolVar(&withVideo, "video", false, "Also export a flyover video")
	reconCmd.Flags().BoolVar(&withGeoTIFF, "geotiff", false, "Also write the nadir tile as a GeoTIFF")
	reconCmd.Flags().BoolVar(&withCache, "cache", false, "Use the tile cache")
	reconCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the mission result as JSON")
	reconCmd.Flags().BoolVar(&persist, "save", false, "Record the mission in the mission store")
	reconCmd.MarkFlagRequired("target")

	serveCmd.Flags().StringVar(&serveHost, "host", "", "Listen host")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port")

	missionsListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status")
	missionsListCmd.Flags().StringVar(&listPOI, "poi", "", "Filter by POI name")
	missionsListCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum missions to list")

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")
	cacheClearCmd.Flags().BoolVar(&onlyExpired, "expired", false, "Only evict expired tiles")

	missionsCmd.AddCommand(missionsListCmd, missionsShowCmd)
	configCmd.AddCommand(configShowCmd, configInitCmd)
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(reconCmd, serveCmd, missionsCmd, configCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadSettings reads .env, the config file and the environment, then sets up logging
func loadSettings() (*config.Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	settings, err := config.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		settings.Logging.Level = logLevel
	}
	logging.Setup(settings.Logging.Level, settings.Logging.Format)
	return settings, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func runRecon(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if frameCount > 0 {
		settings.Flyover.FrameCount = frameCount
	}
	if radiusKm > 0 {
		settings.Flyover.RadiusKm = radiusKm
	}
	if outputRoot != "" {
		settings.Flyover.OutputRoot = outputRoot
	}
	settings.Video.Enabled = settings.Video.Enabled || withVideo
	settings.Cache.Enabled = settings.Cache.Enabled || withCache
	settings.Flyover.GeoTIFF = settings.Flyover.GeoTIFF || withGeoTIFF
	if err := settings.Validate(); err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, settings.Tracing)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	app, err := NewApp(settings, nil)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if persist {
		if err := app.OpenStore(settings.DB.Path); err != nil {
			return err
		}
	}
	app.ConnectEvents()
	app.EnableAnalytics()

	var (
		barMu sync.Mutex
		bar   *progressbar.ProgressBar
	)
	if !jsonOutput {
		app.SetProgress(func(done, total int) {
			barMu.Lock()
			defer barMu.Unlock()
			if bar == nil {
				bar = progressbar.Default(int64(total), "Capturing frames")
			}
			bar.Set(done)
		})
	}

	result, reconErr := app.Recon(ctx, target, location)
	if bar != nil {
		bar.Finish()
		fmt.Println()
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return err
		}
	} else {
		fmt.Println(describe(result))
		for _, f := range result.Frames {
			fmt.Printf("  frame %-6s bearing %-8s %s\n", f.Index, f.Bearing, f.ImagePath)
		}
		if result.ViewerPath != "" {
			fmt.Printf("Viewer: %s\n", result.ViewerPath)
		}
		if result.VideoPath != "" {
			fmt.Printf("Video:  %s\n", result.VideoPath)
		}
		if result.GeoTIFFPath != "" {
			fmt.Printf("GeoTIFF: %s\n", result.GeoTIFFPath)
		}
	}
	return reconErr
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	if serveHost != "" {
		settings.Server.Host = serveHost
	}
	if servePort > 0 {
		settings.Server.Port = servePort
	}

	ctx, stop := signalContext()
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, settings.Tracing)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing)

	metrics, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	app, err := NewApp(settings, metrics)
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if err := app.OpenStore(settings.DB.Path); err != nil {
		return err
	}
	app.ConnectEvents()
	app.EnableAnalytics()
	if err := app.StartQueue(settings.Server.QueueWorkers, settings.Server.QueueSize); err != nil {
		return err
	}

	outputAbs, err := filepath.Abs(settings.Flyover.OutputRoot)
	if err != nil {
		return err
	}
	settings.Flyover.OutputRoot = outputAbs

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(app.Repository(), app, outputAbs)
	handler.SetStatusReporter(app)
	router := api.NewRouter(handler, api.RouterConfig{
		RPS:        settings.Server.RPS,
		Burst:      settings.Server.Burst,
		OutputRoot: outputAbs,
		Metrics:    metrics,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", srv.Addr, "output", outputAbs)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func openRepository() (*repository.SQLiteDB, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return repository.NewSQLiteDB(settings.DB.Path)
}

func runMissionsList(cmd *cobra.Command, args []string) error {
	db, err := openRepository()
	if err != nil {
		return err
	}
	defer db.Close()

	filter := repository.Filter{Limit: listLimit, POI: listPOI}
	if listStatus != "" {
		status := mission.Status(listStatus)
		filter.Status = &status
	}

	missions, err := db.ListMissions(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if len(missions) == 0 {
		fmt.Println("No missions recorded")
		return nil
	}
	for i := range missions {
		fmt.Println(describe(&missions[i]))
	}
	return nil
}

func runMissionsShow(cmd *cobra.Command, args []string) error {
	db, err := openRepository()
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.GetByID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(settings.Redacted())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GetSettingsPath()
	}
	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.SaveSettings(path, config.DefaultSettings()); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func cacheApp() (*App, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	settings.Cache.Enabled = true
	return NewApp(settings, nil)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	app, err := cacheApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	stats := app.GetCacheStats()
	if !stats.Enabled {
		return fmt.Errorf("tile cache unavailable")
	}
	fmt.Printf("Path:    %s\nEntries: %d\nSize:    %.1f MB\n", stats.CachePath, stats.Entries, stats.SizeMB)
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	app, err := cacheApp()
	if err != nil {
		return err
	}
	defer app.Shutdown()

	if onlyExpired {
		fmt.Printf("Evicted %d expired tiles\n", app.EvictExpiredTiles())
		return nil
	}
	if err := app.ClearCache(); err != nil {
		return err
	}
	fmt.Println("Tile cache cleared")
	return nil
}
