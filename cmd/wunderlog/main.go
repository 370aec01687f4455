// Command wunderlog periodically fetches raw forecast and observation
// payloads from the Weather Underground API and archives them on disk for
// later trend analysis.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/wunderlog/wunderlog/internal/api/http"
	"github.com/wunderlog/wunderlog/internal/archive"
	"github.com/wunderlog/wunderlog/internal/config"
	"github.com/wunderlog/wunderlog/internal/netrc"
	"github.com/wunderlog/wunderlog/internal/scheduler"
	"github.com/wunderlog/wunderlog/internal/store"
	"github.com/wunderlog/wunderlog/internal/weather"
	"github.com/wunderlog/wunderlog/internal/weather/providers"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		log.Printf("wunderlog: %v", err)
		os.Exit(exitCode(err))
	}
}

func run() error {
	loop := flag.Bool("loop", false, "run on a timer with the read-only API instead of a single cycle")
	interval := flag.Duration("interval", 0, "fetch interval in loop mode, overrides FETCH_INTERVAL")
	backfill := flag.Int("backfill", 0, "archive N days of history and exit")
	kindsFlag := flag.String("kinds", "", "comma-separated record kinds to collect, overrides WEATHER_KINDS")
	archiveDir := flag.String("archive", "", "archive directory, overrides ARCHIVE_DIR")
	netrcPath := flag.String("netrc", "", "credential file, overrides NETRC_PATH")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("wunderlog " + version)
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return NewConfigError(err.Error())
	}

	if *interval != 0 {
		if *interval < time.Minute {
			return NewUsageError(fmt.Sprintf("-interval must be at least 1m, got %s", *interval))
		}
		cfg.FetchInterval = *interval
	}
	if *kindsFlag != "" {
		kinds, err := weather.ParseKinds(*kindsFlag)
		if err != nil {
			return NewUsageError(err.Error())
		}
		cfg.Kinds = kinds
	}
	if *archiveDir != "" {
		cfg.ArchiveDir = *archiveDir
	}
	if *netrcPath != "" {
		cfg.NetrcPath = *netrcPath
	}

	// Positional locations override the configured list.
	if args := flag.Args(); len(args) > 0 {
		var locs []weather.Location
		for _, arg := range args {
			loc, err := weather.ResolveQuery(arg, cfg.GeocoderAPIKey)
			if err != nil {
				return NewUsageError(err.Error())
			}
			locs = append(locs, loc)
		}
		cfg.Locations = locs
	}
	if len(cfg.Locations) == 0 {
		return NewUsageError("no locations: pass one as an argument (e.g. Norway/Asker) or set WEATHER_LOCATIONS")
	}

	// Resolve the credential once; an explicit key skips the netrc file.
	apiKey := cfg.APIKey
	if apiKey == "" {
		cred, err := netrc.Resolve(cfg.NetrcPath, cfg.NetrcMachine)
		if err != nil {
			return err
		}
		apiKey = cred.Token
		log.Printf("wunderlog: using credential for %s (login %s)", cred.Machine, cred.Login)
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	provider := providers.NewWundergroundProvider(httpClient, apiKey, cfg.APIBaseURL, providers.BackoffConfig{
		MaxRetries:      cfg.MaxRetries,
		InitialInterval: cfg.InitialBackoff,
		MaxInterval:     cfg.MaxBackoff,
	}, cfg.CacheTTL)

	arch := archive.NewStore(cfg.ArchiveDir)
	runStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

	service := weather.NewService(provider, arch, runStore, cfg.Kinds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *backfill > 0 {
		return runBackfill(ctx, service, cfg.Locations, *backfill)
	}
	if !*loop {
		return runOnce(ctx, service, cfg.Locations)
	}
	return runLoop(ctx, service, cfg)
}

// runOnce executes one collect cycle per location and exits.
func runOnce(ctx context.Context, service *weather.Service, locations []weather.Location) error {
	var errs []error
	for _, loc := range locations {
		res, err := service.Collect(ctx, loc)
		if err != nil {
			errs = append(errs, err)
		}
		log.Printf("wunderlog: %s: %d archived, %d skipped, %d errors",
			loc.Key(), len(res.Archived), res.Skipped, len(res.Errors))
	}
	return errors.Join(errs...)
}

// runBackfill archives up to days of history per location and exits.
func runBackfill(ctx context.Context, service *weather.Service, locations []weather.Location, days int) error {
	var errs []error
	for _, loc := range locations {
		if err := service.Backfill(ctx, loc, days); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// runLoop schedules collect cycles and serves the read-only archive API
// until a termination signal arrives.
func runLoop(ctx context.Context, service *weather.Service, cfg *config.AppConfig) error {
	sched := scheduler.New(cfg.Locations, cfg.FetchInterval, service)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "wunderlog",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "wunderlog",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}
