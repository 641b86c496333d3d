package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/eshotmap/eshot_core/internal/cluster"
	"github.com/eshotmap/eshot_core/internal/config"
	"github.com/eshotmap/eshot_core/internal/csvfeed"
	"github.com/eshotmap/eshot_core/internal/eshot"
	"github.com/eshotmap/eshot_core/internal/logging"
	"github.com/eshotmap/eshot_core/internal/models"
	"github.com/eshotmap/eshot_core/internal/repository"
	"github.com/eshotmap/eshot_core/internal/service"
	"github.com/eshotmap/eshot_core/internal/store"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to YAML config file")
	refresh := flag.Bool("refresh", false, "Download feeds even when a cached copy exists")
	stopID := flag.String("stop", "", "Print approaching buses for this stop id")
	purge := flag.Bool("purge", false, "Delete cached feed files before loading")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(os.Stderr, "text", cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, *refresh, *purge, *stopID); err != nil {
		logging.LogError(log, "fetch failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger, refresh, purge bool, stopID string) error {
	start := time.Now()

	fs, err := store.NewFileStore(cfg.Cache.Dir)
	if err != nil {
		return err
	}

	if purge {
		for _, res := range []models.Resource{models.ResourceStops, models.ResourceLines} {
			if err := fs.Remove(res); err != nil {
				return err
			}
		}
		log.Info("Cached feeds removed", slog.String("cache_dir", fs.Dir()))
	}

	client := eshot.NewClient(eshot.Config{
		StopsURL:  cfg.Feed.StopsURL,
		LinesURL:  cfg.Feed.LinesURL,
		BusesURL:  cfg.Feed.BusesURL,
		UserAgent: cfg.Feed.UserAgent,
		Timeout:   cfg.Feed.Timeout,
	}, log)

	repo := repository.New(client, fs, csvfeed.NewParser(log), log)
	svc := service.New(repo, client, cluster.New(cfg.Cluster.BaseSize, cfg.Cluster.ReferenceZoom), log)

	log.Info("Step 1/2: Loading stops...")
	stops, err := svc.LoadStops(ctx, refresh)
	if err != nil {
		return fmt.Errorf("failed to load stops: %w", err)
	}
	report(models.ResourceStops, len(stops.Items), stops.Outcome, stops.RefreshErr, stops.ParseErr)

	log.Info("Step 2/2: Loading lines...")
	lines, err := svc.LoadLines(ctx, refresh)
	if err != nil {
		return fmt.Errorf("failed to load lines: %w", err)
	}
	report(models.ResourceLines, len(lines.Items), lines.Outcome, lines.RefreshErr, lines.ParseErr)

	if stopID != "" {
		if err := describeStop(ctx, os.Stdout, svc, stopID); err != nil {
			return err
		}

		buses, _ := svc.SelectStop(ctx, stopID)
		printBuses(buses)
	}

	log.Info("Done", slog.Duration("duration", time.Since(start)), slog.String("cache_dir", fs.Dir()))
	return nil
}

type stopLookup interface {
	Stop(ctx context.Context, id string) (models.Stop, bool, error)
}

func describeStop(ctx context.Context, w io.Writer, lookup stopLookup, stopID string) error {
	stop, ok, err := lookup.Stop(ctx, stopID)
	if err != nil {
		return fmt.Errorf("failed to look up stop %s: %w", stopID, err)
	}
	if !ok {
		fmt.Fprintf(w, "\nStop %s is not in the stops feed\n", stopID)
		return nil
	}
	fmt.Fprintf(w, "\nStop %s: %s (%.5f, %.5f) lines: %s\n", stop.ID, stop.Name, stop.Latitude, stop.Longitude, stop.LineIDs)
	return nil
}

func report(res models.Resource, count int, outcome repository.Outcome, refreshErr, parseErr error) {
	fmt.Printf("%-6s %6d records (%s)\n", res, count, outcome)
	if refreshErr != nil {
		fmt.Printf("       refresh failed: %v\n", refreshErr)
	}
	if parseErr != nil {
		fmt.Printf("       no usable records: %v\n", parseErr)
	}
}

func printBuses(buses []models.ApproachingBus) {
	if len(buses) == 0 {
		fmt.Println("No approaching buses")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUS\tLINE\tNAME\tSTOPS AWAY\tDIRECTION\tPOSITION")
	for _, b := range buses {
		pos := "unknown"
		if b.HasPosition() {
			pos = fmt.Sprintf("%.5f, %.5f", *b.Latitude, *b.Longitude)
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%d\t%s\n", b.BusID, b.LineNo, b.LineName, b.RemainingStops, b.Direction, pos)
	}
	_ = w.Flush()
}
