// Command ytchatsync archives YouTube livestream chat replays.
// It:
//   - Discovers a channel's livestreams through layered page-shape probes
//     with a keyword-search fallback.
//   - Downloads and normalizes each replay's chat transcript.
//   - Persists transcripts to deterministic JSON exports and, optionally,
//     to Postgres with message-level deduplication.
//
// Subcommands: download, validate, verify, import, list.
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/himawari-tv/ytchatsync/config"
	"github.com/himawari-tv/ytchatsync/db"
	"github.com/himawari-tv/ytchatsync/export"
	"github.com/himawari-tv/ytchatsync/server"
	ytsync "github.com/himawari-tv/ytchatsync/sync"
	"github.com/himawari-tv/ytchatsync/telemetry"
	"github.com/himawari-tv/ytchatsync/youtubeapi"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	initLogging()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()
	shutdown, err := telemetry.InitTracing("ytchatsync", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdown()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = telemetry.WithCorrelation(ctx, uuid.New().String())

	var cmdErr error
	switch os.Args[1] {
	case "download":
		cmdErr = runDownload(ctx, cfg, os.Args[2:])
	case "validate":
		cmdErr = runValidate(ctx, cfg, os.Args[2:])
	case "verify":
		cmdErr = runVerify(ctx, cfg, os.Args[2:])
	case "import":
		cmdErr = runImport(ctx, cfg, os.Args[2:])
	case "list":
		cmdErr = runList(ctx, os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if cmdErr != nil {
		slog.Error("command failed", slog.Any("err", cmdErr))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: ytchatsync <command> [flags]

Commands:
  download <channel>   discover a channel's livestreams and archive their chat
  validate <channel>   run discovery only and print the candidates found
  verify               cross-check the database against the JSON export dir
  import [paths...]    load JSON export files into the database
  list                 list archived videos with message counts
`)
}

func initLogging() {
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
}

// connectAndMigrate opens Postgres and applies schema using the dual-system
// approach: versioned migrations first, embedded SQL as fallback for
// deployments without the migration files on disk.
func connectAndMigrate(ctx context.Context) (*sql.DB, error) {
	database, err := db.Connect()
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, attempting fallback to embedded SQL",
			slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			database.Close()
			return nil, fmt.Errorf("migrate db (both versioned and embedded SQL failed): %w", err)
		}
	}
	return database, nil
}

func runDownload(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	maxVideos := fs.Int("max-videos", 0, "process at most N videos (0 = all)")
	startDate := fs.String("start-date", "", "keep videos uploaded on or after this date (YYYY-MM-DD)")
	endDate := fs.String("end-date", "", "keep videos uploaded on or before this date (YYYY-MM-DD)")
	startIndex := fs.Int("start-index", 0, "skip the first N filtered videos")
	endIndex := fs.Int("end-index", -1, "stop before this index (-1 = to the end)")
	skipExisting := fs.Bool("skip-existing", true, "skip videos already present in the database")
	stopOnExisting := fs.Bool("stop-on-existing", true, "halt the run at the first already-synced video")
	saveToDB := fs.Bool("save-to-db", false, "also persist chat to Postgres")
	cookies := fs.String("cookies", cfg.CookiesPath, "Netscape cookie file for member-only content")
	jsonDir := fs.String("json-dir", cfg.JSONDir, "directory for JSON exports")
	delay := fs.Duration("delay", cfg.SyncDelay, "pause between processed videos")
	videoTimeout := fs.Duration("video-timeout", 0, "abandon a single video's fetches after this long (0 = unbounded)")
	metricsAddr := fs.String("metrics-addr", cfg.MetricsAddr, "serve /metrics, /healthz and /status on this address (empty = off)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("download: channel reference required (handle, channel ID, or URL)")
	}
	channel := fs.Arg(0)

	if *cookies != "" {
		check := *cfg
		check.CookiesPath = *cookies
		if err := check.ValidateCookiesReady(); err != nil {
			slog.Warn("continuing without cookies", slog.Any("err", err))
		}
	}
	client := &youtubeapi.Client{
		CookieHeader: youtubeapi.LoadCookieHeader(*cookies),
		UserAgent:    cfg.UserAgent,
	}

	controller := &ytsync.Controller{
		Channel:      client,
		Chat:         client,
		Exporter:     export.NewWriter(*jsonDir),
		Delay:        *delay,
		VideoTimeout: *videoTimeout,
	}

	// The store backs both the incremental policy and the optional DB sink.
	needDB := *saveToDB || *skipExisting || *stopOnExisting
	if needDB {
		database, err := connectAndMigrate(ctx)
		if err != nil {
			if *saveToDB {
				return err
			}
			slog.Warn("database unavailable, existence checks disabled", slog.Any("err", err))
		} else {
			defer database.Close()
			controller.Store = &db.Store{DB: database}
		}
	}

	opts := ytsync.Options{
		MaxVideos:      *maxVideos,
		StartDate:      *startDate,
		EndDate:        *endDate,
		StartIndex:     *startIndex,
		EndIndex:       *endIndex,
		SkipExisting:   *skipExisting && controller.Store != nil,
		StopOnExisting: *stopOnExisting && controller.Store != nil,
		SaveToDB:       *saveToDB,
	}

	var snapshot atomic.Pointer[statusSnapshot]
	snapshot.Store(&statusSnapshot{Status: "running", Channel: channel, StartedAt: time.Now().UTC()})
	if *metricsAddr != "" {
		go func() {
			err := server.Start(ctx, nil, *metricsAddr, func() any { return snapshot.Load() })
			if err != nil {
				slog.Error("http server exited with error", slog.Any("err", err))
			}
		}()
	}

	report, err := controller.Run(ctx, channel, opts)
	snapshot.Store(&statusSnapshot{
		Status:     "finished",
		Channel:    channel,
		StartedAt:  report.StartedAt,
		Successful: report.Successful,
		Failed:     report.Failed,
		Skipped:    report.Skipped,
	})

	fmt.Printf("channel %s: %d candidates, %d after filters, %d archived, %d failed, %d skipped\n",
		channel, report.Candidates, report.Filtered, report.Successful, report.Failed, report.Skipped)
	if report.Halted {
		fmt.Println("run halted at first already-synced video")
	}
	return err
}

type statusSnapshot struct {
	Status     string    `json:"status"`
	Channel    string    `json:"channel"`
	StartedAt  time.Time `json:"started_at"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
}

// runValidate exercises discovery without touching any sink: useful for
// checking that a channel reference resolves before kicking off a long run.
func runValidate(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cookies := fs.String("cookies", cfg.CookiesPath, "Netscape cookie file for member-only content")
	limit := fs.Int("limit", 10, "number of candidates to print")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("validate: channel reference required (handle, channel ID, or URL)")
	}
	channel := fs.Arg(0)

	client := &youtubeapi.Client{
		CookieHeader: youtubeapi.LoadCookieHeader(*cookies),
		UserAgent:    cfg.UserAgent,
	}
	discovery := &ytsync.Discovery{Extractor: client}
	candidates := discovery.Discover(ctx, channel)
	if len(candidates) == 0 {
		return ytsync.ErrNoVideos
	}
	fmt.Printf("channel %s: %d livestream candidates\n", channel, len(candidates))
	for i, c := range candidates {
		if i >= *limit {
			fmt.Printf("  ... and %d more\n", len(candidates)-*limit)
			break
		}
		fmt.Printf("  %s  %s\n", c.VideoID, c.Title)
	}
	return nil
}

func runVerify(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	jsonDir := fs.String("json-dir", cfg.JSONDir, "directory holding JSON exports")
	_ = fs.Parse(args)

	database, err := connectAndMigrate(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	store := &db.Store{DB: database}

	videos, err := store.ListVideos(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("database: %d videos\n", len(videos))
	for _, v := range videos {
		fmt.Printf("  %s  %-10s  %6d messages  %s\n", v.VideoID, v.UploadDate, v.MessageCount, v.Title)
	}

	paths, err := export.List(*jsonDir)
	if err != nil {
		slog.Warn("export dir unreadable", slog.String("dir", *jsonDir), slog.Any("err", err))
		return nil
	}
	mismatches := 0
	for _, p := range paths {
		doc, err := export.Read(p)
		if err != nil {
			fmt.Printf("  BROKEN export %s: %v\n", p, err)
			mismatches++
			continue
		}
		n, err := store.CountMessages(ctx, doc.Metadata.VideoID)
		if err != nil {
			return err
		}
		if n != 0 && n != doc.Metadata.TotalMessages {
			fmt.Printf("  MISMATCH %s: export has %d messages, database has %d\n",
				doc.Metadata.VideoID, doc.Metadata.TotalMessages, n)
			mismatches++
		}
	}
	fmt.Printf("exports: %d files, %d problems\n", len(paths), mismatches)
	if mismatches > 0 {
		return fmt.Errorf("validation found %d problems", mismatches)
	}
	return nil
}

func runImport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	jsonDir := fs.String("json-dir", cfg.JSONDir, "directory holding JSON exports")
	_ = fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		var err error
		paths, err = export.List(*jsonDir)
		if err != nil {
			return err
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("import: no export files found")
	}

	database, err := connectAndMigrate(ctx)
	if err != nil {
		return err
	}
	defer database.Close()
	store := &db.Store{DB: database}

	var totalInserted, totalSkipped int
	for _, p := range paths {
		doc, err := export.Read(p)
		if err != nil {
			slog.Warn("skipping unreadable export", slog.String("path", p), slog.Any("err", err))
			continue
		}
		if doc.VideoInfo != nil {
			if err := store.UpsertVideo(ctx, doc.VideoInfo); err != nil {
				return err
			}
		}
		inserted, skipped, err := store.InsertMessages(ctx, doc.ChatMessages)
		if err != nil {
			return err
		}
		totalInserted += inserted
		totalSkipped += skipped
		fmt.Printf("%s: %d inserted, %d duplicates skipped\n", p, inserted, skipped)
	}
	fmt.Printf("import finished: %d inserted, %d duplicates skipped\n", totalInserted, totalSkipped)
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	_ = fs.Parse(args)

	database, err := connectAndMigrate(ctx)
	if err != nil {
		return err
	}
	defer database.Close()

	videos, err := (&db.Store{DB: database}).ListVideos(ctx)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		fmt.Println("no archived videos")
		return nil
	}
	for _, v := range videos {
		fmt.Printf("%s  %-10s  %6d messages  %s\n", v.VideoID, v.UploadDate, v.MessageCount, v.Title)
	}
	return nil
}
