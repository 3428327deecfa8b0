// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SyncRuns          prometheus.Counter
	VideosPersisted   prometheus.Counter
	VideosFailed      prometheus.Counter
	VideosSkipped     prometheus.Counter
	CandidatesFound   prometheus.Counter
	MessagesCollected prometheus.Counter
	MessagesInserted  prometheus.Counter
	DuplicatesSkipped prometheus.Counter
	ExportsWritten    prometheus.Counter

	// Histograms (seconds)
	VideoDuration prometheus.Observer
	RunDuration   prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SyncRuns = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_sync_runs_total", Help: "Number of channel sync runs started"})
		VideosPersisted = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_videos_persisted_total", Help: "Number of videos whose chat was persisted"})
		VideosFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_videos_failed_total", Help: "Number of videos that failed detail or chat extraction"})
		VideosSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_videos_skipped_total", Help: "Number of already-synced videos skipped"})
		CandidatesFound = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_candidates_found_total", Help: "Number of livestream candidates produced by discovery"})
		MessagesCollected = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_messages_collected_total", Help: "Number of chat messages collected from replays"})
		MessagesInserted = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_messages_inserted_total", Help: "Number of chat messages inserted into the database"})
		DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_duplicates_skipped_total", Help: "Number of chat messages skipped as duplicates"})
		ExportsWritten = promauto.NewCounter(prometheus.CounterOpts{Name: "ytchat_exports_written_total", Help: "Number of JSON export files written"})
		VideoDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytchat_video_duration_seconds", Help: "Per-video processing duration seconds", Buckets: prometheus.DefBuckets})
		RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "ytchat_run_duration_seconds", Help: "Full channel sync run duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// IncSyncRuns records one started channel sync run.
func IncSyncRuns() {
	if SyncRuns != nil {
		SyncRuns.Inc()
	}
}

// ObserveRunDuration records the duration of one full channel sync run.
func ObserveRunDuration(d time.Duration) {
	if RunDuration != nil {
		RunDuration.Observe(d.Seconds())
	}
}

// AddDiscoveredCandidates records how many candidates discovery produced.
func AddDiscoveredCandidates(n int) {
	if CandidatesFound != nil && n > 0 {
		CandidatesFound.Add(float64(n))
	}
}

// AddChatMessages records how many chat messages were collected from a replay.
func AddChatMessages(n int) {
	if MessagesCollected != nil && n > 0 {
		MessagesCollected.Add(float64(n))
	}
}

// AddInsertedMessages records database insert accounting.
func AddInsertedMessages(inserted, skipped int) {
	if MessagesInserted != nil && inserted > 0 {
		MessagesInserted.Add(float64(inserted))
	}
	if DuplicatesSkipped != nil && skipped > 0 {
		DuplicatesSkipped.Add(float64(skipped))
	}
}

// IncExportsWritten records one written export file.
func IncExportsWritten() {
	if ExportsWritten != nil {
		ExportsWritten.Inc()
	}
}

// ObserveVideoOutcome bumps the counter matching a per-video terminal state.
func ObserveVideoOutcome(outcome string) {
	switch outcome {
	case "persisted":
		if VideosPersisted != nil {
			VideosPersisted.Inc()
		}
	case "skipped":
		if VideosSkipped != nil {
			VideosSkipped.Inc()
		}
	default:
		if VideosFailed != nil {
			VideosFailed.Inc()
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
