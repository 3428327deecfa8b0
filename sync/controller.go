package sync

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/himawari-tv/ytchatsync/emote"
	"github.com/himawari-tv/ytchatsync/model"
	"github.com/himawari-tv/ytchatsync/telemetry"
	"github.com/himawari-tv/ytchatsync/youtubeapi"
)

// Outcome is the terminal state of one candidate's trip through the per-video
// state machine: PENDING -> {SKIPPED | DETAIL_FAILED | CHAT_EMPTY | PERSISTED}.
type Outcome int

const (
	OutcomePersisted Outcome = iota
	OutcomeSkipped
	OutcomeDetailFailed
	OutcomeChatEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomePersisted:
		return "persisted"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeDetailFailed:
		return "detail_failed"
	case OutcomeChatEmpty:
		return "chat_empty"
	}
	return "unknown"
}

// Options configure one channel sync run.
type Options struct {
	MaxVideos  int
	StartDate  string // YYYY-MM-DD inclusive
	EndDate    string // YYYY-MM-DD inclusive
	StartIndex int
	EndIndex   int // negative = to the end

	// SkipExisting skips candidates already present in the store.
	// StopOnExisting additionally halts the whole run at the first one,
	// relying on the upstream's reverse-chronological listing order.
	SkipExisting   bool
	StopOnExisting bool

	// SaveToDB enables the relational sink; the JSON export always runs.
	SaveToDB bool
}

// DefaultDelay is the fixed inter-video throttle against upstream rate limits.
const DefaultDelay = 2 * time.Second

// Controller orchestrates the per-video pipeline: existence check, detail
// fetch, chat fetch, normalization, dual-sink write, and rate limiting.
type Controller struct {
	Channel  ChannelExtractor
	Chat     ChatExtractor
	Store    Store
	Exporter Exporter

	// Delay is applied after every processed (not skipped) video.
	Delay time.Duration

	// VideoTimeout bounds the detail and chat fetches of a single video; zero
	// means unbounded. A timed-out video counts as failed without aborting the
	// run.
	VideoTimeout time.Duration

	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration)
}

func (c *Controller) delay() time.Duration {
	if c.Delay > 0 {
		return c.Delay
	}
	return DefaultDelay
}

func (c *Controller) pause(ctx context.Context, d time.Duration) {
	if c.sleep != nil {
		c.sleep(ctx, d)
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// Run synchronizes one channel. It discovers candidates, applies the filters,
// and drives every remaining candidate through the state machine. The report
// always satisfies Successful+Failed+Skipped == processed-before-halt. The
// only hard error is discovery exhaustion (ErrNoVideos) or context
// cancellation; per-video failures are absorbed into the report.
func (c *Controller) Run(ctx context.Context, channelRef string, opts Options) (*model.SyncReport, error) {
	logger := slog.Default().With(slog.String("component", "sync"), slog.String("channel", channelRef))
	report := &model.SyncReport{Channel: channelRef, StartedAt: time.Now().UTC()}
	telemetry.IncSyncRuns()
	defer func() {
		report.FinishedAt = time.Now().UTC()
		telemetry.ObserveRunDuration(report.FinishedAt.Sub(report.StartedAt))
	}()

	discovery := &Discovery{Extractor: c.Channel}
	candidates := discovery.Discover(ctx, channelRef)
	report.Candidates = len(candidates)
	telemetry.AddDiscoveredCandidates(len(candidates))
	if len(candidates) == 0 {
		return report, ErrNoVideos
	}

	videos := ByDate(ctx, c.Channel, candidates, opts.StartDate, opts.EndDate)
	videos = ByIndex(videos, opts.StartIndex, opts.EndIndex)
	videos = ByMax(videos, opts.MaxVideos)
	report.Filtered = len(videos)
	if len(videos) == 0 {
		logger.Info("no videos to process after filtering")
		return report, nil
	}
	logger.Info("processing videos", slog.Int("count", len(videos)))

	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		var outcome Outcome
		var halt bool
		telemetry.TimeFunc(telemetry.VideoDuration, func() {
			outcome, halt = c.processVideo(ctx, video, opts)
		})
		telemetry.ObserveVideoOutcome(outcome.String())
		switch outcome {
		case OutcomePersisted:
			report.Successful++
		case OutcomeSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		if halt {
			logger.Info("already-synced video found, stopping run", slog.String("video_id", video.VideoID))
			report.Halted = true
			break
		}
		if outcome != OutcomeSkipped {
			c.pause(ctx, c.delay())
		}
	}

	logger.Info("sync finished",
		slog.Int("successful", report.Successful),
		slog.Int("failed", report.Failed),
		slog.Int("skipped", report.Skipped),
		slog.Int("candidates", report.Candidates))
	return report, nil
}

// processVideo runs the state machine for a single candidate. halt is true
// only when stop-on-existing hit an already-synced video.
func (c *Controller) processVideo(ctx context.Context, video model.VideoCandidate, opts Options) (outcome Outcome, halt bool) {
	logger := slog.Default().With(slog.String("component", "sync"), slog.String("video_id", video.VideoID))
	ctx, span := telemetry.StartSpan(ctx, "sync", "process-video")
	defer span.End()
	if c.VideoTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.VideoTimeout)
		defer cancel()
	}

	// PENDING: the incremental policy. The store's "any message with this
	// video_id" predicate is the sole existence signal.
	if opts.SkipExisting || opts.StopOnExisting {
		exists, err := c.Store.ExistsForVideo(ctx, video.VideoID)
		if err != nil {
			logger.Warn("existence check failed, treating as new", slog.Any("err", err))
		} else if exists {
			if opts.StopOnExisting {
				return OutcomeSkipped, true
			}
			logger.Info("skipping already-synced video")
			return OutcomeSkipped, false
		}
	}

	detail, err := c.Channel.VideoDetail(ctx, video.VideoID)
	if err != nil || detail == nil {
		logger.Warn("detail fetch failed", slog.String("stage", "detail"), slog.Any("err", err))
		telemetry.RecordError(span, err)
		return OutcomeDetailFailed, false
	}
	logger.Info("processing video", slog.String("title", truncate(detail.Title, 50)))

	messages, err := c.fetchChat(ctx, video.VideoID, logger)
	if err != nil || len(messages) == 0 {
		logger.Warn("no chat transcript", slog.String("stage", "chat"), slog.Any("err", err))
		telemetry.RecordError(span, err)
		return OutcomeChatEmpty, false
	}
	telemetry.AddChatMessages(len(messages))

	// JSON export first; a later DB failure must not roll it back.
	path, err := c.Exporter.Write(video.VideoID, detail, messages)
	if err != nil {
		logger.Error("json export failed", slog.String("stage", "export"), slog.Any("err", err))
	} else {
		logger.Info("exported chat", slog.String("path", path), slog.Int("messages", len(messages)))
	}

	if opts.SaveToDB && c.Store != nil {
		if err := c.Store.UpsertVideo(ctx, detail); err != nil {
			logger.Error("video upsert failed", slog.String("stage", "db"), slog.Any("err", err))
		}
		inserted, skipped, err := c.Store.InsertMessages(ctx, messages)
		if err != nil {
			logger.Error("message insert failed", slog.String("stage", "db"), slog.Any("err", err))
		} else {
			logger.Info("saved messages", slog.Int("inserted", inserted), slog.Int("duplicates_skipped", skipped))
		}
	}
	telemetry.SetSpanSuccess(span)
	return OutcomePersisted, false
}

// fetchChat consumes the replay stream, converting each raw event into a
// ChatMessage. Per-event conversion failures are logged and dropped without
// failing the video; a stream-level failure abandons the video.
func (c *Controller) fetchChat(ctx context.Context, videoID string, logger *slog.Logger) ([]model.ChatMessage, error) {
	var messages []model.ChatMessage
	ordinal := 0
	err := c.Chat.StreamChat(ctx, videoID, func(ev youtubeapi.ChatEvent) error {
		msg, convErr := convertEvent(videoID, ordinal, ev)
		ordinal++
		if convErr != nil {
			logger.Debug("dropping malformed chat event", slog.Int("ordinal", ordinal-1), slog.Any("err", convErr))
			return nil
		}
		messages = append(messages, msg)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// convertEvent normalizes one raw chat event. The message ID falls back to
// "{video_id}_{ordinal}" when the source provides none.
func convertEvent(videoID string, ordinal int, ev youtubeapi.ChatEvent) (model.ChatMessage, error) {
	msg := model.ChatMessage{
		VideoID:       videoID,
		MessageID:     ev.ID,
		AuthorName:    ev.AuthorName,
		AuthorID:      ev.AuthorID,
		Message:       ev.Message,
		TimestampText: ev.TimestampText,
		MessageType:   ev.MessageType,
		Badges:        ev.Badges,
		Emotes:        ev.Emotes,
	}
	if msg.MessageID == "" {
		msg.MessageID = videoID + "_" + strconv.Itoa(ordinal)
	}
	// Some event shapes carry :name: placeholders without the structured
	// emote payload; recover the emote identity from the text.
	if len(msg.Emotes) == 0 && emote.HasCustomEmoji(msg.Message) {
		msg.Emotes = emote.ExtractCustomEmotes(msg.Message)
	}
	if msg.MessageType == "" {
		msg.MessageType = model.DefaultMessageType
	}
	if ev.TimestampUsec != "" {
		usec, err := strconv.ParseInt(ev.TimestampUsec, 10, 64)
		if err != nil {
			return model.ChatMessage{}, err
		}
		msg.TimestampUsec = usec
	}
	if ev.AmountText != "" {
		msg.SuperchatAmount, msg.SuperchatCurrency = parseSuperchat(ev.AmountText)
	}
	return msg, nil
}

// parseSuperchat splits a purchase amount like "$5.00" or "¥1,000" into a
// numeric amount and a currency prefix. Unparseable amounts yield (0, text).
func parseSuperchat(text string) (float64, string) {
	text = strings.TrimSpace(text)
	i := 0
	for i < len(text) {
		ch := text[i]
		if (ch >= '0' && ch <= '9') || ch == '.' {
			break
		}
		i++
	}
	currency := strings.TrimSpace(text[:i])
	numPart := strings.ReplaceAll(strings.TrimSpace(text[i:]), ",", "")
	amount, err := strconv.ParseFloat(numPart, 64)
	if err != nil {
		return 0, text
	}
	return amount, currency
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
