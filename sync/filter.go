package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/himawari-tv/ytchatsync/model"
)

// Filters narrow an ordered candidate list. They are applied in a fixed
// order (date, index, max-count), never reorder, and only ever remove.

const (
	filterDateLayout  = "2006-01-02" // CLI-facing bound format
	compactDateLayout = "20060102"   // upstream upload_date format
)

// ByDate keeps candidates whose upload date falls inside the inclusive
// [startDate, endDate] range (either bound may be empty). A candidate without
// a date gets one detail fetch solely to evaluate the filter; if the date
// still cannot be determined or fails to parse the candidate is KEPT. The
// fail-open policy is deliberate: ambiguity must never drop a video.
func ByDate(ctx context.Context, ex ChannelExtractor, videos []model.VideoCandidate, startDate, endDate string) []model.VideoCandidate {
	if startDate == "" && endDate == "" {
		return videos
	}
	logger := slog.Default().With(slog.String("component", "filter"))

	var start, end time.Time
	var haveStart, haveEnd bool
	if startDate != "" {
		if t, err := time.Parse(filterDateLayout, startDate); err == nil {
			start, haveStart = t, true
		} else {
			logger.Warn("ignoring malformed start date", slog.String("start_date", startDate))
		}
	}
	if endDate != "" {
		if t, err := time.Parse(filterDateLayout, endDate); err == nil {
			end, haveEnd = t, true
		} else {
			logger.Warn("ignoring malformed end date", slog.String("end_date", endDate))
		}
	}
	if !haveStart && !haveEnd {
		return videos
	}

	kept := make([]model.VideoCandidate, 0, len(videos))
	for _, v := range videos {
		dateStr := v.UploadDate
		if dateStr == "" && ex != nil {
			if detail, err := ex.VideoDetail(ctx, v.VideoID); err == nil {
				dateStr = detail.UploadDate
			}
		}
		if dateStr == "" {
			kept = append(kept, v) // no determinable date: keep
			continue
		}
		d, err := time.Parse(compactDateLayout, dateStr)
		if err != nil {
			logger.Warn("unparseable upload date, keeping candidate",
				slog.String("video_id", v.VideoID), slog.String("upload_date", dateStr))
			kept = append(kept, v)
			continue
		}
		if haveStart && d.Before(start) {
			continue
		}
		if haveEnd && d.After(end) {
			continue
		}
		kept = append(kept, v)
	}
	logger.Info("date filter applied",
		slog.Int("removed", len(videos)-len(kept)), slog.Int("remaining", len(kept)))
	return kept
}

// ByIndex keeps the half-open slice [start, end) of the list. A negative end
// means "to the end", matching standard slicing.
func ByIndex(videos []model.VideoCandidate, start, end int) []model.VideoCandidate {
	if start < 0 {
		start = 0
	}
	if start > len(videos) {
		start = len(videos)
	}
	if end < 0 || end > len(videos) {
		end = len(videos)
	}
	if end < start {
		end = start
	}
	out := videos[start:end]
	slog.Default().With(slog.String("component", "filter")).Info("index filter applied",
		slog.Int("removed", len(videos)-len(out)), slog.Int("remaining", len(out)))
	return out
}

// ByMax truncates the list to at most max entries. A non-positive max is a
// no-op.
func ByMax(videos []model.VideoCandidate, max int) []model.VideoCandidate {
	if max <= 0 || len(videos) <= max {
		return videos
	}
	out := videos[:max]
	slog.Default().With(slog.String("component", "filter")).Info("max-count filter applied",
		slog.Int("removed", len(videos)-len(out)), slog.Int("remaining", len(out)))
	return out
}
