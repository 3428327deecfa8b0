// Package sync implements the incremental channel synchronization engine:
// multi-strategy video discovery, filter composition, the skip-vs-stop
// incremental policy, chat normalization, and dual-sink persistence.
package sync

import (
	"context"
	"errors"

	"github.com/himawari-tv/ytchatsync/model"
	"github.com/himawari-tv/ytchatsync/youtubeapi"
)

// ErrNoVideos is returned when neither a channel tab nor the search fallback
// produced any candidate. It is the only discovery failure surfaced to the
// caller; individual probe failures degrade silently.
var ErrNoVideos = errors.New("sync: no videos found for channel")

// ChannelExtractor lists and describes a channel's videos. Implemented by
// *youtubeapi.Client; faked in tests.
type ChannelExtractor interface {
	ResolveChannel(ctx context.Context, pageURL string) (*youtubeapi.ChannelInfo, error)
	ListVideos(ctx context.Context, shape youtubeapi.TabShape, limit int) (*youtubeapi.Listing, error)
	Search(ctx context.Context, query string, limit int) ([]youtubeapi.Candidate, error)
	VideoDetail(ctx context.Context, videoID string) (*model.VideoDetail, error)
}

// ChatExtractor streams the finite chat replay of one video. The sequence is
// consumed to completion or abandoned on error; it cannot be restarted
// mid-stream.
type ChatExtractor interface {
	StreamChat(ctx context.Context, videoID string, emit func(youtubeapi.ChatEvent) error) error
}

// Store is the relational sink. A message whose MessageID already exists is
// skipped, never an error, and never aborts the remaining rows of the batch.
type Store interface {
	ExistsForVideo(ctx context.Context, videoID string) (bool, error)
	UpsertVideo(ctx context.Context, detail *model.VideoDetail) error
	InsertMessages(ctx context.Context, msgs []model.ChatMessage) (inserted, skipped int, err error)
}

// Exporter is the append-only JSON export sink. Write is idempotent under
// retry: the same video and upload date always map to the same file.
type Exporter interface {
	Write(videoID string, detail *model.VideoDetail, msgs []model.ChatMessage) (string, error)
}
