// Package model holds the shared data types passed between discovery, the
// sync controller, and the persistence sinks.
package model

import "time"

// Live status values reported by the extraction client.
const (
	LiveStatusIsLive  = "is_live"
	LiveStatusWasLive = "was_live"
	LiveStatusNotLive = "not_live"
)

// DefaultMessageType is assumed when the upstream chat event carries no type.
const DefaultMessageType = "text_message"

// VideoCandidate is a minimally-described video returned by discovery, not yet
// detail-fetched. VideoID is the natural key.
type VideoCandidate struct {
	VideoID   string `json:"video_id"`
	Title     string `json:"title"`
	URL       string `json:"url,omitempty"`
	Duration  int64  `json:"duration,omitempty"` // seconds
	WasLive   bool   `json:"was_live"`
	IsLive    bool   `json:"is_live"`
	ChannelID string `json:"channel_id,omitempty"`
	// UploadDate is only populated when the listing page happened to carry it;
	// the date filter fetches details on demand when it is empty.
	UploadDate string `json:"upload_date,omitempty"` // YYYYMMDD
}

// VideoDetail is the fully-fetched per-video metadata record. Immutable once
// fetched; identified by VideoID.
type VideoDetail struct {
	VideoID     string `json:"video_id"`
	Title       string `json:"title"`
	UploadDate  string `json:"upload_date"` // YYYYMMDD
	Duration    int64  `json:"duration"`    // seconds
	ViewCount   int64  `json:"view_count"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	Description string `json:"description"`
	IsLive      bool   `json:"is_live"`
	WasLive     bool   `json:"was_live"`

	// Epoch seconds; zero means the upstream did not report the value.
	LiveStartTimestamp int64 `json:"live_start_timestamp,omitempty"`
	LiveEndTimestamp   int64 `json:"live_end_timestamp,omitempty"`
	ReleaseTimestamp   int64 `json:"release_timestamp,omitempty"`

	Thumbnail    string   `json:"thumbnail,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	LikeCount    int64    `json:"like_count,omitempty"`
	CommentCount int64    `json:"comment_count,omitempty"`
	LiveStatus   string   `json:"live_status,omitempty"`
	Availability string   `json:"availability,omitempty"`
	Uploader     string   `json:"uploader,omitempty"`
	UploaderID   string   `json:"uploader_id,omitempty"`
}

// Candidate returns the candidate view of a detail record.
func (d *VideoDetail) Candidate() VideoCandidate {
	return VideoCandidate{
		VideoID:    d.VideoID,
		Title:      d.Title,
		Duration:   d.Duration,
		WasLive:    d.WasLive,
		IsLive:     d.IsLive,
		ChannelID:  d.ChannelID,
		UploadDate: d.UploadDate,
	}
}

// Emote is a named, optionally image-backed chat decoration, either a custom
// channel emote or a unicode emoji surfaced through the structured payload.
type Emote struct {
	Name     string `json:"name"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	IsCustom bool   `json:"is_custom_emoji"`
}

// Badge is an author badge attached to a chat message (member, moderator, ...).
type Badge struct {
	Title string `json:"title"`
	Icon  string `json:"icon,omitempty"`
}

// ChatMessage is one normalized chat event. MessageID is globally unique across
// the whole store; the relational sink deduplicates on it. Emotes and Badges
// are held structured in memory and serialized to JSON only at the storage and
// export boundary.
type ChatMessage struct {
	VideoID           string  `json:"video_id"`
	MessageID         string  `json:"message_id"`
	AuthorName        string  `json:"author_name,omitempty"`
	AuthorID          string  `json:"author_id,omitempty"`
	Message           string  `json:"message"`
	TimestampUsec     int64   `json:"timestamp_usec,omitempty"`
	TimestampText     string  `json:"timestamp_text,omitempty"`
	MessageType       string  `json:"message_type"`
	SuperchatAmount   float64 `json:"superchat_amount,omitempty"`
	SuperchatCurrency string  `json:"superchat_currency,omitempty"`
	Badges            []Badge `json:"badges,omitempty"`
	Emotes            []Emote `json:"emotes,omitempty"`
}

// SyncReport accumulates run-level accounting for one channel sync invocation.
// It is ephemeral: created at the start of a run, reported, and discarded.
// Successful+Failed+Skipped always equals the number of candidates processed
// before any stop-on-existing halt.
type SyncReport struct {
	Channel    string
	Candidates int
	Filtered   int
	Successful int
	Failed     int
	Skipped    int
	Halted     bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Processed returns the number of candidates that entered the per-video state
// machine.
func (r *SyncReport) Processed() int { return r.Successful + r.Failed + r.Skipped }
