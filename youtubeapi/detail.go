package youtubeapi

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/himawari-tv/ytchatsync/model"
)

// playerResponse is the subset of the player endpoint response the detail
// fetch needs.
type playerResponse struct {
	PlayabilityStatus struct {
		Status string `json:"status"`
	} `json:"playabilityStatus"`
	VideoDetails struct {
		VideoID          string   `json:"videoId"`
		Title            string   `json:"title"`
		LengthSeconds    string   `json:"lengthSeconds"`
		ChannelID        string   `json:"channelId"`
		ShortDescription string   `json:"shortDescription"`
		ViewCount        string   `json:"viewCount"`
		Author           string   `json:"author"`
		IsLiveContent    bool     `json:"isLiveContent"`
		IsLive           bool     `json:"isLive"`
		Keywords         []string `json:"keywords"`
		Thumbnail        struct {
			Thumbnails []struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"thumbnails"`
		} `json:"thumbnail"`
	} `json:"videoDetails"`
	Microformat struct {
		PlayerMicroformatRenderer struct {
			UploadDate           string `json:"uploadDate"` // ISO-8601 or YYYY-MM-DD
			PublishDate          string `json:"publishDate"`
			Category             string `json:"category"`
			OwnerChannelName     string `json:"ownerChannelName"`
			OwnerProfileURL      string `json:"ownerProfileUrl"`
			LiveBroadcastDetails *struct {
				IsLiveNow      bool   `json:"isLiveNow"`
				StartTimestamp string `json:"startTimestamp"`
				EndTimestamp   string `json:"endTimestamp"`
			} `json:"liveBroadcastDetails"`
		} `json:"playerMicroformatRenderer"`
	} `json:"microformat"`
}

// VideoDetail fetches full metadata for one video. A video the upstream cannot
// serve (private, deleted, region locked) returns ErrUnavailable.
func (c *Client) VideoDetail(ctx context.Context, videoID string) (*model.VideoDetail, error) {
	payload := struct {
		Context clientContext `json:"context"`
		VideoID string        `json:"videoId"`
	}{newClientContext(), videoID}
	var resp playerResponse
	if err := c.post(ctx, "player", payload, &resp); err != nil {
		return nil, err
	}
	if s := resp.PlayabilityStatus.Status; s != "" && s != "OK" {
		return nil, ErrUnavailable
	}
	if resp.VideoDetails.VideoID == "" {
		return nil, ErrUnavailable
	}

	vd := resp.VideoDetails
	mf := resp.Microformat.PlayerMicroformatRenderer

	detail := &model.VideoDetail{
		VideoID:     videoID,
		Title:       vd.Title,
		Duration:    parseInt(vd.LengthSeconds),
		ViewCount:   parseInt(vd.ViewCount),
		ChannelID:   vd.ChannelID,
		ChannelName: vd.Author,
		Description: vd.ShortDescription,
		IsLive:      vd.IsLive,
		Uploader:    mf.OwnerChannelName,
		UploaderID:  vd.ChannelID,
		Tags:        vd.Keywords,
	}
	if mf.Category != "" {
		detail.Categories = []string{mf.Category}
	}
	if detail.ChannelName == "" {
		detail.ChannelName = mf.OwnerChannelName
	}
	detail.UploadDate = compactDate(mf.UploadDate)
	if detail.UploadDate == "" {
		detail.UploadDate = compactDate(mf.PublishDate)
	}
	// Largest thumbnail wins.
	best := 0
	for _, t := range vd.Thumbnail.Thumbnails {
		if area := t.Width * t.Height; area >= best {
			best = area
			detail.Thumbnail = t.URL
		}
	}

	if lb := mf.LiveBroadcastDetails; lb != nil {
		detail.LiveStartTimestamp = parseISOTimestamp(lb.StartTimestamp)
		detail.LiveEndTimestamp = parseISOTimestamp(lb.EndTimestamp)
		detail.ReleaseTimestamp = detail.LiveStartTimestamp
		switch {
		case lb.IsLiveNow:
			detail.IsLive = true
			detail.LiveStatus = model.LiveStatusIsLive
		case vd.IsLiveContent:
			detail.WasLive = true
			detail.LiveStatus = model.LiveStatusWasLive
		}
	}
	if detail.LiveStatus == "" {
		if vd.IsLiveContent {
			detail.WasLive = true
			detail.LiveStatus = model.LiveStatusWasLive
		} else {
			detail.LiveStatus = model.LiveStatusNotLive
		}
	}
	return detail, nil
}

// compactDate normalizes "2024-01-01" or "2024-01-01T00:00:00-07:00" into the
// storage form "20240101". Unrecognized input yields "".
func compactDate(s string) string {
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, 'T'); i > 0 {
		s = s[:i]
	}
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 8 {
		return ""
	}
	if _, err := strconv.Atoi(s); err != nil {
		return ""
	}
	return s
}

func parseISOTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0
	}
	return t.Unix()
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
