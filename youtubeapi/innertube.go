// Package youtubeapi contains a minimal client for YouTube's internal
// Innertube API, covering the four operations the sync engine needs: resolving
// a channel reference, listing a channel tab, keyword search, and fetching a
// video's detail record. Chat replay streaming lives in chat.go.
package youtubeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

const (
	defaultBaseURL       = "https://www.youtube.com"
	defaultClientName    = "WEB"
	defaultClientVersion = "2.20240101.00.00"
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// Tab params for the browse endpoint.
	videosTabParams  = "EgZ2aWRlb3PyBgQKAjoA"
	streamsTabParams = "EgdzdHJlYW1z8gYECgJ6AA=="
)

// ErrUnavailable is returned when the upstream reports a video or channel as
// missing, private, or otherwise not extractable.
var ErrUnavailable = errors.New("youtubeapi: unavailable")

// Client calls the Innertube API. The zero value is usable; BaseURL and
// HTTPClient exist so tests can point it at a mock server.
type Client struct {
	BaseURL      string
	HTTPClient   *http.Client
	CookieHeader string // opaque credential bundle, see cookies.go
	UserAgent    string
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// clientContext identifies the caller to Innertube.
type clientContext struct {
	Client struct {
		ClientName    string `json:"clientName"`
		ClientVersion string `json:"clientVersion"`
		HL            string `json:"hl"`
		GL            string `json:"gl"`
	} `json:"client"`
}

func newClientContext() clientContext {
	var cc clientContext
	cc.Client.ClientName = defaultClientName
	cc.Client.ClientVersion = defaultClientVersion
	cc.Client.HL = "en"
	cc.Client.GL = "US"
	return cc
}

// post sends a JSON request to an Innertube endpoint and decodes the response
// into out.
func (c *Client) post(ctx context.Context, endpoint string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}
	url := c.base() + "/youtubei/v1/" + endpoint + "?prettyPrint=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	ua := c.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)
	req.Header.Set("Origin", c.base())
	if c.CookieHeader != "" {
		req.Header.Set("Cookie", c.CookieHeader)
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode == http.StatusNotFound {
		return ErrUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s status %d", endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// ChannelInfo is the resolved identity of a channel reference.
type ChannelInfo struct {
	ChannelID   string
	ChannelName string
	ChannelURL  string
}

// ResolveChannel resolves a channel page URL (handle, custom, legacy-user, or
// canonical form) to its browse ID via the navigation/resolve_url endpoint.
func (c *Client) ResolveChannel(ctx context.Context, pageURL string) (*ChannelInfo, error) {
	payload := struct {
		Context clientContext `json:"context"`
		URL     string        `json:"url"`
	}{newClientContext(), pageURL}
	var resp struct {
		Endpoint struct {
			BrowseEndpoint struct {
				BrowseID string `json:"browseId"`
			} `json:"browseEndpoint"`
		} `json:"endpoint"`
	}
	if err := c.post(ctx, "navigation/resolve_url", payload, &resp); err != nil {
		return nil, err
	}
	id := resp.Endpoint.BrowseEndpoint.BrowseID
	if !strings.HasPrefix(id, "UC") {
		return nil, ErrUnavailable
	}
	return &ChannelInfo{ChannelID: id, ChannelURL: c.base() + "/channel/" + id}, nil
}

// browse response subset: enough structure to reach video renderers and
// continuation tokens on channel tab pages.
type browseResponse struct {
	Contents *struct {
		TwoColumnBrowseResultsRenderer *struct {
			Tabs []struct {
				TabRenderer *struct {
					Title    string `json:"title"`
					Selected bool   `json:"selected"`
					Content  *struct {
						RichGridRenderer *struct {
							Contents []richGridItem `json:"contents"`
						} `json:"richGridRenderer"`
					} `json:"content"`
				} `json:"tabRenderer"`
			} `json:"tabs"`
		} `json:"twoColumnBrowseResultsRenderer"`
	} `json:"contents"`
	OnResponseReceivedActions []struct {
		AppendContinuationItemsAction *struct {
			ContinuationItems []richGridItem `json:"continuationItems"`
		} `json:"appendContinuationItemsAction"`
	} `json:"onResponseReceivedActions"`
	Metadata *struct {
		ChannelMetadataRenderer *struct {
			Title      string `json:"title"`
			ExternalID string `json:"externalId"`
		} `json:"channelMetadataRenderer"`
	} `json:"metadata"`
}

type richGridItem struct {
	RichItemRenderer *struct {
		Content *struct {
			VideoRenderer *videoRenderer `json:"videoRenderer"`
		} `json:"content"`
	} `json:"richItemRenderer"`
	ContinuationItemRenderer *struct {
		ContinuationEndpoint *struct {
			ContinuationCommand *struct {
				Token string `json:"token"`
			} `json:"continuationCommand"`
		} `json:"continuationEndpoint"`
	} `json:"continuationItemRenderer"`
}

type videoRenderer struct {
	VideoID           string    `json:"videoId"`
	Title             *textRuns `json:"title"`
	PublishedTimeText *struct {
		SimpleText string `json:"simpleText"`
	} `json:"publishedTimeText"`
	LengthText *struct {
		SimpleText string `json:"simpleText"`
	} `json:"lengthText"`
	ThumbnailOverlays []struct {
		ThumbnailOverlayTimeStatusRenderer *struct {
			Style string `json:"style"`
		} `json:"thumbnailOverlayTimeStatusRenderer"`
	} `json:"thumbnailOverlays"`
}

type textRuns struct {
	SimpleText string `json:"simpleText"`
	Runs       []struct {
		Text string `json:"text"`
	} `json:"runs"`
}

func (t *textRuns) text() string {
	if t == nil {
		return ""
	}
	if t.SimpleText != "" {
		return t.SimpleText
	}
	var b strings.Builder
	for _, r := range t.Runs {
		b.WriteString(r.Text)
	}
	return b.String()
}

// TabShape names a concrete channel page shape to probe.
type TabShape struct {
	BrowseID string // canonical UC... id when known; empty means resolve PageURL first
	PageURL  string // full channel page URL, ends in /streams or /videos
}

// Listing is one page-capped flat listing of a channel tab.
type Listing struct {
	Candidates []Candidate
	FromStream bool // whether the listing came from a /streams tab
}

// Candidate is the extractor-level view of a listed video; the sync package
// maps it onto model.VideoCandidate.
type Candidate struct {
	VideoID   string
	Title     string
	IsLive    bool
	WasLive   bool
	ChannelID string
	Duration  int64
}

// ListVideos fetches a flat, non-recursive listing of the given channel tab
// shape, following continuations up to limit entries.
func (c *Client) ListVideos(ctx context.Context, shape TabShape, limit int) (*Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	browseID := shape.BrowseID
	if browseID == "" {
		info, err := c.ResolveChannel(ctx, shape.PageURL)
		if err != nil {
			return nil, err
		}
		browseID = info.ChannelID
	}
	fromStreams := strings.HasSuffix(strings.TrimRight(shape.PageURL, "/"), "/streams")
	params := videosTabParams
	if fromStreams {
		params = streamsTabParams
	}

	listing := &Listing{FromStream: fromStreams}
	continuation := ""
	for len(listing.Candidates) < limit {
		payload := struct {
			Context      clientContext `json:"context"`
			BrowseID     string        `json:"browseId,omitempty"`
			Params       string        `json:"params,omitempty"`
			Continuation string        `json:"continuation,omitempty"`
		}{Context: newClientContext()}
		if continuation != "" {
			payload.Continuation = continuation
		} else {
			payload.BrowseID = browseID
			payload.Params = params
		}
		var resp browseResponse
		if err := c.post(ctx, "browse", payload, &resp); err != nil {
			return nil, err
		}
		items, channelID := collectGridItems(&resp)
		if channelID == "" {
			channelID = browseID
		}
		next := ""
		for _, it := range items {
			if vr := gridVideo(it); vr != nil && vr.VideoID != "" {
				listing.Candidates = append(listing.Candidates, candidateFromRenderer(vr, channelID))
				continue
			}
			if t := gridContinuation(it); t != "" {
				next = t
			}
		}
		if next == "" || len(listing.Candidates) >= limit {
			break
		}
		continuation = next
	}
	if len(listing.Candidates) > limit {
		listing.Candidates = listing.Candidates[:limit]
	}
	return listing, nil
}

func collectGridItems(resp *browseResponse) ([]richGridItem, string) {
	channelID := ""
	if resp.Metadata != nil && resp.Metadata.ChannelMetadataRenderer != nil {
		channelID = resp.Metadata.ChannelMetadataRenderer.ExternalID
	}
	for _, a := range resp.OnResponseReceivedActions {
		if a.AppendContinuationItemsAction != nil {
			return a.AppendContinuationItemsAction.ContinuationItems, channelID
		}
	}
	if resp.Contents == nil || resp.Contents.TwoColumnBrowseResultsRenderer == nil {
		return nil, channelID
	}
	for _, tab := range resp.Contents.TwoColumnBrowseResultsRenderer.Tabs {
		tr := tab.TabRenderer
		if tr == nil || tr.Content == nil || tr.Content.RichGridRenderer == nil {
			continue
		}
		return tr.Content.RichGridRenderer.Contents, channelID
	}
	return nil, channelID
}

func gridVideo(it richGridItem) *videoRenderer {
	if it.RichItemRenderer != nil && it.RichItemRenderer.Content != nil {
		return it.RichItemRenderer.Content.VideoRenderer
	}
	return nil
}

func gridContinuation(it richGridItem) string {
	if it.ContinuationItemRenderer != nil &&
		it.ContinuationItemRenderer.ContinuationEndpoint != nil &&
		it.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand != nil {
		return it.ContinuationItemRenderer.ContinuationEndpoint.ContinuationCommand.Token
	}
	return ""
}

func candidateFromRenderer(vr *videoRenderer, channelID string) Candidate {
	cand := Candidate{
		VideoID:   vr.VideoID,
		Title:     vr.Title.text(),
		ChannelID: channelID,
	}
	if vr.PublishedTimeText != nil && strings.HasPrefix(vr.PublishedTimeText.SimpleText, "Streamed") {
		cand.WasLive = true
	}
	for _, ov := range vr.ThumbnailOverlays {
		if ov.ThumbnailOverlayTimeStatusRenderer != nil &&
			ov.ThumbnailOverlayTimeStatusRenderer.Style == "LIVE" {
			cand.IsLive = true
		}
	}
	if vr.LengthText != nil {
		cand.Duration = parseClockDuration(vr.LengthText.SimpleText)
	}
	return cand
}

// parseClockDuration parses "1:02:03" or "4:05" style lengths into seconds.
func parseClockDuration(s string) int64 {
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	var total int64
	for _, p := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return total
}

// Search performs a keyword search and returns plain video entries.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Candidate, error) {
	if limit <= 0 {
		limit = 30
	}
	payload := struct {
		Context clientContext `json:"context"`
		Query   string        `json:"query"`
	}{newClientContext(), query}
	var resp struct {
		Contents *struct {
			TwoColumnSearchResultsRenderer *struct {
				PrimaryContents *struct {
					SectionListRenderer *struct {
						Contents []struct {
							ItemSectionRenderer *struct {
								Contents []struct {
									VideoRenderer *videoRenderer `json:"videoRenderer"`
								} `json:"contents"`
							} `json:"itemSectionRenderer"`
						} `json:"contents"`
					} `json:"sectionListRenderer"`
				} `json:"primaryContents"`
			} `json:"twoColumnSearchResultsRenderer"`
		} `json:"contents"`
	}
	if err := c.post(ctx, "search", payload, &resp); err != nil {
		return nil, err
	}
	var out []Candidate
	if resp.Contents == nil || resp.Contents.TwoColumnSearchResultsRenderer == nil ||
		resp.Contents.TwoColumnSearchResultsRenderer.PrimaryContents == nil ||
		resp.Contents.TwoColumnSearchResultsRenderer.PrimaryContents.SectionListRenderer == nil {
		return out, nil
	}
	for _, sec := range resp.Contents.TwoColumnSearchResultsRenderer.PrimaryContents.SectionListRenderer.Contents {
		if sec.ItemSectionRenderer == nil {
			continue
		}
		for _, item := range sec.ItemSectionRenderer.Contents {
			if item.VideoRenderer == nil || item.VideoRenderer.VideoID == "" {
				continue
			}
			out = append(out, candidateFromRenderer(item.VideoRenderer, ""))
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}
