package sync

import (
	"context"
	"log/slog"
	"strings"

	"github.com/himawari-tv/ytchatsync/model"
	"github.com/himawari-tv/ytchatsync/youtubeapi"
)

// liveKeywords marks a title as livestream-ish. The upstream audience is
// multilingual, so the heuristics cover the common language variants.
var liveKeywords = []string{"live", "stream", "直播", "실시간", "ライブ"}

// defaultPageSize bounds how many entries a single tab probe may return.
const defaultPageSize = 200

// Discovery finds livestream candidates for a channel reference by probing an
// ordered list of channel-page shapes and falling back to keyword search.
// Every probe failure degrades silently; total failure yields an empty list.
type Discovery struct {
	Extractor ChannelExtractor
	PageSize  int
}

// strategy is one way to come up with candidates. Strategies are tried in
// order until one yields a non-empty, heuristically valid result.
type strategy interface {
	name() string
	attempt(ctx context.Context) ([]model.VideoCandidate, error)
}

// Discover returns deduplicated livestream candidates in first-seen order.
// An empty result is a hard stop for the caller, not an error.
func (d *Discovery) Discover(ctx context.Context, channelRef string) []model.VideoCandidate {
	logger := slog.Default().With(slog.String("component", "discovery"), slog.String("channel", channelRef))

	var found []model.VideoCandidate
	for _, s := range d.strategies(ctx, channelRef) {
		cands, err := s.attempt(ctx)
		if err != nil {
			logger.Debug("strategy failed", slog.String("strategy", s.name()), slog.Any("err", err))
			continue
		}
		if len(cands) == 0 {
			logger.Debug("strategy yielded nothing", slog.String("strategy", s.name()))
			continue
		}
		logger.Info("strategy succeeded", slog.String("strategy", s.name()), slog.Int("candidates", len(cands)))
		found = cands
		break
	}
	deduped := dedupeCandidates(found)
	logger.Info("discovery finished", slog.Int("candidates", len(deduped)))
	return deduped
}

// strategies builds the ordered probe list: canonical-ID tab shapes first when
// the reference looks like (or resolves to) a platform-native channel ID, then
// handle/custom/legacy-user shapes, then keyword search.
func (d *Discovery) strategies(ctx context.Context, channelRef string) []strategy {
	ref := strings.TrimPrefix(strings.TrimSpace(channelRef), "@")
	pageSize := d.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	var shapes []youtubeapi.TabShape
	addCanonical := func(id string) {
		shapes = append(shapes,
			youtubeapi.TabShape{BrowseID: id, PageURL: "https://www.youtube.com/channel/" + id + "/streams"},
			youtubeapi.TabShape{BrowseID: id, PageURL: "https://www.youtube.com/channel/" + id + "/videos"},
		)
	}

	if isChannelID(ref) {
		addCanonical(ref)
	} else if info, err := d.Extractor.ResolveChannel(ctx, "https://www.youtube.com/@"+ref); err == nil && info.ChannelID != "" {
		// The upstream page taxonomy is not uniformly addressable; resolving
		// the real channel ID up front gives the most reliable shape.
		addCanonical(info.ChannelID)
	}
	for _, form := range []string{"@%s", "c/%s", "user/%s"} {
		base := "https://www.youtube.com/" + strings.Replace(form, "%s", ref, 1)
		shapes = append(shapes,
			youtubeapi.TabShape{PageURL: base + "/streams"},
			youtubeapi.TabShape{PageURL: base + "/videos"},
		)
	}

	out := make([]strategy, 0, len(shapes)+len(liveKeywords))
	for _, shape := range shapes {
		out = append(out, &tabStrategy{ex: d.Extractor, shape: shape, limit: pageSize})
	}
	for _, kw := range liveKeywords {
		out = append(out, &searchStrategy{ex: d.Extractor, query: ref + " " + kw, limit: 30})
	}
	return out
}

func isChannelID(ref string) bool {
	return len(ref) == 24 && strings.HasPrefix(ref, "UC")
}

// tabStrategy probes one channel tab shape.
type tabStrategy struct {
	ex    ChannelExtractor
	shape youtubeapi.TabShape
	limit int
}

func (s *tabStrategy) name() string { return "tab:" + s.shape.PageURL }

func (s *tabStrategy) attempt(ctx context.Context) ([]model.VideoCandidate, error) {
	listing, err := s.ex.ListVideos(ctx, s.shape, s.limit)
	if err != nil {
		return nil, err
	}
	var out []model.VideoCandidate
	for _, c := range listing.Candidates {
		if c.VideoID == "" {
			continue
		}
		// A /streams tab is authoritative; a /videos tab needs per-entry
		// livestream evidence.
		if !listing.FromStream && !c.WasLive && !c.IsLive && !titleLooksLive(c.Title) {
			continue
		}
		out = append(out, candidateToModel(c, listing.FromStream))
	}
	return out, nil
}

// searchStrategy falls back to keyword search, filtering by title heuristics.
type searchStrategy struct {
	ex    ChannelExtractor
	query string
	limit int
}

func (s *searchStrategy) name() string { return "search:" + s.query }

func (s *searchStrategy) attempt(ctx context.Context) ([]model.VideoCandidate, error) {
	entries, err := s.ex.Search(ctx, s.query, s.limit)
	if err != nil {
		return nil, err
	}
	var out []model.VideoCandidate
	for _, c := range entries {
		if c.VideoID == "" || !titleLooksLive(c.Title) {
			continue
		}
		// Livestream-ness is inferred from the search heuristic.
		mc := candidateToModel(c, false)
		mc.WasLive = true
		out = append(out, mc)
	}
	return out, nil
}

func titleLooksLive(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range liveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func candidateToModel(c youtubeapi.Candidate, fromStream bool) model.VideoCandidate {
	return model.VideoCandidate{
		VideoID:   c.VideoID,
		Title:     c.Title,
		URL:       "https://www.youtube.com/watch?v=" + c.VideoID,
		Duration:  c.Duration,
		WasLive:   c.WasLive || fromStream,
		IsLive:    c.IsLive,
		ChannelID: c.ChannelID,
	}
}

// dedupeCandidates removes duplicate video IDs, preserving first-seen order.
func dedupeCandidates(in []model.VideoCandidate) []model.VideoCandidate {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.VideoCandidate, 0, len(in))
	for _, c := range in {
		if _, ok := seen[c.VideoID]; ok {
			continue
		}
		seen[c.VideoID] = struct{}{}
		out = append(out, c)
	}
	return out
}
