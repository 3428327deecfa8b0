package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/himawari-tv/ytchatsync/model"
	"github.com/himawari-tv/ytchatsync/youtubeapi"
)

// fakeExtractor scripts the channel extractor per page URL / query.
type fakeExtractor struct {
	resolved    map[string]string                 // page URL -> channel ID
	listings    map[string]*youtubeapi.Listing    // page URL -> listing
	searches    map[string][]youtubeapi.Candidate // query -> results
	details     map[string]*model.VideoDetail
	detailErr   error
	listCalls   []string
	searchCalls []string
	detailCalls int
}

func (f *fakeExtractor) ResolveChannel(ctx context.Context, pageURL string) (*youtubeapi.ChannelInfo, error) {
	if id, ok := f.resolved[pageURL]; ok {
		return &youtubeapi.ChannelInfo{ChannelID: id}, nil
	}
	return nil, errors.New("not resolvable")
}

func (f *fakeExtractor) ListVideos(ctx context.Context, shape youtubeapi.TabShape, limit int) (*youtubeapi.Listing, error) {
	f.listCalls = append(f.listCalls, shape.PageURL)
	if l, ok := f.listings[shape.PageURL]; ok {
		return l, nil
	}
	return nil, youtubeapi.ErrUnavailable
}

func (f *fakeExtractor) Search(ctx context.Context, query string, limit int) ([]youtubeapi.Candidate, error) {
	f.searchCalls = append(f.searchCalls, query)
	if r, ok := f.searches[query]; ok {
		return r, nil
	}
	return nil, nil
}

func (f *fakeExtractor) VideoDetail(ctx context.Context, videoID string) (*model.VideoDetail, error) {
	f.detailCalls++
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	if d, ok := f.details[videoID]; ok {
		return d, nil
	}
	return nil, youtubeapi.ErrUnavailable
}

const canonicalID = "UCabcdefghijklmnopqrstuv"

func TestDiscoverPrefersCanonicalStreamsTab(t *testing.T) {
	ex := &fakeExtractor{
		listings: map[string]*youtubeapi.Listing{
			"https://www.youtube.com/channel/" + canonicalID + "/streams": {
				FromStream: true,
				Candidates: []youtubeapi.Candidate{
					{VideoID: "v1", Title: "Morning talk"},
					{VideoID: "v2", Title: "Evening talk"},
				},
			},
		},
	}
	d := &Discovery{Extractor: ex}

	got := d.Discover(context.Background(), canonicalID)
	if len(got) != 2 {
		t.Fatalf("Discover returned %d candidates, want 2", len(got))
	}
	// Streams tab is authoritative: entries count even without live markers.
	if !got[0].WasLive {
		t.Error("streams-tab candidate not marked was_live")
	}
	if got[0].URL != "https://www.youtube.com/watch?v=v1" {
		t.Errorf("candidate URL = %q", got[0].URL)
	}
	if len(ex.searchCalls) != 0 {
		t.Errorf("search fallback used despite tab success: %v", ex.searchCalls)
	}
}

func TestDiscoverFallsThroughShapes(t *testing.T) {
	// Canonical shapes fail; only the legacy /user/ videos tab answers.
	ex := &fakeExtractor{
		listings: map[string]*youtubeapi.Listing{
			"https://www.youtube.com/user/oldname/videos": {
				Candidates: []youtubeapi.Candidate{
					{VideoID: "a", Title: "some upload"},
					{VideoID: "b", Title: "Friday LIVE show", WasLive: true},
				},
			},
		},
	}
	d := &Discovery{Extractor: ex}

	got := d.Discover(context.Background(), "oldname")
	if len(got) != 1 || got[0].VideoID != "b" {
		t.Fatalf("Discover = %+v, want only the livestream entry", got)
	}
	// Earlier shapes must have been probed first.
	if len(ex.listCalls) == 0 || !strings.Contains(ex.listCalls[0], "@oldname") {
		t.Errorf("probe order wrong, first call %v", ex.listCalls)
	}
}

func TestDiscoverResolvesHandleToCanonicalID(t *testing.T) {
	ex := &fakeExtractor{
		resolved: map[string]string{"https://www.youtube.com/@someone": canonicalID},
		listings: map[string]*youtubeapi.Listing{
			"https://www.youtube.com/channel/" + canonicalID + "/streams": {
				FromStream: true,
				Candidates: []youtubeapi.Candidate{{VideoID: "x", Title: "resolved stream"}},
			},
		},
	}
	d := &Discovery{Extractor: ex}

	got := d.Discover(context.Background(), "@someone")
	if len(got) != 1 || got[0].VideoID != "x" {
		t.Fatalf("Discover via resolved ID = %+v", got)
	}
}

func TestDiscoverSearchFallback(t *testing.T) {
	ex := &fakeExtractor{
		searches: map[string][]youtubeapi.Candidate{
			"ghostchannel live": {
				{VideoID: "s1", Title: "ghostchannel live ep 4"},
				{VideoID: "s2", Title: "unrelated clip"},
			},
		},
	}
	d := &Discovery{Extractor: ex}

	got := d.Discover(context.Background(), "ghostchannel")
	if len(got) != 1 || got[0].VideoID != "s1" {
		t.Fatalf("search fallback = %+v, want the live-titled entry", got)
	}
	if !got[0].WasLive {
		t.Error("search-derived candidate not marked was_live")
	}
}

func TestDiscoverTotalFailureYieldsEmpty(t *testing.T) {
	d := &Discovery{Extractor: &fakeExtractor{}}
	if got := d.Discover(context.Background(), "nobody"); len(got) != 0 {
		t.Errorf("Discover = %+v, want empty", got)
	}
}

func TestDedupeCandidatesKeepsFirstSeen(t *testing.T) {
	in := []model.VideoCandidate{
		{VideoID: "a", Title: "first"},
		{VideoID: "b"},
		{VideoID: "a", Title: "second"},
	}
	out := dedupeCandidates(in)
	if len(out) != 2 {
		t.Fatalf("dedupe len = %d, want 2", len(out))
	}
	if out[0].Title != "first" {
		t.Errorf("dedupe kept %q, want first occurrence", out[0].Title)
	}
}

func TestTitleLooksLive(t *testing.T) {
	cases := map[string]bool{
		"Friday LIVE show":   true,
		"歌枠ライブ":              true,
		"실시간 방송":             true,
		"直播中":                true,
		"regular upload":     false,
		"highlights part 2":  false,
		"Streaming tonight!": true,
	}
	for title, want := range cases {
		if got := titleLooksLive(title); got != want {
			t.Errorf("titleLooksLive(%q) = %v, want %v", title, got, want)
		}
	}
}
