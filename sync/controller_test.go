package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/himawari-tv/ytchatsync/model"
	"github.com/himawari-tv/ytchatsync/youtubeapi"
)

type fakeChat struct {
	events map[string][]youtubeapi.ChatEvent
	err    error
}

func (f *fakeChat) StreamChat(ctx context.Context, videoID string, emit func(youtubeapi.ChatEvent) error) error {
	if f.err != nil {
		return f.err
	}
	for _, ev := range f.events[videoID] {
		if err := emit(ev); err != nil {
			return err
		}
	}
	return nil
}

type fakeStore struct {
	existing map[string]bool
	upserts  []string
	inserted []model.ChatMessage
	checks   []string
}

func (f *fakeStore) ExistsForVideo(ctx context.Context, videoID string) (bool, error) {
	f.checks = append(f.checks, videoID)
	return f.existing[videoID], nil
}

func (f *fakeStore) UpsertVideo(ctx context.Context, d *model.VideoDetail) error {
	f.upserts = append(f.upserts, d.VideoID)
	return nil
}

func (f *fakeStore) InsertMessages(ctx context.Context, msgs []model.ChatMessage) (int, int, error) {
	seen := make(map[string]bool, len(f.inserted))
	for _, m := range f.inserted {
		seen[m.MessageID] = true
	}
	inserted, skipped := 0, 0
	for _, m := range msgs {
		if seen[m.MessageID] {
			skipped++
			continue
		}
		f.inserted = append(f.inserted, m)
		seen[m.MessageID] = true
		inserted++
	}
	return inserted, skipped, nil
}

type fakeExporter struct {
	writes map[string]int
	err    error
}

func (f *fakeExporter) Write(videoID string, detail *model.VideoDetail, msgs []model.ChatMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.writes == nil {
		f.writes = make(map[string]int)
	}
	f.writes[videoID] = len(msgs)
	return "/exports/" + videoID + ".json", nil
}

// newTestController wires a controller over two discoverable livestreams.
func newTestController(ids ...string) (*Controller, *fakeExtractor, *fakeChat, *fakeStore, *fakeExporter) {
	var cands []youtubeapi.Candidate
	details := make(map[string]*model.VideoDetail)
	events := make(map[string][]youtubeapi.ChatEvent)
	for _, id := range ids {
		cands = append(cands, youtubeapi.Candidate{VideoID: id, Title: "stream " + id})
		details[id] = &model.VideoDetail{VideoID: id, Title: "stream " + id, UploadDate: "20240101", WasLive: true}
		events[id] = []youtubeapi.ChatEvent{
			{ID: id + "-m0", AuthorName: "alice", Message: "hi", TimestampUsec: "1700000000000000"},
			{ID: id + "-m1", AuthorName: "bob", Message: "hello"},
		}
	}
	ex := &fakeExtractor{
		listings: map[string]*youtubeapi.Listing{
			"https://www.youtube.com/channel/" + canonicalID + "/streams": {FromStream: true, Candidates: cands},
		},
		details: details,
	}
	chat := &fakeChat{events: events}
	store := &fakeStore{existing: map[string]bool{}}
	exp := &fakeExporter{}
	ctrl := &Controller{
		Channel:  ex,
		Chat:     chat,
		Store:    store,
		Exporter: exp,
		sleep:    func(context.Context, time.Duration) {},
	}
	return ctrl, ex, chat, store, exp
}

func TestRunArchivesAllVideos(t *testing.T) {
	ctrl, _, _, store, exp := newTestController("v1", "v2")

	report, err := ctrl.Run(context.Background(), canonicalID, Options{SaveToDB: true, SkipExisting: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Successful != 2 || report.Failed != 0 || report.Skipped != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Processed() != 2 {
		t.Errorf("Processed() = %d, want 2", report.Processed())
	}
	if exp.writes["v1"] != 2 || exp.writes["v2"] != 2 {
		t.Errorf("export writes = %v", exp.writes)
	}
	if len(store.upserts) != 2 || len(store.inserted) != 4 {
		t.Errorf("store upserts=%v inserted=%d", store.upserts, len(store.inserted))
	}
}

// hangingChat blocks until the per-video context expires.
type hangingChat struct{}

func (hangingChat) StreamChat(ctx context.Context, videoID string, emit func(youtubeapi.ChatEvent) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestRunVideoTimeoutAbandonsHungFetch(t *testing.T) {
	ctrl, _, _, _, exp := newTestController("v1", "v2")
	ctrl.Chat = hangingChat{}
	ctrl.VideoTimeout = 10 * time.Millisecond

	report, err := ctrl.Run(context.Background(), canonicalID, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 2 || report.Successful != 0 {
		t.Errorf("report = %+v, want both videos abandoned on timeout", report)
	}
	if len(exp.writes) != 0 {
		t.Errorf("exports written for hung videos: %v", exp.writes)
	}
}

func TestRunNoVideosIsHardStop(t *testing.T) {
	ctrl, _, _, _, _ := newTestController()
	ctrl.Channel = &fakeExtractor{}

	_, err := ctrl.Run(context.Background(), "emptychannel", Options{})
	if !errors.Is(err, ErrNoVideos) {
		t.Errorf("err = %v, want ErrNoVideos", err)
	}
}

func TestRunStopOnExistingHaltsWithOneSkip(t *testing.T) {
	ctrl, _, _, store, exp := newTestController("new1", "old", "new2")
	store.existing["old"] = true

	report, err := ctrl.Run(context.Background(), canonicalID, Options{SkipExisting: true, StopOnExisting: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !report.Halted {
		t.Error("report not marked halted")
	}
	// Exactly one SKIPPED for the halting video, nothing after it processed.
	if report.Successful != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Errorf("report = successful %d, skipped %d, failed %d; want 1,1,0",
			report.Successful, report.Skipped, report.Failed)
	}
	if _, wrote := exp.writes["new2"]; wrote {
		t.Error("video after halt was processed")
	}
}

func TestRunSkipExistingContinues(t *testing.T) {
	ctrl, _, _, store, exp := newTestController("new1", "old", "new2")
	store.existing["old"] = true

	report, err := ctrl.Run(context.Background(), canonicalID, Options{SkipExisting: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Halted {
		t.Error("skip-only run must not halt")
	}
	if report.Successful != 2 || report.Skipped != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, wrote := exp.writes["new2"]; !wrote {
		t.Error("video after skip was not processed")
	}
}

func TestRunDetailFailureCountsFailed(t *testing.T) {
	ctrl, ex, _, _, _ := newTestController("v1", "v2")
	delete(ex.details, "v1")

	report, err := ctrl.Run(context.Background(), canonicalID, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 || report.Successful != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRunEmptyChatCountsFailed(t *testing.T) {
	ctrl, _, chat, _, exp := newTestController("v1")
	chat.events["v1"] = nil

	report, err := ctrl.Run(context.Background(), canonicalID, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 || report.Successful != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(exp.writes) != 0 {
		t.Error("empty transcript must not be exported")
	}
}

func TestRunExportFailureStillSucceeds(t *testing.T) {
	ctrl, _, _, store, exp := newTestController("v1")
	exp.err = errors.New("disk full")

	report, err := ctrl.Run(context.Background(), canonicalID, Options{SaveToDB: true})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The export sink is best effort; the DB write still happens and the
	// video still counts as archived.
	if report.Successful != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(store.inserted) != 2 {
		t.Errorf("db inserts = %d, want 2", len(store.inserted))
	}
}

func TestRunIdempotentReplay(t *testing.T) {
	ctrl, _, _, store, _ := newTestController("v1")

	if _, err := ctrl.Run(context.Background(), canonicalID, Options{SaveToDB: true}); err != nil {
		t.Fatal(err)
	}
	// Replay without existence checks: duplicates are skipped at the store.
	if _, err := ctrl.Run(context.Background(), canonicalID, Options{SaveToDB: true}); err != nil {
		t.Fatal(err)
	}
	if len(store.inserted) != 2 {
		t.Errorf("after replay store holds %d messages, want 2", len(store.inserted))
	}
}

func TestRunDelaySkippedOnlyForSkips(t *testing.T) {
	ctrl, _, _, store, _ := newTestController("old1", "old2", "v1")
	store.existing["old1"] = true
	store.existing["old2"] = true
	var pauses int
	ctrl.sleep = func(context.Context, time.Duration) { pauses++ }

	if _, err := ctrl.Run(context.Background(), canonicalID, Options{SkipExisting: true}); err != nil {
		t.Fatal(err)
	}
	if pauses != 1 {
		t.Errorf("pauses = %d, want 1 (only after the processed video)", pauses)
	}
}

func TestConvertEventFallbacks(t *testing.T) {
	msg, err := convertEvent("vidX", 7, youtubeapi.ChatEvent{Message: "no id here"})
	if err != nil {
		t.Fatalf("convertEvent: %v", err)
	}
	if msg.MessageID != "vidX_7" {
		t.Errorf("fallback id = %q, want vidX_7", msg.MessageID)
	}
	if msg.MessageType != model.DefaultMessageType {
		t.Errorf("fallback type = %q", msg.MessageType)
	}
}

func TestConvertEventRecoversPlaceholderEmotes(t *testing.T) {
	msg, err := convertEvent("vidX", 0, youtubeapi.ChatEvent{ID: "m", Message: "hi :wave_cat:"})
	if err != nil {
		t.Fatalf("convertEvent: %v", err)
	}
	if len(msg.Emotes) != 1 || msg.Emotes[0].Name != "wave_cat" || !msg.Emotes[0].IsCustom {
		t.Errorf("emotes = %+v, want wave_cat recovered from text", msg.Emotes)
	}

	// A structured payload wins over text recovery.
	msg, err = convertEvent("vidX", 1, youtubeapi.ChatEvent{
		ID: "m2", Message: "hi :wave_cat:",
		Emotes: []model.Emote{{Name: "wave_cat", IsCustom: true, URL: "wave.png"}},
	})
	if err != nil {
		t.Fatalf("convertEvent: %v", err)
	}
	if len(msg.Emotes) != 1 || msg.Emotes[0].URL != "wave.png" {
		t.Errorf("emotes = %+v, want structured payload kept", msg.Emotes)
	}
}

func TestConvertEventBadTimestampRejected(t *testing.T) {
	_, err := convertEvent("vidX", 0, youtubeapi.ChatEvent{ID: "m", TimestampUsec: "garbage"})
	if err == nil {
		t.Error("expected error for unparseable timestamp")
	}
}

func TestConvertEventSuperchat(t *testing.T) {
	msg, err := convertEvent("vidX", 0, youtubeapi.ChatEvent{
		ID: "m", MessageType: "paid_message", AmountText: "$5.00",
	})
	if err != nil {
		t.Fatalf("convertEvent: %v", err)
	}
	if msg.SuperchatAmount != 5.0 || msg.SuperchatCurrency != "$" {
		t.Errorf("superchat = %v %q", msg.SuperchatAmount, msg.SuperchatCurrency)
	}
}

func TestParseSuperchat(t *testing.T) {
	cases := []struct {
		in       string
		amount   float64
		currency string
	}{
		{"$5.00", 5.0, "$"},
		{"¥1,000", 1000, "¥"},
		{"CA$2.50", 2.5, "CA$"},
		{"€10", 10, "€"},
		{"free", 0, "free"},
		{"", 0, ""},
	}
	for _, tc := range cases {
		amount, currency := parseSuperchat(tc.in)
		if amount != tc.amount || currency != tc.currency {
			t.Errorf("parseSuperchat(%q) = (%v, %q), want (%v, %q)",
				tc.in, amount, currency, tc.amount, tc.currency)
		}
	}
}
