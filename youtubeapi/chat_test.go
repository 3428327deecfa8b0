package youtubeapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/himawari-tv/ytchatsync/testutil"
)

// pagedHandler serves the given bodies one per request, then empty objects.
func pagedHandler(pages *[]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if len(*pages) == 0 {
			_, _ = w.Write([]byte(`{}`))
			return
		}
		body := (*pages)[0]
		*pages = (*pages)[1:]
		_, _ = w.Write([]byte(body))
	}
}

const watchNextWithChat = `{
	"contents": {"twoColumnWatchNextResults": {"conversationBar": {"liveChatRenderer": {
		"continuations": [{"reloadContinuationData": {"continuation": "chat-tok-1"}}]
	}}}}
}`

const replayPage1 = `{
	"continuationContents": {"liveChatContinuation": {
		"actions": [
			{"replayChatItemAction": {"actions": [{"addChatItemAction": {"item": {
				"liveChatTextMessageRenderer": {
					"id": "msg1",
					"timestampUsec": "1700000000000000",
					"timestampText": {"simpleText": "0:05"},
					"authorName": {"simpleText": "alice"},
					"authorExternalChannelId": "UCauthor1",
					"authorBadges": [{"liveChatAuthorBadgeRenderer": {
						"tooltip": "Member (1 year)",
						"customThumbnail": {"thumbnails": [{"url": "badge.png"}]}
					}}],
					"message": {"runs": [
						{"text": "hello "},
						{"emoji": {"emojiId": "UCx/abc", "shortcuts": [":wave_cat:"], "isCustomEmoji": true,
							"image": {"thumbnails": [{"url": "wave_cat.png"}]}}},
						{"text": " world "},
						{"emoji": {"emojiId": "😊", "isCustomEmoji": false}}
					]}
				}
			}}}]}}
		],
		"continuations": [{"liveChatReplayContinuationData": {"continuation": "chat-tok-2"}}]
	}}
}`

const replayPage2 = `{
	"continuationContents": {"liveChatContinuation": {
		"actions": [
			{"replayChatItemAction": {"actions": [{"addChatItemAction": {"item": {
				"liveChatPaidMessageRenderer": {
					"id": "msg2",
					"timestampUsec": "1700000001000000",
					"authorName": {"simpleText": "bob"},
					"purchaseAmountText": {"simpleText": "$5.00"},
					"message": {"runs": [{"text": "take my money"}]}
				}
			}}}]}}
		],
		"continuations": []
	}}
}`

func TestStreamChatReplay(t *testing.T) {
	m := testutil.NewMockInnertubeServer(t)
	m.RespondRaw("/youtubei/v1/next", watchNextWithChat)
	pages := []string{replayPage1, replayPage2}
	m.Handlers["/youtubei/v1/live_chat/get_live_chat_replay"] = pagedHandler(&pages)

	var events []ChatEvent
	err := testClient(m).StreamChat(context.Background(), "vid1", func(ev ChatEvent) error {
		events = append(events, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChat: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2 across pages", len(events))
	}

	first := events[0]
	if first.ID != "msg1" || first.AuthorName != "alice" || first.AuthorID != "UCauthor1" {
		t.Errorf("event[0] = %+v", first)
	}
	// Custom emote runs become :name: placeholders; unicode emoji keep their
	// character.
	if first.Message != "hello :wave_cat: world 😊" {
		t.Errorf("message = %q", first.Message)
	}
	if len(first.Emotes) != 1 || first.Emotes[0].Name != "wave_cat" || !first.Emotes[0].IsCustom {
		t.Errorf("emotes = %+v", first.Emotes)
	}
	if first.Emotes[0].URL != "wave_cat.png" {
		t.Errorf("emote url = %q", first.Emotes[0].URL)
	}
	if len(first.Badges) != 1 || first.Badges[0].Title != "Member (1 year)" || first.Badges[0].Icon != "badge.png" {
		t.Errorf("badges = %+v", first.Badges)
	}

	second := events[1]
	if second.MessageType != "paid_message" || second.AmountText != "$5.00" {
		t.Errorf("event[1] = %+v", second)
	}
	if second.Message != "take my money" {
		t.Errorf("paid message text = %q", second.Message)
	}
}

func TestStreamChatNoReplayAvailable(t *testing.T) {
	m := testutil.NewMockInnertubeServer(t)
	// Watch page without a conversation bar: chat was never enabled or the
	// replay is gone.
	m.RespondRaw("/youtubei/v1/next", `{"contents": {}}`)

	err := testClient(m).StreamChat(context.Background(), "vid1", func(ChatEvent) error { return nil })
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestStreamChatEmitErrorStops(t *testing.T) {
	m := testutil.NewMockInnertubeServer(t)
	m.RespondRaw("/youtubei/v1/next", watchNextWithChat)
	pages := []string{replayPage1, replayPage2}
	m.Handlers["/youtubei/v1/live_chat/get_live_chat_replay"] = pagedHandler(&pages)

	boom := errors.New("boom")
	err := testClient(m).StreamChat(context.Background(), "vid1", func(ChatEvent) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want emit error surfaced", err)
	}
	if len(pages) != 1 {
		t.Errorf("stream continued past emit failure, %d pages left", len(pages))
	}
}
