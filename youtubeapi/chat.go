package youtubeapi

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/himawari-tv/ytchatsync/model"
)

// ChatEvent is one raw chat replay event. Fields that need parsing (usec
// timestamps, paid amounts) are carried as strings; normalization into a
// model.ChatMessage happens in the sync controller so that a malformed event
// can be dropped without failing the video.
type ChatEvent struct {
	ID            string
	AuthorName    string
	AuthorID      string
	Message       string
	TimestampUsec string
	TimestampText string
	MessageType   string
	AmountText    string // e.g. "$5.00", superchats only
	Badges        []model.Badge
	Emotes        []model.Emote
}

// chatPageDelay is the polite pause between replay continuation pages.
const chatPageDelay = 300 * time.Millisecond

// StreamChat fetches the finite chat replay for a video and calls emit for
// each event in arrival order. The stream is not restartable: on error the
// caller abandons the video. A non-nil error from emit stops the stream.
func (c *Client) StreamChat(ctx context.Context, videoID string, emit func(ChatEvent) error) error {
	continuation, err := c.chatContinuation(ctx, videoID)
	if err != nil {
		return err
	}
	if continuation == "" {
		return ErrUnavailable
	}
	logger := slog.Default().With(slog.String("component", "chat_replay"), slog.String("video_id", videoID))
	pages := 0
	for continuation != "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		events, next, err := c.chatReplayPage(ctx, continuation)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err := emit(ev); err != nil {
				return err
			}
		}
		pages++
		continuation = next
		if continuation == "" {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chatPageDelay):
		}
	}
	logger.Debug("chat replay finished", slog.Int("pages", pages))
	return nil
}

// chatContinuation asks the next endpoint for the replay continuation token.
func (c *Client) chatContinuation(ctx context.Context, videoID string) (string, error) {
	payload := struct {
		Context clientContext `json:"context"`
		VideoID string        `json:"videoId"`
	}{newClientContext(), videoID}
	var resp struct {
		Contents *struct {
			TwoColumnWatchNextResults *struct {
				ConversationBar *struct {
					LiveChatRenderer *struct {
						Continuations []struct {
							ReloadContinuationData *struct {
								Continuation string `json:"continuation"`
							} `json:"reloadContinuationData"`
						} `json:"continuations"`
					} `json:"liveChatRenderer"`
				} `json:"conversationBar"`
			} `json:"twoColumnWatchNextResults"`
		} `json:"contents"`
	}
	if err := c.post(ctx, "next", payload, &resp); err != nil {
		return "", err
	}
	if resp.Contents == nil || resp.Contents.TwoColumnWatchNextResults == nil ||
		resp.Contents.TwoColumnWatchNextResults.ConversationBar == nil ||
		resp.Contents.TwoColumnWatchNextResults.ConversationBar.LiveChatRenderer == nil {
		return "", nil
	}
	for _, cont := range resp.Contents.TwoColumnWatchNextResults.ConversationBar.LiveChatRenderer.Continuations {
		if cont.ReloadContinuationData != nil && cont.ReloadContinuationData.Continuation != "" {
			return cont.ReloadContinuationData.Continuation, nil
		}
	}
	return "", nil
}

// Renderer subset shared by text and paid messages.
type chatMessageRenderer struct {
	ID            string `json:"id"`
	TimestampUsec string `json:"timestampUsec"`
	TimestampText *struct {
		SimpleText string `json:"simpleText"`
	} `json:"timestampText"`
	AuthorName *struct {
		SimpleText string `json:"simpleText"`
	} `json:"authorName"`
	AuthorExternalChannelID string `json:"authorExternalChannelId"`
	AuthorBadges            []struct {
		LiveChatAuthorBadgeRenderer *struct {
			Tooltip         string `json:"tooltip"`
			CustomThumbnail *struct {
				Thumbnails []struct {
					URL string `json:"url"`
				} `json:"thumbnails"`
			} `json:"customThumbnail"`
		} `json:"liveChatAuthorBadgeRenderer"`
	} `json:"authorBadges"`
	Message *struct {
		Runs []messageRun `json:"runs"`
	} `json:"message"`
	PurchaseAmountText *struct {
		SimpleText string `json:"simpleText"`
	} `json:"purchaseAmountText"`
}

type messageRun struct {
	Text  string `json:"text"`
	Emoji *struct {
		EmojiID       string   `json:"emojiId"`
		Shortcuts     []string `json:"shortcuts"`
		IsCustomEmoji bool     `json:"isCustomEmoji"`
		Image         *struct {
			Thumbnails []struct {
				URL string `json:"url"`
			} `json:"thumbnails"`
		} `json:"image"`
	} `json:"emoji"`
}

// chatReplayPage fetches one replay continuation page.
func (c *Client) chatReplayPage(ctx context.Context, continuation string) ([]ChatEvent, string, error) {
	payload := struct {
		Context      clientContext `json:"context"`
		Continuation string        `json:"continuation"`
	}{newClientContext(), continuation}
	var resp struct {
		ContinuationContents *struct {
			LiveChatContinuation *struct {
				Actions []struct {
					ReplayChatItemAction *struct {
						Actions []struct {
							AddChatItemAction *struct {
								Item struct {
									LiveChatTextMessageRenderer *chatMessageRenderer `json:"liveChatTextMessageRenderer"`
									LiveChatPaidMessageRenderer *chatMessageRenderer `json:"liveChatPaidMessageRenderer"`
								} `json:"item"`
							} `json:"addChatItemAction"`
						} `json:"actions"`
					} `json:"replayChatItemAction"`
				} `json:"actions"`
				Continuations []struct {
					LiveChatReplayContinuationData *struct {
						Continuation string `json:"continuation"`
					} `json:"liveChatReplayContinuationData"`
				} `json:"continuations"`
			} `json:"liveChatContinuation"`
		} `json:"continuationContents"`
	}
	if err := c.post(ctx, "live_chat/get_live_chat_replay", payload, &resp); err != nil {
		return nil, "", err
	}
	if resp.ContinuationContents == nil || resp.ContinuationContents.LiveChatContinuation == nil {
		return nil, "", nil
	}
	lc := resp.ContinuationContents.LiveChatContinuation
	var events []ChatEvent
	for _, a := range lc.Actions {
		if a.ReplayChatItemAction == nil {
			continue
		}
		for _, inner := range a.ReplayChatItemAction.Actions {
			if inner.AddChatItemAction == nil {
				continue
			}
			item := inner.AddChatItemAction.Item
			switch {
			case item.LiveChatTextMessageRenderer != nil:
				events = append(events, eventFromRenderer(item.LiveChatTextMessageRenderer, model.DefaultMessageType))
			case item.LiveChatPaidMessageRenderer != nil:
				events = append(events, eventFromRenderer(item.LiveChatPaidMessageRenderer, "paid_message"))
			}
		}
	}
	next := ""
	for _, cont := range lc.Continuations {
		if cont.LiveChatReplayContinuationData != nil && cont.LiveChatReplayContinuationData.Continuation != "" {
			next = cont.LiveChatReplayContinuationData.Continuation
			break
		}
	}
	return events, next, nil
}

func eventFromRenderer(r *chatMessageRenderer, msgType string) ChatEvent {
	ev := ChatEvent{
		ID:            r.ID,
		AuthorID:      r.AuthorExternalChannelID,
		TimestampUsec: r.TimestampUsec,
		MessageType:   msgType,
	}
	if r.AuthorName != nil {
		ev.AuthorName = r.AuthorName.SimpleText
	}
	if r.TimestampText != nil {
		ev.TimestampText = r.TimestampText.SimpleText
	}
	if r.PurchaseAmountText != nil {
		ev.AmountText = r.PurchaseAmountText.SimpleText
	}
	for _, b := range r.AuthorBadges {
		if b.LiveChatAuthorBadgeRenderer == nil {
			continue
		}
		badge := model.Badge{Title: b.LiveChatAuthorBadgeRenderer.Tooltip}
		if ct := b.LiveChatAuthorBadgeRenderer.CustomThumbnail; ct != nil && len(ct.Thumbnails) > 0 {
			badge.Icon = ct.Thumbnails[len(ct.Thumbnails)-1].URL
		}
		ev.Badges = append(ev.Badges, badge)
	}
	if r.Message != nil {
		var b strings.Builder
		for _, run := range r.Message.Runs {
			if run.Emoji == nil {
				b.WriteString(run.Text)
				continue
			}
			em := model.Emote{
				ID:       run.Emoji.EmojiID,
				IsCustom: run.Emoji.IsCustomEmoji,
			}
			if len(run.Emoji.Shortcuts) > 0 {
				em.Name = strings.Trim(run.Emoji.Shortcuts[0], ":")
			}
			if run.Emoji.Image != nil && len(run.Emoji.Image.Thumbnails) > 0 {
				em.URL = run.Emoji.Image.Thumbnails[len(run.Emoji.Image.Thumbnails)-1].URL
			}
			if run.Emoji.IsCustomEmoji {
				// Custom emotes render as :name: placeholders in the text form.
				b.WriteString(":" + em.Name + ":")
				ev.Emotes = append(ev.Emotes, em)
			} else {
				// Unicode emoji carry their character as the emoji id.
				b.WriteString(run.Emoji.EmojiID)
			}
		}
		ev.Message = b.String()
	}
	return ev
}
