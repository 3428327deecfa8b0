// Package emote classifies emoji and emote content in chat messages.
//
// YouTube chat carries two kinds of emoji: standard unicode emoji stored
// directly in the message text, and custom channel emotes delivered as a
// structured payload (and referenced in the text as :name: placeholders).
// Everything in this package is a deterministic, input-only transform.
package emote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/himawari-tv/ytchatsync/model"
)

// unicodeEmojiRE matches maximal contiguous runs of characters from the main
// emoji code-point blocks: emoticons, symbols & pictographs, transport & map
// symbols, regional indicator flags, dingbats, enclosed characters, and the
// supplemental/extended symbol blocks.
var unicodeEmojiRE = regexp.MustCompile(`[` +
	`\x{1F600}-\x{1F64F}` +
	`\x{1F300}-\x{1F5FF}` +
	`\x{1F680}-\x{1F6FF}` +
	`\x{1F1E0}-\x{1F1FF}` +
	`\x{2702}-\x{27B0}` +
	`\x{24C2}-\x{1F251}` +
	`\x{1F900}-\x{1F9FF}` +
	`\x{1FA00}-\x{1FA6F}` +
	`]+`)

// customEmoteRE matches :name: tokens. The identifier must start with a
// letter so timestamps like "1:30" (which would otherwise read as ":1:30:"
// fragments) never match.
var customEmoteRE = regexp.MustCompile(`:[a-zA-Z][a-zA-Z0-9_-]*:`)

// ExtractUnicodeEmojis returns every maximal run of unicode emoji found in
// text, in order of appearance.
func ExtractUnicodeEmojis(text string) []string {
	if text == "" {
		return nil
	}
	return unicodeEmojiRE.FindAllString(text, -1)
}

// HasUnicodeEmojis reports whether text contains any unicode emoji.
func HasUnicodeEmojis(text string) bool {
	return text != "" && unicodeEmojiRE.MatchString(text)
}

// HasCustomEmoji reports whether text contains a :name: emote placeholder.
func HasCustomEmoji(text string) bool {
	return text != "" && customEmoteRE.MatchString(text)
}

// ExtractCustomEmotes builds an Emote for each distinct :name: token in text,
// in first-seen order. Used to recover emote identity when the upstream sends
// placeholders without a structured payload.
func ExtractCustomEmotes(text string) []model.Emote {
	if text == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var out []model.Emote
	for _, tok := range customEmoteRE.FindAllString(text, -1) {
		name := strings.Trim(tok, ":")
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, model.Emote{Name: name, IsCustom: true})
	}
	return out
}

// ParseEmotes normalizes a structured emote payload: names are stripped of
// their :colon: delimiters and entries without a usable identity are dropped.
func ParseEmotes(payload []model.Emote) []model.Emote {
	out := make([]model.Emote, 0, len(payload))
	for _, e := range payload {
		e.Name = strings.Trim(e.Name, ":")
		if e.Name == "" && e.ID == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Classification separates the emoji content of one message.
type Classification struct {
	Unicode []string
	Custom  []model.Emote
}

// Classify returns both unicode and custom emoji content for a message text
// and its optional structured emote payload.
func Classify(text string, payload []model.Emote) Classification {
	return Classification{
		Unicode: ExtractUnicodeEmojis(text),
		Custom:  ParseEmotes(payload),
	}
}

// FormatWithEmotes replaces each :name: occurrence named by the payload with a
// human-readable [Emoji: name] form.
func FormatWithEmotes(text string, payload []model.Emote) string {
	if text == "" || len(payload) == 0 {
		return text
	}
	out := text
	for _, e := range payload {
		if e.Name == "" {
			continue
		}
		out = strings.ReplaceAll(out, ":"+e.Name+":", "[Emoji: "+e.Name+"]")
	}
	return out
}

// ReconstructMessage replaces each :name: occurrence with an [IMG:name]
// placeholder, leaving unicode emoji untouched. Useful for display where
// custom emotes cannot be rendered inline.
func ReconstructMessage(text string, payload []model.Emote) string {
	if text == "" {
		return text
	}
	out := text
	for _, e := range payload {
		if e.Name == "" {
			continue
		}
		out = strings.ReplaceAll(out, ":"+e.Name+":", "[IMG:"+e.Name+"]")
	}
	return out
}

// EmotesToMarkdown renders the payload as markdown: an image reference when a
// URL is present, the :name: token otherwise.
func EmotesToMarkdown(payload []model.Emote) string {
	if len(payload) == 0 {
		return ""
	}
	parts := make([]string, 0, len(payload))
	for _, e := range payload {
		name := e.Name
		if name == "" {
			name = "emoji"
		}
		if e.URL != "" {
			parts = append(parts, fmt.Sprintf("![%s](%s)", name, e.URL))
		} else {
			parts = append(parts, ":"+name+":")
		}
	}
	return strings.Join(parts, " ")
}

// EmoteNames returns the distinct emote names present in the payload, in
// first-seen order.
func EmoteNames(payload []model.Emote) []string {
	seen := make(map[string]struct{}, len(payload))
	names := make([]string, 0, len(payload))
	for _, e := range payload {
		if e.Name == "" {
			continue
		}
		if _, ok := seen[e.Name]; ok {
			continue
		}
		seen[e.Name] = struct{}{}
		names = append(names, e.Name)
	}
	return names
}

// CountEmotes returns the number of emotes in the payload.
func CountEmotes(payload []model.Emote) int { return len(payload) }
