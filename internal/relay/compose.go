package relay

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var reservedNameRe = regexp.MustCompile(`(?i)discord|clyde`)

const (
	// ReplyPreviewLimit is the number of characters of a replied-to message quoted in the header.
	ReplyPreviewLimit = 100
	// MaxContentLength is the webhook content limit.
	MaxContentLength = 2000
	// FooterPrefix starts the provenance line appended to every relayed message.
	FooterPrefix = "-# via "

	ellipsis     = "..."
	quotePrefix  = "> "
	maxNameRunes = 80
)

// Quote is a replied-to message. Relayed marks a message posted through a bridge
// webhook; its own reply header and footer are stripped before quoting.
type Quote struct {
	Message
	Relayed bool
}

// layout is how much of a message compose may emit.
type layout struct {
	body   int // rune budget of the body
	links  int // attachment and sticker lines kept, attachments first
	header bool
}

// Render builds the outbound content for msg: reply header, body, attachment and sticker
// links, footer. Emoji are translated and mentions sanitized after composition. When the
// result exceeds MaxContentLength the body is shortened first; when even an emptied body
// does not fit, trailing link lines are dropped whole (the body regaining the freed room),
// then the reply header. The footer is always kept.
func Render(msg Message, quote *Quote, community string) string {
	full := min(utf8.RuneCountInString(strings.TrimSpace(msg.Content)), MaxContentLength)
	l := layout{
		body:   full,
		links:  len(msg.Attachments) + len(msg.Stickers),
		header: quote != nil,
	}
	for {
		out := Sanitize(TranslateEmoji(compose(msg, quote, community, l)))
		over := utf8.RuneCountInString(out) - MaxContentLength
		switch {
		case over <= 0:
			return out
		case l.body > 0:
			l.body = max(l.body-over, 0)
		case l.links > 0:
			l.links--
			l.body = full
		case l.header:
			l.header = false
			l.body = full
		default:
			// only the footer is left
			return truncateRunes(out, MaxContentLength-len(ellipsis))
		}
	}
}

func compose(msg Message, quote *Quote, community string, l layout) string {
	lines := make([]string, 0, 3+l.links)
	if quote != nil && l.header {
		lines = append(lines, ReplyHeader(*quote))
	}
	if body := strings.TrimSpace(msg.Content); body != "" {
		if utf8.RuneCountInString(body) > l.body {
			body = truncateRunes(body, max(l.body-len(ellipsis), 0))
		}
		lines = append(lines, body)
	}
	links := make([]string, 0, len(msg.Attachments)+len(msg.Stickers))
	for _, a := range msg.Attachments {
		links = append(links, "📎 ["+linkText(a.Filename, "attachment")+"]("+a.URL+")")
	}
	for _, s := range msg.Stickers {
		links = append(links, "[Sticker: "+linkText(s.Name, "sticker")+"]("+s.URL+")")
	}
	lines = append(lines, links[:min(l.links, len(links))]...)
	lines = append(lines, Footer(community))
	return strings.Join(lines, "\n")
}

// ReplyHeader renders the quote line for a replied-to message.
func ReplyHeader(quoted Quote) string {
	name := strings.TrimSpace(quoted.Author.DisplayName)
	if name == "" {
		name = "Unknown"
	}
	text := quoted.Content
	if quoted.Relayed {
		text = StripRelayAnnotations(text)
	}
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		if len(quoted.Attachments) > 0 || len(quoted.Stickers) > 0 {
			text = "*(attachment)*"
		} else {
			text = "*(empty message)*"
		}
	}
	if utf8.RuneCountInString(text) > ReplyPreviewLimit {
		text = truncateRunes(text, ReplyPreviewLimit)
	}
	return quotePrefix + "**" + name + ":** " + text
}

// Footer renders the provenance line.
func Footer(community string) string {
	community = strings.TrimSpace(community)
	if community == "" {
		community = "another server"
	}
	return FooterPrefix + community
}

// StripRelayAnnotations removes the reply header and footer that a previous relay added,
// so quoting a relayed message does not nest quotes.
func StripRelayAnnotations(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	start := 0
	for start < len(lines) && strings.HasPrefix(lines[start], quotePrefix) {
		start++
	}
	end := len(lines)
	for end > start && strings.HasPrefix(lines[end-1], FooterPrefix) {
		end--
	}
	return strings.TrimSpace(strings.Join(lines[start:end], "\n"))
}

// WebhookUsername clamps a display name to what webhook executions accept.
func WebhookUsername(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Unknown"
	}
	// webhook usernames may not contain these words
	name = breakReserved(name)
	if utf8.RuneCountInString(name) > maxNameRunes {
		runes := []rune(name)
		name = string(runes[:maxNameRunes])
	}
	return name
}

func breakReserved(s string) string {
	return reservedNameRe.ReplaceAllStringFunc(s, func(word string) string {
		_, size := utf8.DecodeRuneInString(word)
		return word[:size] + zeroWidthSpace + word[size:]
	})
}

func linkText(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	return strings.NewReplacer("[", "(", "]", ")").Replace(s)
}

// truncateRunes keeps the first n runes of s and appends an ellipsis when it cut anything.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + ellipsis
}
