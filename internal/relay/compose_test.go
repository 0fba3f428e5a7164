package relay

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestReplyHeaderTruncates(t *testing.T) {
	header := ReplyHeader(Quote{Message: Message{Author: Author{DisplayName: "Bob"}, Content: strings.Repeat("x", 150)}})
	assert.Equal(t, "> **Bob:** "+strings.Repeat("x", 100)+"...", header)

	header = ReplyHeader(Quote{Message: Message{Author: Author{DisplayName: "Bob"}, Content: strings.Repeat("é", 100)}})
	assert.Equal(t, "> **Bob:** "+strings.Repeat("é", 100), header)
}

func TestReplyHeaderFallbacks(t *testing.T) {
	bob := Author{DisplayName: "Bob"}
	tests := []struct {
		name   string
		quoted Quote
		want   string
	}{
		{"collapses whitespace", Quote{Message: Message{Author: bob, Content: "a\n\nb   c"}}, "> **Bob:** a b c"},
		{"attachment only", Quote{Message: Message{Author: bob, Attachments: []Attachment{{Filename: "a.png"}}}}, "> **Bob:** *(attachment)*"},
		{"empty", Quote{Message: Message{Author: bob}}, "> **Bob:** *(empty message)*"},
		{"unknown author", Quote{Message: Message{Content: "hi"}}, "> **Unknown:** hi"},
		{"relayed message", Quote{Message: Message{Author: bob, Content: "> **Eve:** older\nactual reply\n-# via Other"}, Relayed: true}, "> **Bob:** actual reply"},
		{"relayed quote only", Quote{Message: Message{Author: bob, Content: "> **Eve:** older\n-# via Other"}, Relayed: true}, "> **Bob:** *(empty message)*"},
		{"human quote lines kept", Quote{Message: Message{Author: bob, Content: "> the plan is X\nagreed?"}}, "> **Bob:** > the plan is X agreed?"},
		{"human quote only", Quote{Message: Message{Author: bob, Content: "> only a quote"}}, "> **Bob:** > only a quote"},
		{"human small text kept", Quote{Message: Message{Author: bob, Content: "see notes\n-# via email"}}, "> **Bob:** see notes -# via email"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplyHeader(tt.quoted))
		})
	}
}

func TestStripRelayAnnotations(t *testing.T) {
	assert.Equal(t, "body\nmore", StripRelayAnnotations("> **A:** q\nbody\nmore\n-# via G"))
	assert.Equal(t, "plain", StripRelayAnnotations("plain"))
	assert.Equal(t, "", StripRelayAnnotations("-# via G"))
}

func TestRenderComposesInOrder(t *testing.T) {
	msg := Message{
		Content:     "hello",
		Attachments: []Attachment{{Filename: "img.png", URL: "https://cdn.example/img.png"}},
		Stickers:    []Sticker{{Name: "wave", URL: "https://media.example/stickers/1.png"}},
	}
	quoted := &Quote{Message: Message{Author: Author{DisplayName: "Bob"}, Content: "earlier"}}
	got := Render(msg, quoted, "Guild One")
	assert.Equal(t, strings.Join([]string{
		"> **Bob:** earlier",
		"hello",
		"📎 [img.png](https://cdn.example/img.png)",
		"[Sticker: wave](https://media.example/stickers/1.png)",
		"-# via Guild One",
	}, "\n"), got)
}

func TestRenderClampsLength(t *testing.T) {
	got := Render(Message{Content: strings.Repeat("a", 3000)}, nil, "G")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxContentLength)
	assert.True(t, strings.HasSuffix(got, "\n-# via G"))
	assert.Contains(t, got, "...")

	// sanitizing grows the content, the body is shortened to make room
	got = Render(Message{Content: strings.Repeat("@here ", 400)}, nil, "G")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxContentLength)
	assert.True(t, strings.HasSuffix(got, "\n-# via G"))
}

func longAttachments(n int) []Attachment {
	items := make([]Attachment, n)
	for i := range items {
		name := fmt.Sprintf("photo-%d.png", i)
		items[i] = Attachment{
			Filename: name,
			URL:      "https://cdn.discordapp.com/attachments/1/2/" + name + "?ex=" + strings.Repeat("a", 240),
		}
	}
	return items
}

func TestRenderDropsWholeLinkLinesAndKeepsFooter(t *testing.T) {
	attachments := longAttachments(10)
	msg := Message{
		Content:     "hello",
		Attachments: attachments,
		Stickers:    []Sticker{{Name: "wave", URL: "https://media.discordapp.net/stickers/1.png"}},
	}
	got := Render(msg, nil, "Guild One")

	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxContentLength)
	assert.True(t, strings.HasSuffix(got, "\n-# via Guild One"), got)

	full := map[string]bool{}
	for _, a := range attachments {
		full["📎 ["+a.Filename+"]("+a.URL+")"] = true
	}
	lines := strings.Split(got, "\n")
	assert.Equal(t, "hello", lines[0])
	links := lines[1 : len(lines)-1]
	assert.NotEmpty(t, links)
	assert.Less(t, len(links), len(attachments))
	for i, line := range links {
		assert.True(t, full[line], "line %d is not a complete attachment link: %q", i, line)
		assert.Equal(t, "📎 ["+attachments[i].Filename+"]("+attachments[i].URL+")", line)
	}
	assert.NotContains(t, got, "[Sticker: wave]")
}

func TestRenderKeepsFooterWithLongQuote(t *testing.T) {
	quote := &Quote{Message: Message{Author: Author{DisplayName: strings.Repeat("N", 1990)}, Content: "hi"}}
	got := Render(Message{Content: "body"}, quote, "G")
	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxContentLength)
	assert.Equal(t, "body\n-# via G", got)
}

func TestRenderSanitizesQuotedText(t *testing.T) {
	quoted := &Quote{Message: Message{Author: Author{DisplayName: "Bob"}, Content: "@everyone look"}}
	got := Render(Message{Content: "ok"}, quoted, "G")
	assert.NotContains(t, got, "@everyone")
}

func TestFooterFallback(t *testing.T) {
	assert.Equal(t, "-# via another server", Footer("  "))
}

func TestWebhookUsername(t *testing.T) {
	assert.Equal(t, "Unknown", WebhookUsername("  "))
	assert.Equal(t, "Alice", WebhookUsername("Alice"))
	assert.Equal(t, 80, utf8.RuneCountInString(WebhookUsername(strings.Repeat("n", 100))))

	name := WebhookUsername("Discord Fan and clyde")
	assert.NotContains(t, strings.ToLower(name), "discord")
	assert.NotContains(t, strings.ToLower(name), "clyde")
	assert.Equal(t, "Discord Fan and clyde", strings.ReplaceAll(name, zeroWidthSpace, ""))
}
