package relay

import "regexp"

const zeroWidthSpace = "\u200b"

var (
	inviteRe   = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:discord\.gg|discord\.io|discord\.me|discord(?:app)?\.com/invite)/[\w-]+`)
	mentionRe  = regexp.MustCompile(`<@([!&]?\d+)>`)
	massPingRe = regexp.MustCompile(`(?i)@(everyone|here)`)
	emojiRe    = regexp.MustCompile(`<(a?):(\w{2,32}):(\d+)>`)
)

// Sanitize breaks every mention trigger in s and redacts invite links. It must run after
// all other rewriting so nothing added later can reintroduce a live mention.
func Sanitize(s string) string {
	s = inviteRe.ReplaceAllString(s, "[invite removed]")
	s = mentionRe.ReplaceAllString(s, "<@"+zeroWidthSpace+"$1>")
	return massPingRe.ReplaceAllString(s, "@"+zeroWidthSpace+"$1")
}

// TranslateEmoji renders custom emoji tokens as links to the emoji CDN, since the
// destination community usually cannot display them.
func TranslateEmoji(s string) string {
	return emojiRe.ReplaceAllStringFunc(s, func(tok string) string {
		m := emojiRe.FindStringSubmatch(tok)
		ext := ".png"
		if m[1] == "a" {
			ext = ".gif"
		}
		return "[" + m[2] + "](https://cdn.discordapp.com/emojis/" + m[3] + ext + ")"
	})
}
