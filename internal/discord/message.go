package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/bridgebot/internal/relay"
)

const stickerBaseURL = "https://media.discordapp.net/stickers/"

// sticker format types
const (
	stickerPNG    = 1
	stickerAPNG   = 2
	stickerLottie = 3
	stickerGIF    = 4
)

// ToMessage converts a gateway message into a relay message. The referenced message is
// converted too when the event carries it.
func (a *Adapter) ToMessage(ctx context.Context, m *discordgo.Message) relay.Message {
	return a.convert(ctx, m, true)
}

func (a *Adapter) convert(ctx context.Context, m *discordgo.Message, withQuoted bool) relay.Message {
	if m == nil {
		return relay.Message{}
	}
	msg := relay.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		GuildID:     m.GuildID,
		WebhookID:   m.WebhookID,
		Author:      author(m),
		Content:     m.Content,
		Attachments: attachments(m.Attachments),
		Stickers:    stickers(m.StickerItems),
	}
	if withQuoted {
		msg.GuildName = a.guildName(ctx, m.GuildID)
		if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
			msg.Reply = &relay.Reference{MessageID: ref.MessageID, ChannelID: ref.ChannelID}
		}
		if m.ReferencedMessage != nil {
			quoted := a.convert(ctx, m.ReferencedMessage, false)
			msg.Quoted = &quoted
		}
	}
	return msg
}

func author(m *discordgo.Message) relay.Author {
	if m.Author == nil {
		return relay.Author{}
	}
	return relay.Author{
		ID:          m.Author.ID,
		DisplayName: displayName(m.Member, m.Author),
		AvatarURL:   m.Author.AvatarURL(""),
		Bot:         m.Author.Bot || m.WebhookID != "",
	}
}

// displayName prefers the guild nickname, then the global name, then the username.
func displayName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && strings.TrimSpace(member.Nick) != "" {
		return member.Nick
	}
	if strings.TrimSpace(user.GlobalName) != "" {
		return user.GlobalName
	}
	return user.Username
}

func attachments(items []*discordgo.MessageAttachment) []relay.Attachment {
	if len(items) == 0 {
		return nil
	}
	out := make([]relay.Attachment, 0, len(items))
	for _, item := range items {
		if item == nil || item.URL == "" {
			continue
		}
		out = append(out, relay.Attachment{Filename: item.Filename, URL: item.URL})
	}
	return out
}

func stickers(items []*discordgo.StickerItem) []relay.Sticker {
	if len(items) == 0 {
		return nil
	}
	out := make([]relay.Sticker, 0, len(items))
	for _, item := range items {
		if item == nil || item.ID == "" {
			continue
		}
		out = append(out, relay.Sticker{Name: item.Name, URL: StickerURL(item.ID, int(item.FormatType))})
	}
	return out
}

// StickerURL returns the media url of a sticker.
func StickerURL(id string, format int) string {
	ext := ".png"
	switch format {
	case stickerGIF:
		ext = ".gif"
	case stickerLottie:
		ext = ".json"
	}
	return stickerBaseURL + id + ext
}
