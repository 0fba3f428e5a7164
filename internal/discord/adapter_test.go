package discord

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/bridgebot/internal/bridge"
	"github.com/memohai/bridgebot/internal/command"
	"github.com/memohai/bridgebot/internal/logger"
	"github.com/memohai/bridgebot/internal/relay"
)

type reply struct {
	channelID string
	content   string
	ref       *discordgo.MessageReference
	mentions  *discordgo.MessageAllowedMentions
}

type fakeREST struct {
	mu         sync.Mutex
	channels   map[string]*discordgo.Channel
	guilds     map[string]*discordgo.Guild
	webhooks   map[string][]*discordgo.Webhook
	messages   map[string]*discordgo.Message
	created    []string
	executed   []*discordgo.WebhookParams
	replies    []reply
	channelErr error
	hooksErr   error
	execErr    error
}

func newFakeREST() *fakeREST {
	return &fakeREST{
		channels: map[string]*discordgo.Channel{},
		guilds:   map[string]*discordgo.Guild{},
		webhooks: map[string][]*discordgo.Webhook{},
		messages: map[string]*discordgo.Message{},
	}
}

func restErr(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "error"},
	}
}

func (f *fakeREST) Channel(channelID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.channelErr != nil {
		return nil, f.channelErr
	}
	ch, ok := f.channels[channelID]
	if !ok {
		return nil, restErr(http.StatusNotFound, codeUnknownChannel)
	}
	return ch, nil
}

func (f *fakeREST) Guild(guildID string, _ ...discordgo.RequestOption) (*discordgo.Guild, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guilds[guildID]
	if !ok {
		return nil, restErr(http.StatusNotFound, 10004)
	}
	return g, nil
}

func (f *fakeREST) ChannelWebhooks(channelID string, _ ...discordgo.RequestOption) ([]*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hooksErr != nil {
		return nil, f.hooksErr
	}
	return f.webhooks[channelID], nil
}

func (f *fakeREST) WebhookCreate(channelID, name, _ string, _ ...discordgo.RequestOption) (*discordgo.Webhook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hook := &discordgo.Webhook{ID: "new-" + channelID, Name: name, Token: "tok", ChannelID: channelID}
	f.webhooks[channelID] = append(f.webhooks[channelID], hook)
	f.created = append(f.created, channelID)
	return hook, nil
}

func (f *fakeREST) WebhookExecute(_, _ string, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return nil, f.execErr
	}
	f.executed = append(f.executed, data)
	return nil, nil
}

func (f *fakeREST) ChannelMessage(channelID, messageID string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[channelID+"/"+messageID]
	if !ok {
		return nil, restErr(http.StatusNotFound, 10008)
	}
	return m, nil
}

func (f *fakeREST) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply{channelID: channelID, content: data.Content, ref: data.Reference, mentions: data.AllowedMentions})
	return &discordgo.Message{}, nil
}

type fakeState struct {
	channels map[string]*discordgo.Channel
	guilds   map[string]*discordgo.Guild
}

func (s fakeState) Channel(channelID string) (*discordgo.Channel, error) {
	if ch, ok := s.channels[channelID]; ok {
		return ch, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func (s fakeState) Guild(guildID string) (*discordgo.Guild, error) {
	if g, ok := s.guilds[guildID]; ok {
		return g, nil
	}
	return nil, discordgo.ErrStateNotFound
}

func TestChannelPrefersState(t *testing.T) {
	rest := newFakeREST()
	rest.channels["2"] = &discordgo.Channel{ID: "2", Name: "rest-chan", GuildID: "g2"}
	rest.guilds["g2"] = &discordgo.Guild{ID: "g2", Name: "Rest Guild"}
	state := fakeState{
		channels: map[string]*discordgo.Channel{"1": {ID: "1", Name: "general", GuildID: "g1"}},
		guilds:   map[string]*discordgo.Guild{"g1": {ID: "g1", Name: "Home"}},
	}
	a := NewAdapter(logger.Discard(), rest, state)
	ctx := context.Background()

	info, err := a.Channel(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "#general (Home)", info.Label())

	info, err = a.Channel(ctx, "2")
	require.NoError(t, err)
	assert.Equal(t, "#rest-chan (Rest Guild)", info.Label())

	_, err = a.Channel(ctx, "3")
	assert.ErrorIs(t, err, bridge.ErrChannelNotFound)

	rest.channelErr = restErr(http.StatusForbidden, codeMissingAccess)
	_, err = a.Channel(ctx, "4")
	assert.ErrorIs(t, err, bridge.ErrChannelNotFound)

	rest.channelErr = errors.New("connection reset")
	_, err = a.Channel(ctx, "5")
	require.Error(t, err)
	assert.NotErrorIs(t, err, bridge.ErrChannelNotFound)
}

func TestEnsureWebhookReusesNamedHook(t *testing.T) {
	rest := newFakeREST()
	rest.webhooks["1"] = []*discordgo.Webhook{
		{ID: "other", Name: "Other", Token: "x"},
		{ID: "tokenless", Name: "Bridge"},
		{ID: "mine", Name: "Bridge", Token: "secret"},
	}
	a := NewAdapter(logger.Discard(), rest, nil)
	ctx := context.Background()

	hook, err := a.EnsureWebhook(ctx, "1", "Bridge")
	require.NoError(t, err)
	assert.Equal(t, bridge.Webhook{ID: "mine", Token: "secret", ChannelID: "1"}, hook)
	assert.Empty(t, rest.created)

	hook, err = a.EnsureWebhook(ctx, "2", "Bridge")
	require.NoError(t, err)
	assert.Equal(t, "new-2", hook.ID)
	assert.Equal(t, []string{"2"}, rest.created)

	rest.hooksErr = restErr(http.StatusForbidden, codeMissingPerms)
	_, err = a.EnsureWebhook(ctx, "3", "Bridge")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestExecuteWebhookDisablesMentions(t *testing.T) {
	rest := newFakeREST()
	a := NewAdapter(logger.Discard(), rest, nil)
	hook := bridge.Webhook{ID: "h", Token: "t"}

	require.NoError(t, a.ExecuteWebhook(context.Background(), hook, relay.Post{Content: "hi", Username: "Alice", AvatarURL: "https://a"}))
	require.Len(t, rest.executed, 1)
	params := rest.executed[0]
	assert.Equal(t, "hi", params.Content)
	assert.Equal(t, "Alice", params.Username)
	require.NotNil(t, params.AllowedMentions)
	assert.NotNil(t, params.AllowedMentions.Parse)
	assert.Empty(t, params.AllowedMentions.Parse)

	rest.execErr = restErr(http.StatusNotFound, codeUnknownWebhook)
	assert.ErrorIs(t, a.ExecuteWebhook(context.Background(), hook, relay.Post{Content: "hi"}), relay.ErrWebhookGone)

	rest.execErr = restErr(http.StatusInternalServerError, 0)
	err := a.ExecuteWebhook(context.Background(), hook, relay.Post{Content: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, relay.ErrWebhookGone)
}

func TestToMessage(t *testing.T) {
	rest := newFakeREST()
	rest.guilds["g"] = &discordgo.Guild{ID: "g", Name: "Home"}
	a := NewAdapter(logger.Discard(), rest, nil)

	m := &discordgo.Message{
		ID:        "m2",
		ChannelID: "100",
		GuildID:   "g",
		Content:   "hello",
		Author:    &discordgo.User{ID: "u", Username: "alice", GlobalName: "Alice G"},
		Member:    &discordgo.Member{Nick: "Ally"},
		Attachments: []*discordgo.MessageAttachment{
			{Filename: "img.png", URL: "https://cdn.discordapp.com/attachments/img.png"},
		},
		StickerItems: []*discordgo.StickerItem{
			{ID: "s1", Name: "wave", FormatType: discordgo.StickerFormat(stickerGIF)},
		},
		MessageReference:  &discordgo.MessageReference{MessageID: "m1", ChannelID: "100"},
		ReferencedMessage: &discordgo.Message{ID: "m1", Content: "earlier", Author: &discordgo.User{Username: "bob"}},
	}
	msg := a.ToMessage(context.Background(), m)

	assert.Equal(t, "Home", msg.GuildName)
	assert.Equal(t, "Ally", msg.Author.DisplayName)
	assert.False(t, msg.Author.Bot)
	assert.Equal(t, []relay.Attachment{{Filename: "img.png", URL: "https://cdn.discordapp.com/attachments/img.png"}}, msg.Attachments)
	assert.Equal(t, []relay.Sticker{{Name: "wave", URL: "https://media.discordapp.net/stickers/s1.gif"}}, msg.Stickers)
	require.NotNil(t, msg.Reply)
	assert.Equal(t, "m1", msg.Reply.MessageID)
	require.NotNil(t, msg.Quoted)
	assert.Equal(t, "bob", msg.Quoted.Author.DisplayName)
	assert.Nil(t, msg.Quoted.Quoted)
}

func TestDisplayNameFallbacks(t *testing.T) {
	assert.Equal(t, "Global", displayName(&discordgo.Member{}, &discordgo.User{Username: "user", GlobalName: "Global"}))
	assert.Equal(t, "user", displayName(nil, &discordgo.User{Username: "user"}))
}

func TestStickerURL(t *testing.T) {
	assert.Equal(t, "https://media.discordapp.net/stickers/1.png", StickerURL("1", stickerPNG))
	assert.Equal(t, "https://media.discordapp.net/stickers/1.png", StickerURL("1", stickerAPNG))
	assert.Equal(t, "https://media.discordapp.net/stickers/1.json", StickerURL("1", stickerLottie))
}

func TestSplitContent(t *testing.T) {
	assert.Equal(t, []string{""}, splitContent("", 10))
	assert.Equal(t, []string{"ab\ncd"}, splitContent("ab\ncd", 10))
	assert.Equal(t, []string{"aaaa", "bbbb"}, splitContent("aaaa\nbbbb", 6))
	assert.Equal(t, []string{"x", "aaaa", "aa\nb"}, splitContent("x\naaaaaa\nb", 4))
}

type recordingRelay struct {
	mu   sync.Mutex
	msgs []relay.Message
}

func (r *recordingRelay) Handle(_ context.Context, msg relay.Message) relay.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return relay.Relayed
}

type fixedCommands struct{}

func (fixedCommands) Handle(_ context.Context, inv command.Invocation) (string, bool) {
	if strings.HasPrefix(inv.Content, "!bridge") {
		return "ok " + inv.AuthorID, true
	}
	return "", false
}

type panickingRelay struct{}

func (panickingRelay) Handle(context.Context, relay.Message) relay.Outcome { panic("boom") }

func TestBotRoutesMessages(t *testing.T) {
	rest := newFakeREST()
	rl := &recordingRelay{}
	b := NewBot(logger.Discard(), nil, NewAdapter(logger.Discard(), rest, nil), rl, fixedCommands{})
	b.SetSelfID("bot")
	ctx := context.Background()

	b.HandleMessage(ctx, &discordgo.Message{ID: "1", ChannelID: "100", GuildID: "g", Content: "!bridge list", Author: &discordgo.User{ID: "u"}})
	require.Len(t, rest.replies, 1)
	assert.Equal(t, "ok u", rest.replies[0].content)
	assert.Equal(t, "1", rest.replies[0].ref.MessageID)
	assert.Empty(t, rl.msgs)

	b.HandleMessage(ctx, &discordgo.Message{ID: "2", ChannelID: "100", GuildID: "g", Content: "hi", Author: &discordgo.User{ID: "u"}})
	b.HandleMessage(ctx, &discordgo.Message{ID: "3", ChannelID: "100", GuildID: "g", Content: "mine", Author: &discordgo.User{ID: "bot"}})
	b.HandleMessage(ctx, &discordgo.Message{ID: "4", ChannelID: "dm", Content: "direct", Author: &discordgo.User{ID: "u"}})
	// commands from other bots are relayed, not executed
	b.HandleMessage(ctx, &discordgo.Message{ID: "5", ChannelID: "100", GuildID: "g", Content: "!bridge clear", Author: &discordgo.User{ID: "b2", Bot: true}})

	require.Len(t, rl.msgs, 2)
	assert.Equal(t, "hi", rl.msgs[0].Content)
	assert.True(t, rl.msgs[1].Author.Bot)
	assert.Len(t, rest.replies, 1)
}

func TestReplySuppressesMentions(t *testing.T) {
	rest := newFakeREST()
	a := NewAdapter(logger.Discard(), rest, nil)
	msg := &discordgo.Message{ID: "9", ChannelID: "100", GuildID: "g"}

	require.NoError(t, a.Reply(context.Background(), msg, "Authorized users: <@1>, <@2>"))
	require.Len(t, rest.replies, 1)
	got := rest.replies[0]
	assert.Equal(t, "Authorized users: <@1>, <@2>", got.content)
	assert.Equal(t, "9", got.ref.MessageID)
	require.NotNil(t, got.mentions)
	assert.Empty(t, got.mentions.Parse)
	assert.Empty(t, got.mentions.Users)
	assert.False(t, got.mentions.RepliedUser)
}

func TestBotRecoversFromPanic(t *testing.T) {
	b := NewBot(logger.Discard(), nil, NewAdapter(logger.Discard(), newFakeREST(), nil), panickingRelay{}, nil)
	assert.NotPanics(t, func() {
		b.HandleMessage(context.Background(), &discordgo.Message{ChannelID: "100", GuildID: "g", Content: "hi", Author: &discordgo.User{ID: "u"}})
	})
	assert.Error(t, b.Start(context.Background()))
	assert.NoError(t, b.Stop(context.Background()))
}
