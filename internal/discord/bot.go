package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/memohai/bridgebot/internal/command"
	"github.com/memohai/bridgebot/internal/relay"
)

// Intents are the gateway intents the bot needs to read guild messages.
const Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentMessageContent

// Relayer forwards a message across its bridge.
type Relayer interface {
	Handle(ctx context.Context, msg relay.Message) relay.Outcome
}

// Commander executes operator commands.
type Commander interface {
	Handle(ctx context.Context, inv command.Invocation) (string, bool)
}

// NewSession creates a gateway session with the bot's intents.
func NewSession(token string) (*discordgo.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	return s, nil
}

// Bot routes gateway message events to commands and the relay.
type Bot struct {
	session  *discordgo.Session
	adapter  *Adapter
	relay    Relayer
	commands Commander
	logger   *slog.Logger

	mu       sync.RWMutex
	selfID   string
	removers []func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBot creates a bot. session may be nil in tests that drive HandleMessage directly.
func NewBot(log *slog.Logger, session *discordgo.Session, adapter *Adapter, relayer Relayer, commands Commander) *Bot {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		session:  session,
		adapter:  adapter,
		relay:    relayer,
		commands: commands,
		logger:   log.With(slog.String("adapter", "discord_bot")),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers handlers and opens the gateway connection.
func (b *Bot) Start(_ context.Context) error {
	if b.session == nil {
		return fmt.Errorf("discord session not configured")
	}
	b.mu.Lock()
	b.removers = append(b.removers,
		b.session.AddHandler(b.onReady),
		b.session.AddHandler(b.onMessageCreate),
	)
	b.mu.Unlock()
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	b.logger.Info("gateway connected")
	return nil
}

// Stop closes the gateway connection and cancels in-flight handlers.
func (b *Bot) Stop(_ context.Context) error {
	b.cancel()
	b.mu.Lock()
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
	b.mu.Unlock()
	if b.session == nil {
		return nil
	}
	if err := b.session.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	b.logger.Info("gateway closed")
	return nil
}

func (b *Bot) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r == nil || r.User == nil {
		return
	}
	b.SetSelfID(r.User.ID)
	b.logger.Info("ready", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
}

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m == nil {
		return
	}
	b.HandleMessage(b.ctx, m.Message)
}

// SetSelfID records the bot's own user id so its messages are skipped.
func (b *Bot) SetSelfID(id string) {
	b.mu.Lock()
	b.selfID = id
	b.mu.Unlock()
}

func (b *Bot) self() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selfID
}

// HandleMessage processes one message. It never panics.
func (b *Bot) HandleMessage(ctx context.Context, m *discordgo.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("message handler panic", slog.Any("panic", r))
		}
	}()
	if m == nil || m.Author == nil || m.GuildID == "" {
		return
	}
	if self := b.self(); self != "" && m.Author.ID == self {
		return
	}

	if b.commands != nil && m.WebhookID == "" && !m.Author.Bot {
		reply, ok := b.commands.Handle(ctx, command.Invocation{
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
			AuthorID:  m.Author.ID,
			Content:   m.Content,
		})
		if ok {
			if err := b.adapter.Reply(ctx, m, reply); err != nil {
				b.logger.Warn("command reply failed", slog.String("channel_id", m.ChannelID), slog.Any("error", err))
			}
			return
		}
	}

	outcome := b.relay.Handle(ctx, b.adapter.ToMessage(ctx, m))
	b.logger.Debug("message handled", slog.String("channel_id", m.ChannelID), slog.String("outcome", outcome.String()))
}
