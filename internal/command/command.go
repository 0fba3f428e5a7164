// Package command implements the operator chat commands for managing bridges.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/memohai/bridgebot/internal/access"
	"github.com/memohai/bridgebot/internal/bridge"
)

const (
	msgUnauthorized = "You are not authorized to use this command."
	msgInternal     = "Something went wrong, please try again later."
)

// Bridges is the registry surface used by commands.
type Bridges interface {
	Create(ctx context.Context, channelA, channelB string) (bridge.Bridge, error)
	Remove(ctx context.Context, id int64) (bridge.Bridge, error)
	List(ctx context.Context) ([]bridge.Bridge, error)
	Clear(ctx context.Context) error
}

// Access is the operator check surface used by commands.
type Access interface {
	IsAuthorized(ctx context.Context, userID string) (bool, error)
	Authorize(ctx context.Context, actorID, userID string) error
	Deauthorize(ctx context.Context, actorID, userID string) error
	List(ctx context.Context) ([]access.Operator, error)
}

// Invocation is a chat message that may contain a command.
type Invocation struct {
	ChannelID string
	GuildID   string
	AuthorID  string
	Content   string
}

// Handler parses and executes "<prefix>bridge <sub> ..." commands.
type Handler struct {
	bridges   Bridges
	access    Access
	directory bridge.Directory
	trigger   string
	logger    *slog.Logger
}

// NewHandler creates a command handler. An empty prefix defaults to "!".
func NewHandler(log *slog.Logger, bridges Bridges, acc Access, directory bridge.Directory, prefix string) *Handler {
	if log == nil {
		log = slog.Default()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "!"
	}
	return &Handler{
		bridges:   bridges,
		access:    acc,
		directory: directory,
		trigger:   prefix + "bridge",
		logger:    log.With(slog.String("handler", "command")),
	}
}

// Match reports whether content invokes the bridge command group.
func (h *Handler) Match(content string) bool {
	_, ok := h.args(content)
	return ok
}

func (h *Handler) args(content string) ([]string, bool) {
	fields := strings.Fields(content)
	if len(fields) == 0 || !strings.EqualFold(fields[0], h.trigger) {
		return nil, false
	}
	return fields[1:], true
}

// Handle executes the command in inv and returns the reply. ok is false when the
// message is not a bridge command.
func (h *Handler) Handle(ctx context.Context, inv Invocation) (reply string, ok bool) {
	args, ok := h.args(inv.Content)
	if !ok {
		return "", false
	}
	sub := "help"
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
		args = args[1:]
	}
	if sub == "help" {
		return h.usage(), true
	}

	allowed, err := h.access.IsAuthorized(ctx, inv.AuthorID)
	if err != nil {
		h.logger.Error("authorization check failed", slog.String("user_id", inv.AuthorID), slog.Any("error", err))
		return msgInternal, true
	}
	// authorize and deauthorize are owner-only, enforced by the access service
	if !allowed && sub != "authorize" && sub != "deauthorize" {
		return msgUnauthorized, true
	}

	log := h.logger.With(slog.String("command", sub), slog.String("user_id", inv.AuthorID))
	switch sub {
	case "setup":
		return h.setup(ctx, log, args), true
	case "remove":
		return h.remove(ctx, log, args), true
	case "list":
		return h.list(ctx, log), true
	case "clear":
		if err := h.bridges.Clear(ctx); err != nil {
			return h.fail(log, err), true
		}
		return "All bridges cleared.", true
	case "authorize":
		return h.authorize(ctx, log, inv.AuthorID, args), true
	case "deauthorize":
		return h.deauthorize(ctx, log, inv.AuthorID, args), true
	case "authorized":
		return h.authorized(ctx, log), true
	default:
		return fmt.Sprintf("Unknown subcommand %q.\n%s", sub, h.usage()), true
	}
}

func (h *Handler) setup(ctx context.Context, log *slog.Logger, args []string) string {
	if len(args) != 2 {
		return "Usage: " + h.trigger + " setup <#channel1> <#channel2>"
	}
	a, okA := ParseChannel(args[0])
	b, okB := ParseChannel(args[1])
	if !okA || !okB {
		return "Please mention two text channels."
	}
	created, err := h.bridges.Create(ctx, a, b)
	switch {
	case err == nil:
		return fmt.Sprintf("Bridge %d created between <#%s> and <#%s>.", created.ID, created.ChannelA, created.ChannelB)
	case errors.Is(err, bridge.ErrSelfBridge):
		return "You cannot bridge the same channel."
	case errors.Is(err, bridge.ErrAlreadyBridged):
		return "One of these channels is already bridged."
	case errors.Is(err, bridge.ErrInvalidChannel):
		return "Please mention two text channels."
	case errors.Is(err, bridge.ErrWebhookProvision):
		log.Warn("bridge setup failed", slog.Any("error", err))
		return "I couldn't create a webhook in one of the channels. Check that I have the Manage Webhooks permission."
	case errors.Is(err, bridge.ErrChannelNotFound):
		return "I can't see one of those channels."
	default:
		return h.fail(log, err)
	}
}

func (h *Handler) remove(ctx context.Context, log *slog.Logger, args []string) string {
	if len(args) != 1 {
		return "Usage: " + h.trigger + " remove <id>"
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return "Invalid bridge ID."
	}
	if _, err := h.bridges.Remove(ctx, id); err != nil {
		if errors.Is(err, bridge.ErrNotFound) {
			return "Invalid bridge ID."
		}
		return h.fail(log, err)
	}
	return fmt.Sprintf("Bridge %d removed.", id)
}

func (h *Handler) list(ctx context.Context, log *slog.Logger) string {
	items, err := h.bridges.List(ctx)
	if err != nil {
		return h.fail(log, err)
	}
	if len(items) == 0 {
		return "No active bridges."
	}
	lines := make([]string, 0, len(items))
	for _, b := range items {
		lines = append(lines, fmt.Sprintf("ID %d: %s <-> %s", b.ID,
			h.channelLabel(ctx, b, bridge.SideA), h.channelLabel(ctx, b, bridge.SideB)))
	}
	return strings.Join(lines, "\n")
}

func (h *Handler) channelLabel(ctx context.Context, b bridge.Bridge, side bridge.Side) string {
	channelID := b.Channel(side)
	if _, err := h.directory.Channel(ctx, channelID); err == nil {
		return "<#" + channelID + ">"
	}
	name := b.DisplayName(side)
	if name == "" {
		name = channelID
	}
	return name + " (missing)"
}

func (h *Handler) authorize(ctx context.Context, log *slog.Logger, actorID string, args []string) string {
	if len(args) != 1 {
		return "Usage: " + h.trigger + " authorize <@user>"
	}
	userID, ok := ParseUser(args[0])
	if !ok {
		return "Please mention a user."
	}
	if err := h.access.Authorize(ctx, actorID, userID); err != nil {
		if errors.Is(err, access.ErrOwnerOnly) {
			return "Only the bot owner can authorize users."
		}
		return h.fail(log, err)
	}
	return fmt.Sprintf("<@%s> has been authorized.", userID)
}

func (h *Handler) deauthorize(ctx context.Context, log *slog.Logger, actorID string, args []string) string {
	if len(args) != 1 {
		return "Usage: " + h.trigger + " deauthorize <@user>"
	}
	userID, ok := ParseUser(args[0])
	if !ok {
		return "Please mention a user."
	}
	if err := h.access.Deauthorize(ctx, actorID, userID); err != nil {
		switch {
		case errors.Is(err, access.ErrOwnerOnly):
			return "Only the bot owner can deauthorize users."
		case errors.Is(err, access.ErrCannotDeauthorizeOwner):
			return "The bot owner cannot be deauthorized."
		}
		return h.fail(log, err)
	}
	return fmt.Sprintf("<@%s> has been deauthorized.", userID)
}

func (h *Handler) authorized(ctx context.Context, log *slog.Logger) string {
	ops, err := h.access.List(ctx)
	if err != nil {
		return h.fail(log, err)
	}
	if len(ops) == 0 {
		return "No authorized users."
	}
	mentions := make([]string, 0, len(ops))
	for _, op := range ops {
		mentions = append(mentions, "<@"+op.UserID+">")
	}
	return "Authorized users: " + strings.Join(mentions, ", ")
}

func (h *Handler) fail(log *slog.Logger, err error) string {
	log.Error("command failed", slog.Any("error", err))
	return msgInternal
}

func (h *Handler) usage() string {
	t := h.trigger
	return strings.Join([]string{
		"**Bridge commands**",
		"`" + t + " setup <#channel1> <#channel2>` link two channels",
		"`" + t + " remove <id>` remove a bridge",
		"`" + t + " list` show active bridges",
		"`" + t + " clear` remove every bridge",
		"`" + t + " authorize <@user>` allow a user to manage bridges (owner only)",
		"`" + t + " deauthorize <@user>` revoke a user (owner only)",
		"`" + t + " authorized` show authorized users",
	}, "\n")
}

// ParseChannel accepts "<#id>" or a raw numeric id.
func ParseChannel(arg string) (string, bool) {
	return parseSnowflake(arg, "<#")
}

// ParseUser accepts "<@id>", "<@!id>" or a raw numeric id.
func ParseUser(arg string) (string, bool) {
	arg = strings.Replace(strings.TrimSpace(arg), "<@!", "<@", 1)
	return parseSnowflake(arg, "<@")
}

func parseSnowflake(arg, open string) (string, bool) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, open) && strings.HasSuffix(arg, ">") {
		arg = arg[len(open) : len(arg)-1]
	}
	if arg == "" {
		return "", false
	}
	if _, err := strconv.ParseUint(arg, 10, 64); err != nil {
		return "", false
	}
	return arg, true
}
