// Package handlers wires vigilbot's command handlers into the dispatcher.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prilive-com/vigil/dispatch"
	"github.com/prilive-com/vigil/tg"
)

// Sender is the outbound surface handlers need from the bot client.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*tg.Message, error)
}

// Registry registers all of vigilbot's command handlers. It satisfies the
// supervisor's HandlerRegistry contract: RegisterAll can be replayed across
// reconnect attempts because mux registration overwrites by command name.
type Registry struct {
	sender Sender
	admins []int64
	logger *slog.Logger

	// started is stamped on the first successful RegisterAll, so /status
	// uptime excludes time spent in pre-connect retry cycles.
	started time.Time
}

// NewRegistry creates a Registry replying through sender. Users in admins may
// run admin-gated commands.
func NewRegistry(sender Sender, admins []int64, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sender: sender,
		admins: admins,
		logger: logger,
	}
}

// RegisterAll wires every command handler into the mux.
func (r *Registry) RegisterAll(mux *dispatch.Mux) error {
	if r.sender == nil {
		return errors.New("vigilbot: sender required for handlers")
	}
	if r.started.IsZero() {
		r.started = time.Now()
	}

	mux.HandleCommand("start", r.handleStart)
	mux.HandleCommand("ping", r.handlePing)
	mux.HandleCommand("whoami", r.handleWhoAmI)
	mux.HandleCommand("status", r.adminOnly(r.handleStatus))
	return nil
}

func (r *Registry) handleStart(ctx context.Context, msg tg.Message) error {
	_, err := r.sender.SendMessage(ctx, msg.Chat.ID,
		"Hello! Available commands: /ping, /whoami, /status")
	return err
}

func (r *Registry) handlePing(ctx context.Context, msg tg.Message) error {
	_, err := r.sender.SendMessage(ctx, msg.Chat.ID, "pong")
	return err
}

func (r *Registry) handleWhoAmI(ctx context.Context, msg tg.Message) error {
	if msg.From == nil {
		return nil
	}
	text := fmt.Sprintf("You are %s (id %d)", msg.From.FirstName, msg.From.ID)
	if r.isAdmin(msg.From.ID) {
		text += ", admin"
	}
	_, err := r.sender.SendMessage(ctx, msg.Chat.ID, text)
	return err
}

func (r *Registry) handleStatus(ctx context.Context, msg tg.Message) error {
	text := fmt.Sprintf("vigilbot up for %s", time.Since(r.started).Round(time.Second))
	_, err := r.sender.SendMessage(ctx, msg.Chat.ID, text)
	return err
}

// adminOnly wraps a handler so non-admins get a refusal instead.
func (r *Registry) adminOnly(fn dispatch.HandlerFunc) dispatch.HandlerFunc {
	return func(ctx context.Context, msg tg.Message) error {
		if msg.From == nil || !r.isAdmin(msg.From.ID) {
			r.logger.Warn("admin command refused",
				"command", msg.Command(),
				"chat_id", msg.Chat.ID,
			)
			_, err := r.sender.SendMessage(ctx, msg.Chat.ID, "Admins only.")
			return err
		}
		return fn(ctx, msg)
	}
}

func (r *Registry) isAdmin(userID int64) bool {
	for _, id := range r.admins {
		if id == userID {
			return true
		}
	}
	return false
}
