package dispatch

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/prilive-com/vigil/tg"
)

// HandlerFunc processes a single incoming message.
type HandlerFunc func(ctx context.Context, msg tg.Message) error

// Handler dispatches one message to whatever handler claims it.
type Handler interface {
	Dispatch(ctx context.Context, msg tg.Message) error
}

// Mux routes messages to command handlers keyed by the leading /command
// token. Registration overwrites by name, so a registry can be replayed
// across reconnect attempts without duplicate-registration errors.
type Mux struct {
	mu       sync.RWMutex
	commands map[string]HandlerFunc
	fallback HandlerFunc
	logger   *slog.Logger
}

// NewMux creates an empty Mux. A nil logger falls back to slog.Default.
func NewMux(logger *slog.Logger) *Mux {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mux{
		commands: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// HandleCommand registers fn for /name messages. A leading slash in name is
// tolerated. Re-registering a name replaces the previous handler.
func (m *Mux) HandleCommand(name string, fn HandlerFunc) {
	name = strings.ToLower(strings.TrimPrefix(name, "/"))
	m.mu.Lock()
	m.commands[name] = fn
	m.mu.Unlock()
}

// HandleDefault registers the handler for messages no command claims.
func (m *Mux) HandleDefault(fn HandlerFunc) {
	m.mu.Lock()
	m.fallback = fn
	m.mu.Unlock()
}

// Len returns the number of registered command handlers.
func (m *Mux) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.commands)
}

// Dispatch routes msg to its command handler, falling back to the default
// handler. A message nobody claims is dropped silently (debug log only).
func (m *Mux) Dispatch(ctx context.Context, msg tg.Message) error {
	var fn HandlerFunc

	if cmd := msg.Command(); cmd != "" {
		m.mu.RLock()
		fn = m.commands[cmd]
		m.mu.RUnlock()
	}
	if fn == nil {
		m.mu.RLock()
		fn = m.fallback
		m.mu.RUnlock()
	}
	if fn == nil {
		m.logger.Debug("no handler for message",
			"chat_id", msg.Chat.ID,
			"message_id", msg.MessageID,
		)
		return nil
	}
	return fn(ctx, msg)
}

var _ Handler = (*Mux)(nil)
