package tg

import "strings"

// User represents a Telegram user or bot account.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	Username  string `json:"username,omitempty"`
}

// Chat represents a conversation the bot participates in.
type Chat struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"` // "private", "group", "supergroup", "channel"
	Title    string `json:"title,omitempty"`
	Username string `json:"username,omitempty"`
}

// Message represents an incoming or outgoing message.
type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Date      int64  `json:"date"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// Command returns the command name when the message text starts with
// "/command", lowercased, without the slash or a "@botname" suffix.
// Returns "" for non-command messages.
func (m Message) Command() string {
	if !strings.HasPrefix(m.Text, "/") {
		return ""
	}
	cmd := m.Text[1:]
	if i := strings.IndexAny(cmd, " \t\n"); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.Index(cmd, "@"); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd)
}

// CommandArgs returns the text following the command token, trimmed.
// Returns "" when the message is not a command or has no arguments.
func (m Message) CommandArgs() string {
	if m.Command() == "" {
		return ""
	}
	if i := strings.IndexAny(m.Text, " \t\n"); i >= 0 {
		return strings.TrimSpace(m.Text[i+1:])
	}
	return ""
}

// Update represents one entry from a getUpdates response. Only message
// updates are modeled; other update kinds are ignored by the poller.
type Update struct {
	UpdateID int      `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}
