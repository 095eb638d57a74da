// Package tg holds the minimal shared Telegram wire types used by the
// supervisor's collaborators: users, chats, messages, updates and the
// redacted SecretToken.
package tg
