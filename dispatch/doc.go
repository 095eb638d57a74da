// Package dispatch routes incoming messages to registered command handlers.
// The Mux is the object a HandlerRegistry registers into and the bot client
// dispatches through while polling.
package dispatch
