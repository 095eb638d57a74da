// Package botclient is a long-polling Telegram Bot API client implementing
// the supervisor's BotClient contract.
//
// Every API call runs through a global rate limiter (golang.org/x/time/rate)
// and a circuit breaker (sony/gobreaker); transport errors are scrubbed of
// the bot token before they surface. StartPolling tolerates a bounded run of
// consecutive getUpdates failures with a short linear wait between them, then
// returns the last error for the supervisor to classify. Credential
// rejections (401/403) bail out immediately.
package botclient
